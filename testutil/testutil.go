// Package testutil holds small helpers shared by this module's tests:
// deterministic payload generation and byte-slice comparison with a useful
// failure message, so individual test files don't each reinvent them.
package testutil

import "fmt"

// NewBytes returns a deterministic length-byte slice, useful as transfer
// payload content where the test only cares that what comes out the other
// end matches what went in.
func NewBytes(length int) []byte {
	data := make([]byte, length)
	for i := 0; i < length; i++ {
		data[i] = byte(i & 0xff)
	}
	return data
}

// AssertBytesEqual returns a descriptive error if actual and expected
// differ, or nil if they are identical.
func AssertBytesEqual(actual, expected []byte) error {
	if len(actual) != len(expected) {
		return fmt.Errorf("slices are of different lengths (actual = %v, expected = %v)", len(actual), len(expected))
	}
	for i := range actual {
		if actual[i] != expected[i] {
			return fmt.Errorf("slices differ at index %v: actual = %#x, expected = %#x", i, actual[i], expected[i])
		}
	}
	return nil
}
