package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesMarshalReturnsUnderlyingSlice(t *testing.T) {
	b := Bytes("hello")
	data, err := b.Marshal()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestBytesUnmarshalCopiesInput(t *testing.T) {
	var b Bytes
	input := []byte("payload")
	require.NoError(t, b.Unmarshal(input))
	assert.Equal(t, input, []byte(b))

	// Mutating the source after Unmarshal must not affect the copy.
	input[0] = 'X'
	assert.Equal(t, "payload", string(b))
}

func TestBytesUnmarshalReplacesPriorContents(t *testing.T) {
	b := Bytes("old value")
	require.NoError(t, b.Unmarshal([]byte("new")))
	assert.Equal(t, "new", string(b))
}
