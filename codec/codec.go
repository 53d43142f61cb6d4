// Package codec defines the pluggable payload serialization boundary
// carried inside a Packet's payload bytes. It governs only user
// request/response bytes; the Packet and transfer Chunk envelopes
// themselves have a fixed wire layout and are encoded directly with
// protowire, not through this interface.
package codec

// Marshaler is satisfied by any type that can serialize itself to bytes,
// matching proto.Message's Marshal method so generated protobuf types
// work here with no adapter.
type Marshaler interface {
	Marshal() ([]byte, error)
}

// Unmarshaler is satisfied by any type that can populate itself from
// bytes, matching proto.Message's Unmarshal method.
type Unmarshaler interface {
	Unmarshal([]byte) error
}

// Bytes is a pass-through Marshaler/Unmarshaler for callers that already
// have wire bytes and want no further encoding applied.
type Bytes []byte

// Marshal returns this slice unchanged.
func (this Bytes) Marshal() ([]byte, error) {
	return this, nil
}

// Unmarshal replaces this slice's contents with data, copying it so the
// caller's buffer can be reused.
func (this *Bytes) Unmarshal(data []byte) error {
	*this = append((*this)[:0], data...)
	return nil
}
