package nanorpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketEncodeOmitsZeroValuedOptionalFields(t *testing.T) {
	a := assert.New(t)

	packet := &Packet{Type: PacketTypeRequest}
	encoded := packet.Encode(nil)

	// type=REQUEST(0) is field 1, varint wire type (tag byte 0x08),
	// followed by the varint value 0. Nothing else is present because
	// every other field is at its zero value.
	a.Equal([]byte{0x08, 0x00}, encoded)
}

func TestPacketEncodeDecodeRoundTrip(t *testing.T) {
	r := require.New(t)

	original := &Packet{
		Type:      PacketTypeResponse,
		ChannelID: 7,
		ServiceID: 0xdeadbeef,
		MethodID:  0x1234,
		Payload:   []byte("hello"),
		Status:    StatusNotFound,
		CallID:    99,
		HasCallID: true,
	}

	decoded, err := DecodePacket(original.Encode(nil))
	r.NoError(err)
	r.Equal(original, decoded)
}

func TestPacketEncodeDecodeRoundTripAllZero(t *testing.T) {
	r := require.New(t)

	original := &Packet{Type: PacketTypeClientStreamEnd}
	decoded, err := DecodePacket(original.Encode(nil))
	r.NoError(err)
	r.Equal(original, decoded)
}

func TestPacketEncodeAppendsToExistingBuffer(t *testing.T) {
	a := assert.New(t)

	prefix := []byte{0xff, 0xff}
	packet := &Packet{Type: PacketTypeRequest}
	encoded := packet.Encode(prefix)

	a.Equal([]byte{0xff, 0xff}, encoded[:2])
	decoded, err := DecodePacket(encoded[2:])
	a.NoError(err)
	a.Equal(packet, decoded)
}

func TestDecodePacketRejectsTruncatedValue(t *testing.T) {
	r := require.New(t)

	_, err := DecodePacket([]byte{0x08})
	r.Error(err)
}

func TestDecodePacketSkipsUnknownFields(t *testing.T) {
	r := require.New(t)

	encoded := (&Packet{Type: PacketTypeRequest}).Encode(nil)
	// Append an unknown varint field (field 99) that a future version
	// might add; a current decoder must skip it rather than fail.
	encoded = append(encoded, 0x98, 0x06, 0x2a)

	decoded, err := DecodePacket(encoded)
	r.NoError(err)
	r.Equal(PacketTypeRequest, decoded.Type)
}

func TestPacketKeyIgnoresPayloadAndStatus(t *testing.T) {
	a := assert.New(t)

	p1 := &Packet{ChannelID: 1, ServiceID: 2, MethodID: 3, Payload: []byte("a"), Status: StatusOK}
	p2 := &Packet{ChannelID: 1, ServiceID: 2, MethodID: 3, Payload: []byte("b"), Status: StatusInternal}

	a.Equal(p1.key(), p2.key())
}

func TestPacketTypeString(t *testing.T) {
	a := assert.New(t)

	a.Equal("REQUEST", PacketTypeRequest.String())
	a.Equal("SERVER_ERROR", PacketTypeServerError.String())
	a.Contains(PacketType(200).String(), "PACKET_TYPE")
}

func TestPacketTypeIsError(t *testing.T) {
	a := assert.New(t)

	a.True(PacketTypeClientError.IsError())
	a.True(PacketTypeServerError.IsError())
	a.False(PacketTypeResponse.IsError())
}
