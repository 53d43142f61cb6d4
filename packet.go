package nanorpc

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// PacketType identifies the role of a Packet on the wire.
type PacketType uint32

const (
	PacketTypeRequest PacketType = iota
	PacketTypeResponse
	PacketTypeClientStream
	PacketTypeServerStream
	PacketTypeClientError
	PacketTypeServerError
	PacketTypeClientStreamEnd
)

func (this PacketType) String() string {
	switch this {
	case PacketTypeRequest:
		return "REQUEST"
	case PacketTypeResponse:
		return "RESPONSE"
	case PacketTypeClientStream:
		return "CLIENT_STREAM"
	case PacketTypeServerStream:
		return "SERVER_STREAM"
	case PacketTypeClientError:
		return "CLIENT_ERROR"
	case PacketTypeServerError:
		return "SERVER_ERROR"
	case PacketTypeClientStreamEnd:
		return "CLIENT_STREAM_END"
	default:
		return fmt.Sprintf("PACKET_TYPE(%d)", uint32(this))
	}
}

// IsError reports whether this is one of the two terminal error types.
func (this PacketType) IsError() bool {
	return this == PacketTypeClientError || this == PacketTypeServerError
}

// Packet field numbers for the protobuf-compatible wire table. Each
// endpoint uses these directly rather than going through a generated
// message type, hand-encoding its own packet envelope.
const (
	packetFieldType      = 1
	packetFieldChannelID = 2
	packetFieldServiceID = 3
	packetFieldMethodID  = 4
	packetFieldPayload   = 5
	packetFieldStatus    = 6
	packetFieldCallID    = 7
)

// Packet is the in-memory representation of one RPC packet.
type Packet struct {
	Type      PacketType
	ChannelID uint32
	ServiceID uint32
	MethodID  uint32
	Payload   []byte
	Status    Status
	CallID    uint32
	HasCallID bool
}

// Encode appends this Packet's protobuf-wire-compatible encoding to dst and
// returns the result. Zero-valued optional fields are omitted, following
// ordinary proto3 wire conventions; decoding reconstructs the same zero
// values so Encode/Decode round-trips structurally.
func (this *Packet) Encode(dst []byte) []byte {
	dst = protowire.AppendTag(dst, packetFieldType, protowire.VarintType)
	dst = protowire.AppendVarint(dst, uint64(this.Type))

	if this.ChannelID != 0 {
		dst = protowire.AppendTag(dst, packetFieldChannelID, protowire.Fixed32Type)
		dst = protowire.AppendFixed32(dst, this.ChannelID)
	}
	if this.ServiceID != 0 {
		dst = protowire.AppendTag(dst, packetFieldServiceID, protowire.Fixed32Type)
		dst = protowire.AppendFixed32(dst, this.ServiceID)
	}
	if this.MethodID != 0 {
		dst = protowire.AppendTag(dst, packetFieldMethodID, protowire.Fixed32Type)
		dst = protowire.AppendFixed32(dst, this.MethodID)
	}
	if len(this.Payload) > 0 {
		dst = protowire.AppendTag(dst, packetFieldPayload, protowire.BytesType)
		dst = protowire.AppendBytes(dst, this.Payload)
	}
	if this.Status != StatusOK {
		dst = protowire.AppendTag(dst, packetFieldStatus, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(this.Status))
	}
	if this.HasCallID {
		dst = protowire.AppendTag(dst, packetFieldCallID, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(this.CallID))
	}
	return dst
}

// DecodePacket parses a Packet previously produced by Encode. A malformed
// buffer is a routing error: the caller is expected to reply
// with a CLIENT_ERROR/DATA_LOSS packet rather than propagate the error any
// further.
func DecodePacket(data []byte) (*Packet, error) {
	packet := new(Packet)
	for len(data) > 0 {
		fieldNum, wireType, tagLen := protowire.ConsumeTag(data)
		if tagLen < 0 {
			return nil, fmt.Errorf("nanorpc: malformed packet tag: %w", protowire.ParseError(tagLen))
		}
		data = data[tagLen:]

		switch fieldNum {
		case packetFieldType:
			value, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("nanorpc: malformed packet.type: %w", protowire.ParseError(n))
			}
			packet.Type = PacketType(value)
			data = data[n:]
		case packetFieldChannelID:
			value, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return nil, fmt.Errorf("nanorpc: malformed packet.channel_id: %w", protowire.ParseError(n))
			}
			packet.ChannelID = value
			data = data[n:]
		case packetFieldServiceID:
			value, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return nil, fmt.Errorf("nanorpc: malformed packet.service_id: %w", protowire.ParseError(n))
			}
			packet.ServiceID = value
			data = data[n:]
		case packetFieldMethodID:
			value, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return nil, fmt.Errorf("nanorpc: malformed packet.method_id: %w", protowire.ParseError(n))
			}
			packet.MethodID = value
			data = data[n:]
		case packetFieldPayload:
			value, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("nanorpc: malformed packet.payload: %w", protowire.ParseError(n))
			}
			packet.Payload = append([]byte(nil), value...)
			data = data[n:]
		case packetFieldStatus:
			value, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("nanorpc: malformed packet.status: %w", protowire.ParseError(n))
			}
			packet.Status = Status(value)
			data = data[n:]
		case packetFieldCallID:
			value, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("nanorpc: malformed packet.call_id: %w", protowire.ParseError(n))
			}
			packet.CallID = uint32(value)
			packet.HasCallID = true
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(fieldNum, wireType, data)
			if n < 0 {
				return nil, fmt.Errorf("nanorpc: malformed packet: unknown field %d: %w", fieldNum, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return packet, nil
}

// callKey identifies the (channel, service, method) tuple that both the
// server's and the client's active-call uniqueness invariant
// is keyed on.
type callKey struct {
	channelID uint32
	serviceID uint32
	methodID  uint32
}

func (this *Packet) key() callKey {
	return callKey{channelID: this.ChannelID, serviceID: this.ServiceID, methodID: this.MethodID}
}
