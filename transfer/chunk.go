// Package transfer implements the reliable chunked transfer protocol
// layered on top of the nanorpc bidirectional-streaming call pattern: a
// receiver-driven, windowed READ/WRITE session identified by a
// transfer_id, with gap recovery and retry.
package transfer

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/nanorpc/go-nanorpc"
)

// Chunk field numbers on the wire, carried as a Packet's payload.
const (
	fieldTransferID           = protowire.Number(1)
	fieldPendingBytes         = protowire.Number(2)
	fieldMaxChunkSizeBytes    = protowire.Number(3)
	fieldMinDelayMicroseconds = protowire.Number(4)
	fieldOffset               = protowire.Number(5)
	fieldData                 = protowire.Number(6)
	fieldRemainingBytes       = protowire.Number(7)
	fieldStatus               = protowire.Number(8)
)

// Chunk is the wire-level unit of the transfer protocol. Optional fields
// use pointers so "absent" and "present with zero value" are
// distinguishable, matching the protobuf optional-scalar convention (and
// mattering a great deal here: a present PendingBytes of 0 is a
// zero-window error, while an absent PendingBytes means "not a
// parameters chunk").
type Chunk struct {
	TransferID            uint32
	PendingBytes          *uint32
	MaxChunkSizeBytes     *uint32
	MinDelayMicroseconds  *uint32
	Offset                uint32
	Data                  []byte
	RemainingBytes        *uint64
	Status                *nanorpc.Status
}

// IsParameters reports whether this chunk is a flow-control parameters
// chunk: it carries PendingBytes and no Data.
func (this *Chunk) IsParameters() bool {
	return this.PendingBytes != nil && this.Data == nil && this.Status == nil
}

// IsTerminal reports whether this chunk carries a terminal status.
func (this *Chunk) IsTerminal() bool {
	return this.Status != nil
}

// IsFinalData reports whether this chunk is the last data chunk of the
// source stream (RemainingBytes present and zero).
func (this *Chunk) IsFinalData() bool {
	return this.RemainingBytes != nil && *this.RemainingBytes == 0
}

func u32p(v uint32) *uint32 { return &v }
func u64p(v uint64) *uint64 { return &v }

// Encode appends this chunk's wire representation to dst and returns the
// result.
func (this *Chunk) Encode(dst []byte) []byte {
	dst = protowire.AppendTag(dst, fieldTransferID, protowire.VarintType)
	dst = protowire.AppendVarint(dst, uint64(this.TransferID))

	if this.PendingBytes != nil {
		dst = protowire.AppendTag(dst, fieldPendingBytes, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(*this.PendingBytes))
	}
	if this.MaxChunkSizeBytes != nil {
		dst = protowire.AppendTag(dst, fieldMaxChunkSizeBytes, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(*this.MaxChunkSizeBytes))
	}
	if this.MinDelayMicroseconds != nil {
		dst = protowire.AppendTag(dst, fieldMinDelayMicroseconds, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(*this.MinDelayMicroseconds))
	}
	if this.Offset != 0 {
		dst = protowire.AppendTag(dst, fieldOffset, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(this.Offset))
	}
	if this.Data != nil {
		dst = protowire.AppendTag(dst, fieldData, protowire.BytesType)
		dst = protowire.AppendBytes(dst, this.Data)
	}
	if this.RemainingBytes != nil {
		dst = protowire.AppendTag(dst, fieldRemainingBytes, protowire.VarintType)
		dst = protowire.AppendVarint(dst, *this.RemainingBytes)
	}
	if this.Status != nil {
		dst = protowire.AppendTag(dst, fieldStatus, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(*this.Status))
	}
	return dst
}

// DecodeChunk parses a Chunk from data, which must contain nothing else.
func DecodeChunk(data []byte) (*Chunk, error) {
	chunk := new(Chunk)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("transfer: malformed chunk tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldTransferID:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("transfer: malformed transfer_id: %w", protowire.ParseError(n))
			}
			chunk.TransferID = uint32(v)
			data = data[n:]

		case fieldPendingBytes:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("transfer: malformed pending_bytes: %w", protowire.ParseError(n))
			}
			chunk.PendingBytes = u32p(uint32(v))
			data = data[n:]

		case fieldMaxChunkSizeBytes:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("transfer: malformed max_chunk_size_bytes: %w", protowire.ParseError(n))
			}
			chunk.MaxChunkSizeBytes = u32p(uint32(v))
			data = data[n:]

		case fieldMinDelayMicroseconds:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("transfer: malformed min_delay_microseconds: %w", protowire.ParseError(n))
			}
			chunk.MinDelayMicroseconds = u32p(uint32(v))
			data = data[n:]

		case fieldOffset:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("transfer: malformed offset: %w", protowire.ParseError(n))
			}
			chunk.Offset = uint32(v)
			data = data[n:]

		case fieldData:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("transfer: malformed data: %w", protowire.ParseError(n))
			}
			chunk.Data = append([]byte(nil), v...)
			data = data[n:]

		case fieldRemainingBytes:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("transfer: malformed remaining_bytes: %w", protowire.ParseError(n))
			}
			chunk.RemainingBytes = u64p(v)
			data = data[n:]

		case fieldStatus:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("transfer: malformed status: %w", protowire.ParseError(n))
			}
			status := nanorpc.Status(v)
			chunk.Status = &status
			data = data[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("transfer: malformed unknown field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return chunk, nil
}
