package transfer

import (
	"go.uber.org/zap"

	"github.com/nanorpc/go-nanorpc"
)

type serverWriteState int

const (
	serverWriteIdle serverWriteState = iota
	serverWriteData
	serverWriteCompleted
)

// ServerWriteSession drives the server side of a WRITE transfer: the
// server is the receiver and drives flow control by sending parameters
// chunks; the client is the sender of data chunks.
type ServerWriteSession struct {
	TransferID uint32

	handler WriteHandler
	send    func(*Chunk) error
	log     *zap.Logger

	configuredWindow  uint32
	maxChunkSizeBytes uint32

	state            serverWriteState
	offset           uint32
	window           uint32
	completionStatus nanorpc.Status
}

// NewServerWriteSession creates a WRITE handler session.
// configuredWindow is this server's receive window; maxChunkSizeBytes is
// the chunk size it advertises to the client.
func NewServerWriteSession(transferID uint32, handler WriteHandler, configuredWindow, maxChunkSizeBytes uint32,
	send func(*Chunk) error, log *zap.Logger) *ServerWriteSession {

	if log == nil {
		log = zap.NewNop()
	}
	return &ServerWriteSession{
		TransferID:        transferID,
		handler:           handler,
		send:              send,
		log:               log.Named("transfer.write.server"),
		configuredWindow:  configuredWindow,
		maxChunkSizeBytes: maxChunkSizeBytes,
	}
}

func (this *ServerWriteSession) sendChunk(c *Chunk) {
	c.TransferID = this.TransferID
	_ = this.send(c)
}

func isBareInitial(chunk *Chunk) bool {
	return chunk.Data == nil && chunk.PendingBytes == nil && chunk.Status == nil && chunk.RemainingBytes == nil
}

func (this *ServerWriteSession) sendParameters(offset, window uint32) {
	this.sendChunk(&Chunk{Offset: offset, PendingBytes: u32p(window), MaxChunkSizeBytes: u32p(this.maxChunkSizeBytes)})
}

// HandleChunk processes one chunk arriving from the client.
func (this *ServerWriteSession) HandleChunk(chunk *Chunk) {
	if chunk.IsTerminal() {
		this.handleTerminal(*chunk.Status)
		return
	}

	switch this.state {
	case serverWriteIdle:
		if !isBareInitial(chunk) {
			return
		}
		if status := this.handler.PrepareWrite(); !status.Ok() {
			this.sendChunk(&Chunk{Status: &status})
			return
		}
		this.offset = 0
		this.window = this.configuredWindow
		this.state = serverWriteData
		this.sendParameters(0, this.window)

	case serverWriteData:
		if chunk.Offset != this.offset {
			this.sendParameters(this.offset, this.window)
			return
		}

		status := this.handler.Writer().Write(chunk.Data)
		if !status.Ok() {
			this.sendChunk(&Chunk{Status: &status})
			this.handler.FinalizeWrite(status)
			this.state = serverWriteCompleted
			this.completionStatus = status
			return
		}

		size := uint32(len(chunk.Data))
		this.offset += size
		this.window -= size

		if chunk.IsFinalData() {
			// The receiver, not the sender, knows the transfer is complete
			// once the last data chunk has landed, so it finalizes and
			// replies with a terminal chunk rather than waiting on the
			// client to say so.
			result := this.handler.FinalizeWrite(nanorpc.StatusOK)
			this.completionStatus = result
			this.state = serverWriteCompleted
			this.sendChunk(&Chunk{Status: &result})
			return
		}
		if this.window == 0 {
			this.window = this.configuredWindow
			this.sendParameters(this.offset, this.window)
		}

	case serverWriteCompleted:
		status := nanorpc.StatusFailedPrecondition
		this.sendChunk(&Chunk{Status: &status})
	}
}

func (this *ServerWriteSession) handleTerminal(status nanorpc.Status) {
	if this.state == serverWriteCompleted {
		replyStatus := this.completionStatus
		this.sendChunk(&Chunk{Status: &replyStatus})
		return
	}

	if status.Ok() {
		result := this.handler.FinalizeWrite(nanorpc.StatusOK)
		if !result.Ok() {
			this.completionStatus = nanorpc.StatusDataLoss
		} else {
			this.completionStatus = nanorpc.StatusOK
		}
	} else {
		this.handler.FinalizeWrite(status)
		this.completionStatus = status
	}

	this.state = serverWriteCompleted
	replyStatus := this.completionStatus
	this.sendChunk(&Chunk{Status: &replyStatus})
}
