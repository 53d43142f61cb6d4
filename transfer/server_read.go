package transfer

import (
	"go.uber.org/zap"

	"github.com/nanorpc/go-nanorpc"
)

type serverReadState int

const (
	serverReadIdle serverReadState = iota
	serverReadData
	serverReadCompleted
)

// ServerReadSession drives the server side of a READ transfer: the
// server is the sender, reading from handler.Reader() and emitting data
// chunks sized by the tighter of its own and the client's bounds.
type ServerReadSession struct {
	TransferID uint32

	handler ReadHandler
	send    func(*Chunk) error
	log     *zap.Logger

	maxChunkSizeBytes uint32

	state              serverReadState
	offset             uint32
	pendingBytes       uint32
	clientMaxChunkSize uint32
}

// NewServerReadSession creates a READ handler session. maxChunkSizeBytes
// is this server's own advertised chunk size bound.
func NewServerReadSession(transferID uint32, handler ReadHandler, maxChunkSizeBytes uint32,
	send func(*Chunk) error, log *zap.Logger) *ServerReadSession {

	if log == nil {
		log = zap.NewNop()
	}
	return &ServerReadSession{
		TransferID:         transferID,
		handler:            handler,
		send:               send,
		log:                log.Named("transfer.read.server"),
		maxChunkSizeBytes:  maxChunkSizeBytes,
		clientMaxChunkSize: maxChunkSizeBytes,
	}
}

func (this *ServerReadSession) sendChunk(c *Chunk) {
	c.TransferID = this.TransferID
	_ = this.send(c)
}

func isInitialParameters(chunk *Chunk) bool {
	return chunk.IsParameters() && chunk.Offset == 0
}

// HandleChunk processes one chunk arriving from the client.
func (this *ServerReadSession) HandleChunk(chunk *Chunk) {
	if chunk.IsTerminal() {
		if this.state == serverReadCompleted {
			return
		}
		this.handler.FinalizeRead(*chunk.Status)
		this.state = serverReadCompleted
		return
	}

	switch this.state {
	case serverReadIdle:
		this.handleInitial(chunk)

	case serverReadData:
		if isInitialParameters(chunk) {
			this.handler.FinalizeRead(nanorpc.StatusAborted)
			this.state = serverReadIdle
			this.handleInitial(chunk)
			return
		}
		if !chunk.IsParameters() {
			return
		}
		if chunk.Offset != this.offset {
			reader := this.handler.Reader()
			if status := reader.Seek(int64(chunk.Offset)); !status.Ok() {
				this.sendChunk(&Chunk{Status: &status})
				this.handler.FinalizeRead(status)
				this.state = serverReadCompleted
				return
			}
			this.offset = chunk.Offset
		}
		if chunk.PendingBytes != nil {
			this.pendingBytes = *chunk.PendingBytes
		}
		if chunk.MaxChunkSizeBytes != nil {
			this.clientMaxChunkSize = *chunk.MaxChunkSizeBytes
		}
		this.emitData()

	case serverReadCompleted:
		if isInitialParameters(chunk) {
			this.state = serverReadIdle
			this.handleInitial(chunk)
			return
		}
		status := nanorpc.StatusFailedPrecondition
		this.sendChunk(&Chunk{Status: &status})
	}
}

func (this *ServerReadSession) handleInitial(chunk *Chunk) {
	if !chunk.IsParameters() {
		return
	}
	if chunk.PendingBytes != nil && *chunk.PendingBytes == 0 {
		status := nanorpc.StatusInternal
		this.sendChunk(&Chunk{Status: &status})
		this.handler.FinalizeRead(nanorpc.StatusInternal)
		this.state = serverReadCompleted
		return
	}

	if status := this.handler.PrepareRead(); !status.Ok() {
		dataLoss := nanorpc.StatusDataLoss
		this.sendChunk(&Chunk{Status: &dataLoss})
		return
	}

	this.offset = chunk.Offset
	this.clientMaxChunkSize = this.maxChunkSizeBytes
	if chunk.MaxChunkSizeBytes != nil && *chunk.MaxChunkSizeBytes < this.clientMaxChunkSize {
		this.clientMaxChunkSize = *chunk.MaxChunkSizeBytes
	}
	if chunk.PendingBytes != nil {
		this.pendingBytes = *chunk.PendingBytes
	}
	this.state = serverReadData
	this.emitData()
}

// emitData sends data chunks until the window is exhausted (awaiting the
// next parameters chunk) or the source is exhausted (sends a trailing
// chunk with RemainingBytes=0 and awaits the client's terminal chunk).
func (this *ServerReadSession) emitData() {
	reader := this.handler.Reader()
	chunkSize := this.maxChunkSizeBytes
	if this.clientMaxChunkSize < chunkSize {
		chunkSize = this.clientMaxChunkSize
	}
	if chunkSize == 0 {
		chunkSize = this.pendingBytes
	}

	for this.pendingBytes > 0 {
		want := chunkSize
		if this.pendingBytes < want {
			want = this.pendingBytes
		}
		buf := make([]byte, want)
		n, status := reader.Read(buf)
		if !status.Ok() {
			this.sendChunk(&Chunk{Status: &status})
			this.handler.FinalizeRead(status)
			this.state = serverReadCompleted
			return
		}

		if n == 0 {
			this.sendChunk(&Chunk{Offset: this.offset, Data: []byte{}, RemainingBytes: u64p(0)})
			return
		}

		final := uint32(n) < want
		data := append([]byte(nil), buf[:n]...)
		c := &Chunk{Offset: this.offset, Data: data}
		if final {
			c.RemainingBytes = u64p(0)
		}
		this.sendChunk(c)

		this.offset += uint32(n)
		this.pendingBytes -= uint32(n)
		if final {
			return
		}
	}
}
