package transfer

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/nanorpc/go-nanorpc"
)

type clientWriteState int

const (
	writeStateInactive clientWriteState = iota
	writeStateSentID
	writeStateSending
	writeStateCompleted
)

// ClientWriteSession drives the client side of a WRITE transfer: the
// client is the sender of data chunks; the server is the receiver and
// drives flow control by sending parameters chunks.
type ClientWriteSession struct {
	TransferID uint32

	state  clientWriteState
	reader Reader
	send   func(*Chunk) error
	log    *zap.Logger

	offset           uint32
	defaultChunkSize uint32

	onCompletion func(status nanorpc.Status)

	retry       *retryTimer
	retryDelay  time.Duration
	maxRetries  int
	retriesLeft int
	lastSent    *Chunk
}

// NewClientWriteSession creates a WRITE session that will source bytes
// from reader. send transmits one chunk as a CLIENT_STREAM packet.
// Retries are sourced from clk (nil selects the real clock); a session
// that exhausts maxRetries without a reply completes with
// DEADLINE_EXCEEDED.
func NewClientWriteSession(transferID uint32, reader Reader, defaultChunkSize uint32,
	send func(*Chunk) error, onCompletion func(status nanorpc.Status), log *zap.Logger,
	clk clock.Clock, retryDelay time.Duration, maxRetries int) *ClientWriteSession {

	if log == nil {
		log = zap.NewNop()
	}
	return &ClientWriteSession{
		TransferID:       transferID,
		reader:           reader,
		send:             send,
		log:              log.Named("transfer.write.client"),
		defaultChunkSize: defaultChunkSize,
		onCompletion:     onCompletion,
		retry:            newRetryTimer(clk),
		retryDelay:       retryDelay,
		maxRetries:       maxRetries,
	}
}

// Start sends the initial identification chunk and transitions to
// SENT_ID.
func (this *ClientWriteSession) Start() error {
	this.state = writeStateSentID
	this.retriesLeft = this.maxRetries
	return this.sendAndArmRetry(&Chunk{TransferID: this.TransferID})
}

func (this *ClientWriteSession) sendAndArmRetry(chunk *Chunk) error {
	this.lastSent = chunk
	err := this.send(chunk)
	if this.retryDelay > 0 {
		this.retry.InvokeAfter(this.retryDelay, this.onRetryFire)
	}
	return err
}

func (this *ClientWriteSession) onRetryFire() {
	if this.state == writeStateCompleted {
		return
	}
	if this.retriesLeft <= 0 {
		this.fail(nanorpc.StatusDeadlineExceeded)
		return
	}
	this.retriesLeft--
	if this.lastSent != nil {
		_ = this.sendAndArmRetry(this.lastSent)
	}
}

func (this *ClientWriteSession) sendTerminal(status nanorpc.Status) error {
	return this.send(&Chunk{TransferID: this.TransferID, Status: &status})
}

func (this *ClientWriteSession) complete(status nanorpc.Status) {
	this.state = writeStateCompleted
	this.retry.Cancel()
	if this.onCompletion != nil {
		this.onCompletion(status)
	}
}

func (this *ClientWriteSession) fail(status nanorpc.Status) {
	_ = this.sendTerminal(status)
	this.complete(status)
}

// HandleChunk processes one chunk arriving from the server: a parameters
// chunk grants a window to send into, a terminal chunk ends the session.
func (this *ClientWriteSession) HandleChunk(chunk *Chunk) {
	if this.state == writeStateCompleted {
		return
	}

	if chunk.IsTerminal() {
		this.complete(*chunk.Status)
		return
	}

	if chunk.PendingBytes == nil {
		this.fail(nanorpc.StatusInvalidArgument)
		return
	}
	pendingBytes := *chunk.PendingBytes
	if pendingBytes == 0 {
		this.fail(nanorpc.StatusInternal)
		return
	}

	maxChunkSize := this.defaultChunkSize
	if chunk.MaxChunkSizeBytes != nil && *chunk.MaxChunkSizeBytes < maxChunkSize {
		maxChunkSize = *chunk.MaxChunkSizeBytes
	}
	if maxChunkSize == 0 {
		maxChunkSize = pendingBytes
	}

	if chunk.Offset != this.offset {
		if status := this.reader.Seek(int64(chunk.Offset)); status != nanorpc.StatusOK {
			this.fail(status)
			return
		}
		this.offset = chunk.Offset
	}

	this.retriesLeft = this.maxRetries
	this.state = writeStateSending
	this.sendData(pendingBytes, maxChunkSize)
}

// sendData emits data chunks from the reader, capped at maxChunkSize per
// chunk, bounded by pendingBytes. It stops early, marking the final chunk
// with RemainingBytes=0, if the reader runs out first.
func (this *ClientWriteSession) sendData(pendingBytes, maxChunkSize uint32) {
	buf := make([]byte, maxChunkSize)
	for pendingBytes > 0 {
		want := maxChunkSize
		if pendingBytes < want {
			want = pendingBytes
		}

		n, status := this.reader.Read(buf[:want])
		if status != nanorpc.StatusOK {
			this.fail(status)
			return
		}

		if n == 0 {
			_ = this.sendAndArmRetry(&Chunk{TransferID: this.TransferID, Offset: this.offset, Data: []byte{}, RemainingBytes: u64p(0)})
			return
		}

		final := uint32(n) < want
		data := append([]byte(nil), buf[:n]...)
		chunk := &Chunk{TransferID: this.TransferID, Offset: this.offset, Data: data}
		if final {
			chunk.RemainingBytes = u64p(0)
		}
		if err := this.sendAndArmRetry(chunk); err != nil {
			return
		}

		this.offset += uint32(n)
		pendingBytes -= uint32(n)

		if final {
			return
		}
	}
}

// Cancel aborts the session locally and notifies the peer.
func (this *ClientWriteSession) Cancel() {
	if this.state == writeStateCompleted {
		return
	}
	this.fail(nanorpc.StatusCancelled)
}
