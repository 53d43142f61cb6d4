package transfer

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/nanorpc/go-nanorpc"
)

type clientReadState int

const (
	readStateInactive clientReadState = iota
	readStateWaiting
	readStateReceiving
	readStateRecovery
	readStateCompleted
)

// ClientReadSession drives the client side of a READ transfer: the
// client is the receiver and drives flow control by sending parameters
// chunks; the server is the sender of data chunks.
type ClientReadSession struct {
	TransferID uint32

	state  clientReadState
	writer Writer
	send   func(*Chunk) error
	log    *zap.Logger

	maxBytesToReceive uint32
	window            uint32
	offset            uint32
	pendingBytes      uint32
	receivedInWindow  uint32

	recoveryTriggerOffset uint32

	onCompletion func(status nanorpc.Status)

	retry       *retryTimer
	retryDelay  time.Duration
	maxRetries  int
	retriesLeft int
	lastSent    *Chunk
}

// NewClientReadSession creates a READ session that will deliver received
// bytes to writer. send transmits one chunk as a CLIENT_STREAM packet.
// Retries are sourced from clk (nil selects the real clock); a session
// that exhausts maxRetries without a reply completes with
// DEADLINE_EXCEEDED.
func NewClientReadSession(transferID uint32, writer Writer, maxBytesToReceive uint32,
	send func(*Chunk) error, onCompletion func(status nanorpc.Status), log *zap.Logger,
	clk clock.Clock, retryDelay time.Duration, maxRetries int) *ClientReadSession {

	if log == nil {
		log = zap.NewNop()
	}
	return &ClientReadSession{
		TransferID:        transferID,
		writer:            writer,
		send:              send,
		log:               log.Named("transfer.read.client"),
		maxBytesToReceive: maxBytesToReceive,
		onCompletion:      onCompletion,
		retry:             newRetryTimer(clk),
		retryDelay:        retryDelay,
		maxRetries:        maxRetries,
	}
}

// Start sends the initial parameters chunk and transitions to WAITING.
func (this *ClientReadSession) Start() error {
	this.window = this.maxBytesToReceive
	this.pendingBytes = this.window
	this.offset = 0
	this.receivedInWindow = 0
	this.retriesLeft = this.maxRetries
	this.state = readStateWaiting
	return this.sendParameters(this.offset, this.pendingBytes)
}

func (this *ClientReadSession) sendParameters(offset, pendingBytes uint32) error {
	chunk := &Chunk{TransferID: this.TransferID, Offset: offset, PendingBytes: u32p(pendingBytes)}
	return this.sendAndArmRetry(chunk)
}

func (this *ClientReadSession) sendAndArmRetry(chunk *Chunk) error {
	this.lastSent = chunk
	err := this.send(chunk)
	if this.retryDelay > 0 {
		this.retry.InvokeAfter(this.retryDelay, this.onRetryFire)
	}
	return err
}

func (this *ClientReadSession) onRetryFire() {
	if this.state == readStateCompleted {
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

func (this *ClientReadSession) sendTerminal(status nanorpc.Status) error {
	return this.send(&Chunk{TransferID: this.TransferID, Status: &status})
}

func (this *ClientReadSession) complete(status nanorpc.Status) {
	this.state = readStateCompleted
	this.retry.Cancel()
	if this.onCompletion != nil {
		this.onCompletion(status)
	}
}

func (this *ClientReadSession) fail(status nanorpc.Status) {
	_ = this.sendTerminal(status)
	this.complete(status)
}

// HandleChunk processes one chunk arriving from the server.
func (this *ClientReadSession) HandleChunk(chunk *Chunk) {
	if this.state == readStateCompleted {
		return
	}

	if chunk.IsTerminal() {
		this.complete(*chunk.Status)
		return
	}

	if chunk.IsParameters() {
		if chunk.PendingBytes != nil && *chunk.PendingBytes == 0 {
			this.fail(nanorpc.StatusInternal)
		}
		return
	}

	switch this.state {
	case readStateRecovery:
		if chunk.Offset == this.offset {
			this.state = readStateReceiving
		} else if chunk.Offset == this.recoveryTriggerOffset {
			_ = this.sendParameters(this.offset, this.window-this.receivedInWindow)
			return
		} else {
			return
		}

	case readStateWaiting:
		if chunk.Offset != this.offset {
			return
		}
		this.state = readStateReceiving

	case readStateReceiving:
		if chunk.Offset != this.offset {
			this.state = readStateRecovery
			this.recoveryTriggerOffset = chunk.Offset
			_ = this.sendParameters(this.offset, this.window-this.receivedInWindow)
			return
		}

	default:
		return
	}

	this.onData(chunk)
}

func (this *ClientReadSession) onData(chunk *Chunk) {
	size := uint32(len(chunk.Data))
	if size > this.pendingBytes {
		this.fail(nanorpc.StatusInternal)
		return
	}

	if status := this.writer.Write(chunk.Data); status != nanorpc.StatusOK {
		this.fail(status)
		return
	}
	this.retriesLeft = this.maxRetries

	this.offset += size
	this.pendingBytes -= size
	this.receivedInWindow += size

	if chunk.IsFinalData() {
		_ = this.sendTerminal(nanorpc.StatusOK)
		this.complete(nanorpc.StatusOK)
		return
	}

	if this.pendingBytes == 0 {
		this.receivedInWindow = 0
		this.pendingBytes = this.window
		_ = this.sendParameters(this.offset, this.pendingBytes)
	}
}

// Cancel aborts the session locally and notifies the peer.
func (this *ClientReadSession) Cancel() {
	if this.state == readStateCompleted {
		return
	}
	this.fail(nanorpc.StatusCancelled)
}
