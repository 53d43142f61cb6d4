package transfer

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/nanorpc/go-nanorpc"
)

// ServiceName, ReadMethodID and WriteMethodID let a client address the
// transfer service without holding the *nanorpc.Service object the
// server built: ids are a pure function of the name, so both sides
// compute them identically.
const (
	ServiceName = "nanorpc.transfer.Transfer"
	readMethod  = "Read"
	writeMethod = "Write"
)

var (
	ServiceID     = nanorpc.HashName(ServiceName)
	ReadMethodID  = nanorpc.HashName(readMethod)
	WriteMethodID = nanorpc.HashName(writeMethod)
)

// ClientManager multiplexes however many concurrent READ and WRITE
// transfers the caller starts over one "Read" bidi call and one "Write"
// bidi call per channel, mirroring Manager on the server side.
type ClientManager struct {
	client  *nanorpc.Client
	channel *nanorpc.Channel

	maxBytesToReceive uint32
	defaultChunkSize  uint32
	workQueue         *WorkQueue
	log               *zap.Logger

	clock      clock.Clock
	retryDelay time.Duration
	maxRetries int

	ids *IDPool

	mu            sync.Mutex
	readRW        *nanorpc.ClientReaderWriter
	writeRW       *nanorpc.ClientReaderWriter
	readSessions  map[uint32]*ClientReadSession
	writeSessions map[uint32]*ClientWriteSession
}

// NewClientManager creates a ClientManager bound to client and channel.
// workQueue may be nil, in which case chunks are processed synchronously
// on the calling goroutine (usually the packet-arrival thread) instead of
// being deferred. clk, retryDelay, and maxRetries configure the retry
// timer shared by every session this manager starts; clk nil selects the
// real clock, and retryDelay <= 0 disables retries entirely.
func NewClientManager(client *nanorpc.Client, channel *nanorpc.Channel,
	maxBytesToReceive, defaultChunkSize uint32, workQueue *WorkQueue, log *zap.Logger,
	clk clock.Clock, retryDelay time.Duration, maxRetries int) *ClientManager {

	if log == nil {
		log = zap.NewNop()
	}
	return &ClientManager{
		client:            client,
		channel:           channel,
		maxBytesToReceive: maxBytesToReceive,
		defaultChunkSize:  defaultChunkSize,
		workQueue:         workQueue,
		log:               log.Named("transfer.client"),
		clock:             clk,
		retryDelay:        retryDelay,
		maxRetries:        maxRetries,
		ids:               NewIDPool(20),
		readSessions:      make(map[uint32]*ClientReadSession),
		writeSessions:     make(map[uint32]*ClientWriteSession),
	}
}

// AllocateTransferID hands out a transfer_id not currently allocated
// from this manager's id pool, for callers that don't need to choose
// their own. Ids that callers pass to StartRead/StartWrite directly are
// not tracked by the pool. Release it with ReleaseTransferID once the transfer
// completes.
func (this *ClientManager) AllocateTransferID() (uint32, bool) {
	return this.ids.Allocate()
}

// ReleaseTransferID returns a transfer_id obtained from
// AllocateTransferID to the pool.
func (this *ClientManager) ReleaseTransferID(transferID uint32) {
	this.ids.Release(transferID)
}

func (this *ClientManager) ensureReadCall() (*nanorpc.ClientReaderWriter, error) {
	this.mu.Lock()
	defer this.mu.Unlock()
	if this.readRW != nil {
		return this.readRW, nil
	}
	rw, err := this.client.InvokeBidiStreaming(this.channel, ServiceID, ReadMethodID)
	if err != nil {
		return nil, err
	}
	rw.SetOnNext(this.onReadChunk)
	this.readRW = rw
	return rw, nil
}

func (this *ClientManager) ensureWriteCall() (*nanorpc.ClientReaderWriter, error) {
	this.mu.Lock()
	defer this.mu.Unlock()
	if this.writeRW != nil {
		return this.writeRW, nil
	}
	rw, err := this.client.InvokeBidiStreaming(this.channel, ServiceID, WriteMethodID)
	if err != nil {
		return nil, err
	}
	rw.SetOnNext(this.onWriteChunk)
	this.writeRW = rw
	return rw, nil
}

// StartRead begins a READ transfer: bytes fetched from the server are
// delivered to writer. onCompletion fires exactly once, with the final
// status, after which the session is forgotten.
func (this *ClientManager) StartRead(transferID uint32, writer Writer, onCompletion func(status nanorpc.Status)) error {
	rw, err := this.ensureReadCall()
	if err != nil {
		return err
	}

	session := NewClientReadSession(transferID, writer, this.maxBytesToReceive,
		func(c *Chunk) error { return rw.Write(c.Encode(nil)) },
		func(status nanorpc.Status) {
			this.mu.Lock()
			delete(this.readSessions, transferID)
			this.mu.Unlock()
			if onCompletion != nil {
				onCompletion(status)
			}
		}, this.log, this.clock, this.retryDelay, this.maxRetries)

	this.mu.Lock()
	this.readSessions[transferID] = session
	this.mu.Unlock()

	return session.Start()
}

// StartWrite begins a WRITE transfer: bytes sourced from reader are
// pushed to the server. onCompletion fires exactly once, with the final
// status, after which the session is forgotten.
func (this *ClientManager) StartWrite(transferID uint32, reader Reader, onCompletion func(status nanorpc.Status)) error {
	rw, err := this.ensureWriteCall()
	if err != nil {
		return err
	}

	session := NewClientWriteSession(transferID, reader, this.defaultChunkSize,
		func(c *Chunk) error { return rw.Write(c.Encode(nil)) },
		func(status nanorpc.Status) {
			this.mu.Lock()
			delete(this.writeSessions, transferID)
			this.mu.Unlock()
			if onCompletion != nil {
				onCompletion(status)
			}
		}, this.log, this.clock, this.retryDelay, this.maxRetries)

	this.mu.Lock()
	this.writeSessions[transferID] = session
	this.mu.Unlock()

	return session.Start()
}

func (this *ClientManager) onReadChunk(payload []byte) {
	chunk, err := DecodeChunk(payload)
	if err != nil {
		this.log.Debug("discarding malformed read chunk", zap.Error(err))
		return
	}

	this.mu.Lock()
	session, ok := this.readSessions[chunk.TransferID]
	this.mu.Unlock()
	if !ok {
		return
	}

	if this.workQueue != nil {
		this.workQueue.Submit(chunk.TransferID, func() { session.HandleChunk(chunk) })
	} else {
		session.HandleChunk(chunk)
	}
}

func (this *ClientManager) onWriteChunk(payload []byte) {
	chunk, err := DecodeChunk(payload)
	if err != nil {
		this.log.Debug("discarding malformed write chunk", zap.Error(err))
		return
	}

	this.mu.Lock()
	session, ok := this.writeSessions[chunk.TransferID]
	this.mu.Unlock()
	if !ok {
		return
	}

	if this.workQueue != nil {
		this.workQueue.Submit(chunk.TransferID, func() { session.HandleChunk(chunk) })
	} else {
		session.HandleChunk(chunk)
	}
}

// CancelRead cancels an in-flight READ transfer, if one is active.
func (this *ClientManager) CancelRead(transferID uint32) {
	this.mu.Lock()
	session, ok := this.readSessions[transferID]
	this.mu.Unlock()
	if ok {
		session.Cancel()
	}
}

// CancelWrite cancels an in-flight WRITE transfer, if one is active.
func (this *ClientManager) CancelWrite(transferID uint32) {
	this.mu.Lock()
	session, ok := this.writeSessions[transferID]
	this.mu.Unlock()
	if ok {
		session.Cancel()
	}
}
