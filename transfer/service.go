package transfer

import (
	"sync"

	"go.uber.org/zap"

	"github.com/nanorpc/go-nanorpc"
)

// Manager owns the handler registry and per-call session multiplexing
// for the transfer service: every READ and every WRITE transfer for a
// channel shares one bidi-streaming Call, distinguished from each other
// by the transfer_id carried in each chunk, rather than opening one RPC
// call per transfer.
type Manager struct {
	mu            sync.Mutex
	readHandlers  map[uint32]ReadHandler
	writeHandlers map[uint32]WriteHandler

	window            uint32
	maxChunkSizeBytes uint32
	log               *zap.Logger
}

// NewManager creates a Manager. window is the receive window this server
// advertises for WRITE transfers; maxChunkSizeBytes bounds both
// directions' data chunks.
func NewManager(window, maxChunkSizeBytes uint32, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		readHandlers:      make(map[uint32]ReadHandler),
		writeHandlers:     make(map[uint32]WriteHandler),
		window:            window,
		maxChunkSizeBytes: maxChunkSizeBytes,
		log:               log.Named("transfer.manager"),
	}
}

// RegisterReadHandler makes handler available to serve READ transfers
// requesting transferID.
func (this *Manager) RegisterReadHandler(transferID uint32, handler ReadHandler) {
	this.mu.Lock()
	defer this.mu.Unlock()
	this.readHandlers[transferID] = handler
}

// RegisterWriteHandler makes handler available to serve WRITE transfers
// requesting transferID.
func (this *Manager) RegisterWriteHandler(transferID uint32, handler WriteHandler) {
	this.mu.Lock()
	defer this.mu.Unlock()
	this.writeHandlers[transferID] = handler
}

func (this *Manager) readHandler(transferID uint32) (ReadHandler, bool) {
	this.mu.Lock()
	defer this.mu.Unlock()
	h, ok := this.readHandlers[transferID]
	return h, ok
}

func (this *Manager) writeHandler(transferID uint32) (WriteHandler, bool) {
	this.mu.Lock()
	defer this.mu.Unlock()
	h, ok := this.writeHandlers[transferID]
	return h, ok
}

// NewService builds the nanorpc.Service exposing "Read" and "Write" as
// bidirectional-streaming methods, backed by this Manager.
func NewService(manager *Manager) (*nanorpc.Service, error) {
	return nanorpc.NewService("nanorpc.transfer.Transfer",
		nanorpc.NewBidiStreamingMethod("Read", manager.handleRead),
		nanorpc.NewBidiStreamingMethod("Write", manager.handleWrite),
	)
}

func (this *Manager) handleRead(rw *nanorpc.ServerReaderWriter) {
	var mu sync.Mutex
	sessions := make(map[uint32]*ServerReadSession)

	dispatch := func(payload []byte) {
		chunk, err := DecodeChunk(payload)
		if err != nil {
			this.log.Debug("discarding malformed read chunk", zap.Error(err))
			return
		}

		mu.Lock()
		session, ok := sessions[chunk.TransferID]
		if !ok {
			handler, registered := this.readHandler(chunk.TransferID)
			if !registered {
				mu.Unlock()
				return
			}
			session = NewServerReadSession(chunk.TransferID, handler, this.maxChunkSizeBytes,
				func(c *Chunk) error { return rw.Write(c.Encode(nil)) }, this.log)
			sessions[chunk.TransferID] = session
		}
		mu.Unlock()

		session.HandleChunk(chunk)
	}

	rw.SetOnNext(dispatch)
	if initial := rw.InitialPayload(); len(initial) > 0 {
		dispatch(initial)
	}
}

func (this *Manager) handleWrite(rw *nanorpc.ServerReaderWriter) {
	var mu sync.Mutex
	sessions := make(map[uint32]*ServerWriteSession)

	dispatch := func(payload []byte) {
		chunk, err := DecodeChunk(payload)
		if err != nil {
			this.log.Debug("discarding malformed write chunk", zap.Error(err))
			return
		}

		mu.Lock()
		session, ok := sessions[chunk.TransferID]
		if !ok {
			handler, registered := this.writeHandler(chunk.TransferID)
			if !registered {
				mu.Unlock()
				return
			}
			session = NewServerWriteSession(chunk.TransferID, handler, this.window, this.maxChunkSizeBytes,
				func(c *Chunk) error { return rw.Write(c.Encode(nil)) }, this.log)
			sessions[chunk.TransferID] = session
		}
		mu.Unlock()

		session.HandleChunk(chunk)
	}

	rw.SetOnNext(dispatch)
	if initial := rw.InitialPayload(); len(initial) > 0 {
		dispatch(initial)
	}
}
