// Package logservice exposes a server's recent log entries over the RPC
// core, the way a device exposes its logs to a host tool. Listen tails
// new entries as they're written; a registered transfer read handler
// hands the retained history to a caller through the ordinary transfer
// protocol, so large backlogs get the same windowed flow control any
// other transfer does.
package logservice

import (
	"bytes"
	"sync"

	"go.uber.org/zap"

	"github.com/nanorpc/go-nanorpc"
	"github.com/nanorpc/go-nanorpc/logsink"
	"github.com/nanorpc/go-nanorpc/transfer"
)

const (
	ServiceName  = "nanorpc.log.Log"
	ListenMethod = "Listen"
)

var (
	ServiceID      = nanorpc.HashName(ServiceName)
	ListenMethodID = nanorpc.HashName(ListenMethod)
)

// Service streams log entries from a logsink.RingCore to RPC clients.
type Service struct {
	ring *logsink.RingCore
	log  *zap.Logger
}

// NewService creates a Service backed by ring.
func NewService(ring *logsink.RingCore, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{ring: ring, log: log.Named("logservice")}
}

// NewRPCService builds the nanorpc.Service exposing Listen as a
// server-streaming method. Fetch is not listed here: it is served by the
// transfer protocol's Read method via RegisterHistoryReadHandler, not by
// this service directly.
func (this *Service) NewRPCService() (*nanorpc.Service, error) {
	return nanorpc.NewService(ServiceName,
		nanorpc.NewServerStreamingMethod(ListenMethod, this.handleListen),
	)
}

func (this *Service) handleListen(requestPayload []byte, writer *nanorpc.ServerWriter) {
	// Left subscribed for the process lifetime: there is no per-call
	// teardown hook to unsubscribe from here, only Cancel/Finish on the
	// writer, neither of which notifies this closure.
	this.ring.Subscribe(func(line []byte) {
		if err := writer.Write(line); err != nil {
			this.log.Debug("listener write failed", zap.Error(err))
		}
	})
}

// RegisterHistoryReadHandler registers a transfer.ReadHandler under
// transferID on manager that serves the ring's retained history,
// snapshotted at the moment the READ transfer starts.
func RegisterHistoryReadHandler(manager *transfer.Manager, transferID uint32, ring *logsink.RingCore) {
	manager.RegisterReadHandler(transferID, &historyReadHandler{ring: ring})
}

type historyReadHandler struct {
	ring   *logsink.RingCore
	mu     sync.Mutex
	reader *transfer.BytesReader
}

func (this *historyReadHandler) PrepareRead() nanorpc.Status {
	var buf bytes.Buffer
	for _, entry := range this.ring.History() {
		buf.Write(entry)
	}

	this.mu.Lock()
	this.reader = transfer.NewBytesReader(buf.Bytes())
	this.mu.Unlock()
	return nanorpc.StatusOK
}

func (this *historyReadHandler) FinalizeRead(status nanorpc.Status) {
	this.mu.Lock()
	this.reader = nil
	this.mu.Unlock()
}

func (this *historyReadHandler) Reader() transfer.Reader {
	this.mu.Lock()
	defer this.mu.Unlock()
	return this.reader
}
