package transfer

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// WorkQueue is the bounded external queue the transfer client defers its
// stream I/O to, so a slow Reader/Writer never blocks the packet-arrival
// thread that calls Client.ProcessPacket. Concurrency across distinct
// keys (transfer ids) is bounded by a semaphore.Weighted; tasks queued
// under the same key run one at a time in submission order, preserving
// the wire order guarantee within one transfer.
type WorkQueue struct {
	sem *semaphore.Weighted
	log *zap.Logger

	mu      sync.Mutex
	pending map[uint32][]func()
	running map[uint32]bool
}

// NewWorkQueue creates a WorkQueue that runs at most concurrency keys'
// worth of work at once.
func NewWorkQueue(concurrency int64, log *zap.Logger) *WorkQueue {
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkQueue{
		sem:     semaphore.NewWeighted(concurrency),
		log:     log.Named("transfer.workqueue"),
		pending: make(map[uint32][]func()),
		running: make(map[uint32]bool),
	}
}

// Submit enqueues task under key. If no worker is currently draining
// key's queue, one is started.
func (this *WorkQueue) Submit(key uint32, task func()) {
	this.mu.Lock()
	this.pending[key] = append(this.pending[key], task)
	alreadyRunning := this.running[key]
	this.running[key] = true
	this.mu.Unlock()

	if !alreadyRunning {
		go this.drain(key)
	}
}

func (this *WorkQueue) drain(key uint32) {
	if err := this.sem.Acquire(context.Background(), 1); err != nil {
		this.log.Warn("failed to acquire work queue slot", zap.Error(err))
		this.mu.Lock()
		this.running[key] = false
		this.mu.Unlock()
		return
	}
	defer this.sem.Release(1)

	for {
		this.mu.Lock()
		tasks := this.pending[key]
		if len(tasks) == 0 {
			this.running[key] = false
			delete(this.pending, key)
			this.mu.Unlock()
			return
		}
		task := tasks[0]
		this.pending[key] = tasks[1:]
		this.mu.Unlock()

		task()
	}
}
