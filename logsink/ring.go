package logsink

import (
	"sync"

	"go.uber.org/zap/zapcore"
)

// RingCore is a zapcore.Core that keeps the last capacity encoded
// entries in memory and notifies a set of subscribers as new ones
// arrive, so a logservice can tail new lines over a streaming RPC call
// and serve the retained history over the transfer protocol.
type RingCore struct {
	zapcore.LevelEnabler
	encoder zapcore.Encoder

	mu          sync.Mutex
	capacity    int
	entries     [][]byte
	start       int
	subscribers map[int]func([]byte)
	nextSubID   int
}

// NewRingCore creates a RingCore retaining at most capacity encoded
// entries, encoding with enc and gated by enabler.
func NewRingCore(enc zapcore.Encoder, enabler zapcore.LevelEnabler, capacity int) *RingCore {
	return &RingCore{
		LevelEnabler: enabler,
		encoder:      enc,
		capacity:     capacity,
		entries:      make([][]byte, 0, capacity),
		subscribers:  make(map[int]func([]byte)),
	}
}

func (this *RingCore) With(fields []zapcore.Field) zapcore.Core {
	clone := this.encoder.Clone()
	for _, f := range fields {
		f.AddTo(clone)
	}
	return &RingCore{
		LevelEnabler: this.LevelEnabler,
		encoder:      clone,
		capacity:     this.capacity,
		entries:      this.entries,
		subscribers:  this.subscribers,
	}
}

func (this *RingCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if this.Enabled(entry.Level) {
		return checked.AddCore(entry, this)
	}
	return checked
}

func (this *RingCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	buf, err := this.encoder.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}
	line := append([]byte(nil), buf.Bytes()...)
	buf.Free()

	this.mu.Lock()
	if len(this.entries) < this.capacity {
		this.entries = append(this.entries, line)
	} else {
		this.entries[this.start] = line
		this.start = (this.start + 1) % this.capacity
	}
	subscribers := make([]func([]byte), 0, len(this.subscribers))
	for _, fn := range this.subscribers {
		subscribers = append(subscribers, fn)
	}
	this.mu.Unlock()

	for _, fn := range subscribers {
		fn(line)
	}
	return nil
}

func (this *RingCore) Sync() error {
	return nil
}

// Subscribe registers fn to be called with every entry written from now
// on. The returned function unregisters it.
func (this *RingCore) Subscribe(fn func([]byte)) (unsubscribe func()) {
	this.mu.Lock()
	id := this.nextSubID
	this.nextSubID++
	this.subscribers[id] = fn
	this.mu.Unlock()

	return func() {
		this.mu.Lock()
		delete(this.subscribers, id)
		this.mu.Unlock()
	}
}

// History returns a copy of the retained entries in chronological order,
// oldest first.
func (this *RingCore) History() [][]byte {
	this.mu.Lock()
	defer this.mu.Unlock()

	out := make([][]byte, len(this.entries))
	for i := range this.entries {
		out[i] = this.entries[(this.start+i)%this.capacity]
	}
	return out
}
