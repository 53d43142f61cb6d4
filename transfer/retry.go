package transfer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// retryTimer is the one-shot timer collaborator described for transfer
// retries: InvokeAfter arms a single pending callback, Cancel disarms it.
// clock.Timer.Stop does not guarantee the timer's goroutine hasn't
// already fired and queued its function, so a generation counter guards
// against a stale fire running after Cancel or after a newer InvokeAfter
// has superseded it.
type retryTimer struct {
	clock clock.Clock

	mu         sync.Mutex
	timer      *clock.Timer
	generation atomic.Uint64
}

func newRetryTimer(c clock.Clock) *retryTimer {
	if c == nil {
		c = clock.New()
	}
	return &retryTimer{clock: c}
}

// InvokeAfter arms callback to run after d, replacing and disarming any
// previously pending callback.
func (this *retryTimer) InvokeAfter(d time.Duration, callback func()) {
	this.mu.Lock()
	defer this.mu.Unlock()

	if this.timer != nil {
		this.timer.Stop()
	}
	generation := this.generation.Add(1)
	this.timer = this.clock.AfterFunc(d, func() {
		if this.generation.Load() == generation {
			callback()
		}
	})
}

// Cancel disarms the pending callback, if any. The callback may still run
// once more if it had already fired before Cancel was called; callers
// must tolerate that via their own state checks rather than assuming
// Cancel is synchronous with respect to an in-flight fire.
func (this *retryTimer) Cancel() {
	this.mu.Lock()
	defer this.mu.Unlock()

	this.generation.Add(1)
	if this.timer != nil {
		this.timer.Stop()
		this.timer = nil
	}
}
