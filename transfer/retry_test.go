package transfer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryTimerFiresAfterDuration(t *testing.T) {
	mock := clock.NewMock()
	timer := newRetryTimer(mock)

	var fired atomic.Bool
	timer.InvokeAfter(time.Second, func() { fired.Store(true) })

	mock.Add(999 * time.Millisecond)
	assert.False(t, fired.Load())

	mock.Add(2 * time.Millisecond)
	require.Eventually(t, fired.Load, time.Second, time.Millisecond)
}

func TestRetryTimerCancelDisarms(t *testing.T) {
	mock := clock.NewMock()
	timer := newRetryTimer(mock)

	var fired atomic.Bool
	timer.InvokeAfter(time.Second, func() { fired.Store(true) })
	timer.Cancel()

	mock.Add(2 * time.Second)
	assert.False(t, fired.Load())
}

func TestRetryTimerNewInvokeAfterSupersedesPrevious(t *testing.T) {
	mock := clock.NewMock()
	timer := newRetryTimer(mock)

	var firstFired, secondFired atomic.Bool
	timer.InvokeAfter(time.Second, func() { firstFired.Store(true) })
	timer.InvokeAfter(2*time.Second, func() { secondFired.Store(true) })

	mock.Add(time.Second)
	assert.False(t, firstFired.Load(), "superseded callback must not fire")
	assert.False(t, secondFired.Load())

	mock.Add(time.Second)
	require.Eventually(t, secondFired.Load, time.Second, time.Millisecond)
	assert.False(t, firstFired.Load())
}
