package stream

import (
	"sync"
	"time"
)

// retryTimer is the single cancellable timer owned by a Client's run loop.
// Cancel is idempotent and safe to call from any goroutine.
type retryTimer struct {
	mu sync.Mutex
	t  *time.Timer
}

// Schedule replaces any pending timer and returns the channel that fires after d.
func (r *retryTimer) Schedule(d time.Duration) <-chan time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.t != nil {
		r.t.Stop()
	}
	r.t = time.NewTimer(d)
	return r.t.C
}

// Cancel stops the pending timer. It reports whether a timer was stopped
// before firing.
func (r *retryTimer) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.t == nil {
		return false
	}
	stopped := r.t.Stop()
	r.t = nil
	return stopped
}

// Pending reports whether a timer is scheduled and not yet cancelled.
func (r *retryTimer) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.t != nil
}
