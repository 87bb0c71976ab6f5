package stream

import (
	"math"
	"time"
)

// Default reconnection policy.
const (
	DefaultBaseDelay        = time.Second
	DefaultMaxRetryAttempts = 5
	DefaultConnectTimeout   = 5 * time.Second
)

// Backoff is the exponential reconnection policy.
type Backoff struct {
	// Base is the delay before the first retry.
	Base time.Duration
	// MaxAttempts is the retry ceiling. The close that brings the retry
	// counter to MaxAttempts is terminal.
	MaxAttempts int
}

// DefaultBackoff returns the 1s base / 5 attempts policy.
func DefaultBackoff() Backoff {
	return Backoff{Base: DefaultBaseDelay, MaxAttempts: DefaultMaxRetryAttempts}
}

// Delay returns the wait before retry number attempt (1-based):
// Base * 2^(attempt-1), saturating instead of overflowing.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		if d > math.MaxInt64/2 {
			return time.Duration(math.MaxInt64)
		}
		d *= 2
	}
	return d
}

// next advances the retry counter after an unexpected close. It returns the
// new counter, the delay to wait, and false when the ceiling has been reached.
func (b Backoff) next(current int) (int, time.Duration, bool) {
	if current >= b.MaxAttempts {
		return b.MaxAttempts, 0, false
	}
	n := current + 1
	if n >= b.MaxAttempts {
		return n, 0, false
	}
	return n, b.Delay(n), true
}
