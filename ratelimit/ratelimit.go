package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter bounds outbound calls to at most max grants per rolling window.
// Each Acquire reserves the earliest slot still free and sleeps until it,
// so callers are admitted in arrival order. Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	grants []time.Time
}

func New(max int, window time.Duration) *Limiter {
	if max < 1 {
		max = 1
	}
	return &Limiter{
		max:    max,
		window: window,
	}
}

// Acquire blocks until issuing one more call would not exceed the limit.
// It fails only when ctx is cancelled before the reserved slot arrives.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	at := l.reserve(time.Now())

	wait := time.Until(at)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		l.release(at)
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// reserve assigns the caller a grant time and records it. With fewer than
// max grants in the window the slot is immediate; otherwise it opens when
// the max-th most recent grant leaves the window.
func (l *Limiter) reserve(now time.Time) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Grants older than one window ago can no longer saturate anything
	cutoff := now.Add(-l.window)
	for len(l.grants) > 0 && l.grants[0].Before(cutoff) {
		l.grants = l.grants[1:]
	}

	at := now
	if len(l.grants) >= l.max {
		if opens := l.grants[len(l.grants)-l.max].Add(l.window); opens.After(at) {
			at = opens
		}
	}
	l.grants = append(l.grants, at)
	return at
}

// release withdraws a reservation that was never used (cancelled waiter).
func (l *Limiter) release(at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.grants) - 1; i >= 0; i-- {
		if l.grants[i].Equal(at) {
			l.grants = append(l.grants[:i], l.grants[i+1:]...)
			return
		}
	}
}
