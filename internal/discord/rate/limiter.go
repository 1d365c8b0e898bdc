package rate

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Limiter spaces out Discord API requests with random jitter.
// Concurrent callers are handed consecutive slots.
type Limiter struct {
	mu       sync.Mutex
	next     time.Time
	interval time.Duration
	jitter   time.Duration
}

// New creates a rate limiter with base interval and jitter.
// For example, interval=1s and jitter=200ms will result in delays between 800ms-1200ms.
func New(interval, jitter time.Duration) *Limiter {
	return &Limiter{
		interval: max(interval, 0),
		jitter:   min(max(jitter, 0), interval),
	}
}

// Wait reserves the next free slot and blocks until it is reached.
// The first call returns immediately.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()

	slot := l.next
	if slot.Before(now) {
		slot = now
	}

	l.next = slot.Add(l.delay())
	l.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) delay() time.Duration {
	if l.jitter <= 0 {
		return l.interval
	}

	return l.interval + rand.N(2*l.jitter) - l.jitter
}
