package ratelimit

import (
	"context"
	"sync"
	"time"

	"marketpulse/internal/provider"
)

// MinInterval wraps a source and enforces a minimum time between calls.
// Concurrent calls will wait until the interval has elapsed since the last call,
// or return early if the context is canceled.
type MinInterval[T any] struct {
	P        provider.Source[T]
	Interval time.Duration
	mu       sync.Mutex
	last     time.Time
}

func (m *MinInterval[T]) Name() string { return m.P.Name() }

func (m *MinInterval[T]) Fetch(ctx context.Context, ticker string) (T, error) {
	if m.Interval > 0 {
		// reserve the next slot so concurrent callers queue up behind each other
		m.mu.Lock()
		next := m.last.Add(m.Interval)
		now := time.Now()
		if next.Before(now) {
			next = now
		}
		m.last = next
		m.mu.Unlock()
		if wait := time.Until(next); wait > 0 {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-ctx.Done():
				var zero T
				return zero, ctx.Err()
			case <-t.C:
			}
		}
	}
	return m.P.Fetch(ctx, ticker)
}
