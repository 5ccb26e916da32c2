package ratelimit

import (
	"context"
	"sync"
	"time"

	"marketpulse/internal/provider"
)

// TokenBucket is a token bucket limiter.
// - rate: tokens per second
// - capacity: maximum tokens the bucket can hold (burst)
type TokenBucket struct {
	rate     float64
	capacity float64

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

func NewTokenBucket(tokensPerSecond float64, burst int) *TokenBucket {
	if tokensPerSecond <= 0 {
		tokensPerSecond = 0.0000001
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		rate:     tokensPerSecond,
		capacity: float64(burst),
		tokens:   float64(burst), // start full to allow an initial burst
		last:     time.Now(),
	}
}

// PerMinute is NewTokenBucket expressed in requests per minute.
func PerMinute(rpm, burst int) *TokenBucket {
	return NewTokenBucket(float64(rpm)/60.0, burst)
}

// Wait blocks until one token is available or context is canceled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		if elapsed := now.Sub(tb.last).Seconds(); elapsed > 0 {
			tb.tokens += elapsed * tb.rate
			if tb.tokens > tb.capacity {
				tb.tokens = tb.capacity
			}
			tb.last = now
		}
		if tb.tokens >= 1 {
			tb.tokens -= 1
			tb.mu.Unlock()
			return nil
		}
		deficit := 1 - tb.tokens
		tb.mu.Unlock()

		waitDur := time.Duration(deficit / tb.rate * float64(time.Second))
		if waitDur <= 0 {
			waitDur = time.Millisecond
		}
		timer := time.NewTimer(waitDur)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TokenBucketSource wraps a Source and gates calls using a token bucket.
type TokenBucketSource[T any] struct {
	P  provider.Source[T]
	TB *TokenBucket
}

func (t *TokenBucketSource[T]) Name() string { return t.P.Name() }

func (t *TokenBucketSource[T]) Fetch(ctx context.Context, ticker string) (T, error) {
	if t.TB != nil {
		if err := t.TB.Wait(ctx); err != nil {
			var zero T
			return zero, err
		}
	}
	return t.P.Fetch(ctx, ticker)
}

// Wrap prefers a token bucket when rpm is set, then a minimum interval,
// and otherwise returns p unchanged.
func Wrap[T any](p provider.Source[T], rpm, burst int, minInterval time.Duration) provider.Source[T] {
	switch {
	case rpm > 0:
		return &TokenBucketSource[T]{P: p, TB: PerMinute(rpm, burst)}
	case minInterval > 0:
		return &MinInterval[T]{P: p, Interval: minInterval}
	}
	return p
}
