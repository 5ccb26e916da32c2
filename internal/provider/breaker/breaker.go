// Package breaker trips a circuit around a misbehaving upstream source so
// refreshes fail fast instead of waiting out every timeout.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"marketpulse/internal/provider"
)

// Settings tune the breaker. Zero values get defaults.
type Settings struct {
	MinRequests  uint32        // requests in a window before the ratio is considered (default 5)
	FailureRatio float64       // trip at or above this failure ratio (default 0.6)
	Interval     time.Duration // closed-state counting window (default 1m)
	OpenTimeout  time.Duration // time spent open before probing (default 30s)
}

// Source wraps a provider.Source with a circuit breaker.
type Source[T any] struct {
	P  provider.Source[T]
	cb *gobreaker.CircuitBreaker
}

func New[T any](p provider.Source[T], s Settings, logger *zap.Logger) *Source[T] {
	if s.MinRequests == 0 {
		s.MinRequests = 5
	}
	if s.FailureRatio <= 0 {
		s.FailureRatio = 0.6
	}
	if s.Interval <= 0 {
		s.Interval = time.Minute
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 1,
		Interval:    s.Interval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= s.MinRequests && failureRatio >= s.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("source", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// An unknown symbol is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, provider.ErrNotFound)
		},
	})
	return &Source[T]{P: p, cb: cb}
}

func (b *Source[T]) Name() string { return b.P.Name() }

// State exposes the breaker state for health reporting.
func (b *Source[T]) State() string { return b.cb.State().String() }

func (b *Source[T]) Fetch(ctx context.Context, ticker string) (T, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.P.Fetch(ctx, ticker)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, fmt.Errorf("%s: %v: %w", b.P.Name(), err, provider.ErrUnavailable)
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
