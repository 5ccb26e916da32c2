package directory

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Cached keeps the last loaded universe for TTL and coalesces concurrent
// loads. A failed load keeps serving the previous good universe; with none
// it serves the fallback and retries after RetryTTL.
type Cached struct {
	Src      Source
	TTL      time.Duration // default 24h
	RetryTTL time.Duration // default 5m
	Logger   *zap.Logger

	sf    singleflight.Group
	mu    sync.RWMutex
	cur   *Universe
	until time.Time
	now   func() time.Time
}

func NewCached(src Source, ttl time.Duration, logger *zap.Logger) *Cached {
	return &Cached{Src: src, TTL: ttl, Logger: logger}
}

func (c *Cached) Universe(ctx context.Context) (*Universe, error) {
	now := c.clock()
	c.mu.RLock()
	cur, until := c.cur, c.until
	c.mu.RUnlock()
	if cur != nil && now.Before(until) {
		return cur, nil
	}

	// The shared load outlives any one caller; a caller that gives up only
	// stops waiting for it.
	ch := c.sf.DoChan("universe", func() (any, error) {
		return c.load(context.WithoutCancel(ctx))
	})
	var (
		v   any
		err error
	)
	select {
	case res := <-ch:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		return FallbackUniverse(), ctx.Err()
	}
	u, _ := v.(*Universe)
	if u == nil {
		u = FallbackUniverse()
		if err == nil {
			err = errors.New("directory returned no universe")
		}
	}
	return u, err
}

func (c *Cached) load(ctx context.Context) (*Universe, error) {
	u, err := c.Src.Universe(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case err == nil:
		c.cur, c.until = u, c.clock().Add(c.ttl())
		return u, nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// not a directory outage; leave the cache alone
		if c.cur != nil {
			return c.cur, err
		}
		return u, err
	case c.cur != nil && !c.cur.Fallback():
		c.logger().Warn("directory refresh failed, keeping previous", zap.Error(err))
		c.until = c.clock().Add(c.retryTTL())
		return c.cur, nil
	default:
		if u == nil {
			u = FallbackUniverse()
		}
		c.cur, c.until = u, c.clock().Add(c.retryTTL())
		return u, err
	}
}

// Invalidate forces the next call to reload.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	c.until = time.Time{}
	c.mu.Unlock()
}

func (c *Cached) ttl() time.Duration {
	if c.TTL <= 0 {
		return 24 * time.Hour
	}
	return c.TTL
}

func (c *Cached) retryTTL() time.Duration {
	if c.RetryTTL <= 0 {
		return 5 * time.Minute
	}
	return c.RetryTTL
}

func (c *Cached) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func (c *Cached) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
