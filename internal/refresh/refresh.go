// Package refresh schedules full and on-demand refreshes of the cache.
//
// All refresh work runs on a single worker that drains one job queue, so at
// most one refresh is in flight at a time. A scheduled tick is skipped while
// a full refresh is already queued or running. A refresh that has started
// always runs to completion.
package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"marketpulse/internal/directory"
	"marketpulse/internal/market"
	"marketpulse/internal/metrics"
	"marketpulse/internal/store"
	"marketpulse/internal/telemetry"
)

const (
	DefaultInterval   = time.Hour
	DefaultMaxTracked = 50
	DefaultQueueSize  = 16
)

var (
	// ErrQueueClosed is returned for work submitted after Run has stopped.
	ErrQueueClosed = errors.New("refresh queue closed")
	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = errors.New("orchestrator already running")
)

// Scope is what a refresh covers.
type Scope int

const (
	ScopeFull Scope = iota
	ScopeSubset
)

func (s Scope) String() string {
	if s == ScopeSubset {
		return "subset"
	}
	return "full"
}

// State is the orchestrator's observable state.
type State string

const (
	StateIdle          State = "idle"
	StateRefreshFull   State = "refreshing(full)"
	StateRefreshSubset State = "refreshing(subset)"
)

// Collector builds records for a batch of tickers.
type Collector interface {
	Collect(ctx context.Context, tickers []string) []market.TickerRecord
}

type Options struct {
	Interval   time.Duration
	Watchlist  []string // seeds the tracked set; defaults to market.DefaultTickers()
	MaxTracked int
	QueueSize  int
	Logger     *zap.Logger
}

type Orchestrator struct {
	collect Collector
	store   *store.Store
	dir     directory.Source
	opts    Options
	log     *zap.Logger

	jobs        chan *job
	stopped     chan struct{}
	stopOnce    sync.Once
	qmu         sync.RWMutex // held for reading while enqueueing
	closed      bool         // guarded by qmu
	running     atomic.Bool
	fullPending atomic.Bool
	state       atomic.Value // State

	mu      sync.Mutex
	tracked []string
	seen    map[string]struct{}
}

func New(c Collector, st *store.Store, dir directory.Source, opts Options) *Orchestrator {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxTracked <= 0 {
		opts.MaxTracked = DefaultMaxTracked
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if len(opts.Watchlist) == 0 {
		opts.Watchlist = market.DefaultTickers()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	o := &Orchestrator{
		collect: c,
		store:   st,
		dir:     dir,
		opts:    opts,
		log:     opts.Logger.Named("refresh"),
		jobs:    make(chan *job, opts.QueueSize),
		stopped: make(chan struct{}),
		seen:    make(map[string]struct{}),
	}
	o.state.Store(StateIdle)
	o.track(market.ParseTickers(opts.Watchlist...))
	return o
}

type job struct {
	id      string
	scope   Scope
	tickers []string // subset only
	done    chan struct{}
	err     error
	snap    *store.Snapshot
}

func newJob(scope Scope, tickers []string) *job {
	return &job{id: uuid.NewString(), scope: scope, tickers: tickers, done: make(chan struct{})}
}

func (j *job) finish(snap *store.Snapshot, err error) {
	j.snap, j.err = snap, err
	close(j.done)
}

// Ticket tracks one accepted on-demand request.
type Ticket struct {
	ID      string
	Tickers []string // accepted, canonical symbols
	j       *job
}

// Done is closed once the refresh has been published (or abandoned).
func (t *Ticket) Done() <-chan struct{} { return t.j.done }

// Wait blocks until the refresh is published or ctx ends.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.j.done:
		return t.j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the snapshot the refresh published; nil until Done.
func (t *Ticket) Snapshot() *store.Snapshot {
	select {
	case <-t.j.done:
		return t.j.snap
	default:
		return nil
	}
}

// Run performs the bootstrap refresh, then a full refresh every Interval,
// until ctx ends. It returns after the in-flight refresh (if any) finishes.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		o.work(ctx)
	}()

	o.scheduleFull("bootstrap")
	tick := time.NewTicker(o.opts.Interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			o.stopOnce.Do(func() { close(o.stopped) })
			// no enqueue can be in progress past this point
			o.qmu.Lock()
			o.closed = true
			o.qmu.Unlock()
			<-workerDone
			o.drain()
			return nil
		case <-tick.C:
			o.scheduleFull("timer")
		}
	}
}

// Request validates input against the directory and queues a subset refresh
// for the known symbols. Unknown symbols are dropped silently; when nothing
// is left the returned ticket is nil and so is the error.
func (o *Orchestrator) Request(ctx context.Context, input []string) (*Ticket, error) {
	tickers := market.ParseTickers(input...)
	if len(tickers) == 0 {
		return nil, nil
	}
	uni, err := o.dir.Universe(ctx)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		o.log.Warn("directory unavailable, validating against fallback", zap.Error(err))
	}
	if uni == nil {
		uni = directory.FallbackUniverse()
	}
	accepted := uni.Filter(tickers)
	if dropped := len(tickers) - len(accepted); dropped > 0 {
		o.log.Debug("dropped unknown tickers", zap.Strings("input", tickers), zap.Strings("accepted", accepted))
	}
	if len(accepted) == 0 {
		return nil, nil
	}
	o.track(accepted)

	j := newJob(ScopeSubset, accepted)
	o.qmu.RLock()
	defer o.qmu.RUnlock()
	if o.closed {
		return nil, ErrQueueClosed
	}
	select {
	case o.jobs <- j:
		metrics.QueueDepth.Set(float64(len(o.jobs)))
	case <-o.stopped:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	o.log.Debug("subset refresh queued", zap.String("run_id", j.id), zap.Strings("tickers", accepted))
	return &Ticket{ID: j.id, Tickers: accepted, j: j}, nil
}

// State reports what the worker is doing right now.
func (o *Orchestrator) State() State { return o.state.Load().(State) }

// Tracked returns the symbols considered for full refreshes, before
// directory validation.
func (o *Orchestrator) Tracked() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.tracked...)
}

func (o *Orchestrator) track(tickers []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, t := range tickers {
		if _, ok := o.seen[t]; ok {
			continue
		}
		if len(o.tracked) >= o.opts.MaxTracked {
			o.log.Debug("tracked set full", zap.String("ticker", t), zap.Int("max", o.opts.MaxTracked))
			continue
		}
		o.seen[t] = struct{}{}
		o.tracked = append(o.tracked, t)
	}
}

func (o *Orchestrator) scheduleFull(reason string) {
	if !o.fullPending.CompareAndSwap(false, true) {
		metrics.RefreshesSkipped.Inc()
		o.log.Debug("full refresh already pending, tick skipped", zap.String("reason", reason))
		return
	}
	j := newJob(ScopeFull, nil)
	select {
	case o.jobs <- j:
		metrics.QueueDepth.Set(float64(len(o.jobs)))
	default:
		o.fullPending.Store(false)
		metrics.RefreshesSkipped.Inc()
		o.log.Warn("refresh queue full, tick skipped", zap.String("reason", reason))
	}
}

func (o *Orchestrator) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-o.jobs:
			metrics.QueueDepth.Set(float64(len(o.jobs)))
			o.execute(ctx, j)
		}
	}
}

// drain fails whatever was queued but never started.
func (o *Orchestrator) drain() {
	for {
		select {
		case j := <-o.jobs:
			j.finish(nil, ErrQueueClosed)
		default:
			metrics.QueueDepth.Set(0)
			return
		}
	}
}

func (o *Orchestrator) execute(parent context.Context, j *job) {
	// Detached so shutdown does not abort a refresh that already started.
	ctx := context.WithoutCancel(parent)
	if j.scope == ScopeFull {
		o.state.Store(StateRefreshFull)
		defer o.fullPending.Store(false)
	} else {
		o.state.Store(StateRefreshSubset)
	}
	defer o.state.Store(StateIdle)

	tickers := j.tickers
	if j.scope == ScopeFull {
		tickers = o.universe(ctx)
	}

	ctx, span := telemetry.StartSpan(ctx, "refresh."+j.scope.String(),
		attribute.String("run_id", j.id),
		attribute.Int("tickers", len(tickers)))
	log := o.log.With(zap.String("run_id", j.id), zap.Stringer("scope", j.scope))
	if tid := telemetry.TraceID(ctx); tid != "" {
		log = log.With(zap.String("trace_id", tid))
	}
	log.Info("refresh started", zap.Strings("tickers", tickers))
	start := time.Now()

	records := o.collect.Collect(ctx, tickers)

	var snap *store.Snapshot
	if j.scope == ScopeFull {
		snap = o.store.PublishFull(records)
	} else {
		snap = o.store.PublishSubset(records)
	}

	outcome, failed := classify(records)
	took := time.Since(start)
	metrics.Refreshes.WithLabelValues(j.scope.String(), outcome).Inc()
	metrics.RefreshDuration.WithLabelValues(j.scope.String()).Observe(took.Seconds())
	span.SetAttributes(attribute.String("outcome", outcome), attribute.Int64("version", int64(snap.Version)))
	telemetry.End(span, nil)

	fields := []zap.Field{
		zap.Int("records", len(records)),
		zap.Int("failed", failed),
		zap.Uint64("version", snap.Version),
		zap.Duration("took", took),
	}
	if failed > 0 {
		log.Warn("refresh published with failures", fields...)
	} else {
		log.Info("refresh published", fields...)
	}
	j.finish(snap, nil)
}

// universe is the tracked set validated against the directory, or the
// directory's fallback set when nothing validates.
func (o *Orchestrator) universe(ctx context.Context) []string {
	uni, err := o.dir.Universe(ctx)
	if err != nil {
		o.log.Warn("directory unavailable", zap.Error(err), zap.Bool("fallback", uni != nil && uni.Fallback()))
	}
	if uni == nil {
		uni = directory.FallbackUniverse()
	}
	if got := uni.Filter(o.Tracked()); len(got) > 0 {
		return got
	}
	return directory.FallbackUniverse().Symbols()
}

func classify(records []market.TickerRecord) (outcome string, failed int) {
	partial := false
	for _, r := range records {
		if r.Failed() {
			failed++
		} else if len(r.SourceErrors) > 0 {
			partial = true
		}
	}
	switch {
	case len(records) > 0 && failed == len(records):
		return "failed", failed
	case failed > 0 || partial:
		return "partial", failed
	}
	return "ok", failed
}
