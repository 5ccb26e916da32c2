package refresh

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"marketpulse/internal/aggregate"
	"marketpulse/internal/directory"
	"marketpulse/internal/market"
	"marketpulse/internal/provider"
	"marketpulse/internal/sentiment"
	"marketpulse/internal/store"
)

// genCollector stamps every record with the current generation as its price.
type genCollector struct {
	gen      atomic.Int64
	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
	block    chan struct{} // when set, Collect waits on it
	sawErr   atomic.Value  // ctx.Err() observed after unblocking
}

func (c *genCollector) Collect(ctx context.Context, tickers []string) []market.TickerRecord {
	c.calls.Add(1)
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	if n > c.peak.Load() {
		c.peak.Store(n)
	}
	if c.block != nil {
		<-c.block
		c.sawErr.Store(errString(ctx.Err()))
	}
	p := float64(c.gen.Load())
	out := make([]market.TickerRecord, len(tickers))
	for i, t := range tickers {
		price := p
		out[i] = market.TickerRecord{Ticker: t, Price: &price}
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

type failingDir struct{ calls atomic.Int32 }

func (d *failingDir) Universe(context.Context) (*directory.Universe, error) {
	d.calls.Add(1)
	return directory.FallbackUniverse(), directory.ErrUnavailable
}

func static(symbols ...string) directory.Source {
	return directory.Static{U: directory.NewUniverse(symbols)}
}

func start(t *testing.T, o *Orchestrator) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return")
		}
	}
}

func waitVersion(t *testing.T, st *store.Store, v uint64) {
	require.Eventually(t, func() bool { return st.Load().Version >= v }, 5*time.Second, 5*time.Millisecond)
}

func TestRun_BootstrapScenario(t *testing.T) {
	// Arrange
	price := provider.SourceFunc[provider.Quote]{N: "price", F: func(ctx context.Context, tk string) (provider.Quote, error) {
		return provider.Quote{
			Symbol:  tk,
			Price:   150.00,
			History: []provider.Close{{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Price: 148.0}},
		}, nil
	}}
	news := provider.SourceFunc[[]provider.Item]{N: "news", F: func(ctx context.Context, tk string) ([]provider.Item, error) {
		return []provider.Item{{Title: "beat"}, {Title: "miss"}}, nil
	}}
	social := provider.SourceFunc[[]provider.Item]{N: "social", F: func(ctx context.Context, tk string) ([]provider.Item, error) {
		return nil, nil
	}}
	scores := sentiment.ScorerFunc(func(s string) float64 { return map[string]float64{"beat": 0.5, "miss": -0.1}[s] })
	agg := aggregate.New(aggregate.Sources{Price: price, News: news, Social: social},
		aggregate.Options{Scorer: scores, Logger: zaptest.NewLogger(t)})
	st := store.New()
	o := New(agg, st, static("AAPL", "TSLA"), Options{Logger: zaptest.NewLogger(t)})

	// Act
	stop := start(t, o)
	defer stop()
	waitVersion(t, st, 1)

	// Assert
	snap := st.Load()
	require.Equal(t, 2, snap.Len())
	aapl, ok := snap.Records["AAPL"]
	require.True(t, ok)
	_, ok = snap.Records["TSLA"]
	require.True(t, ok)
	_, ok = snap.Records["MSFT"]
	assert.False(t, ok)

	require.NotNil(t, aapl.Price)
	assert.Equal(t, 150.00, *aapl.Price)
	assert.Equal(t, []market.PricePoint{{Date: "2024-01-01", Close: 148.0}}, aapl.History)
	assert.Equal(t, 0.1, aapl.Sentiment)
}

func TestRequest_DropsUnknownTickers(t *testing.T) {
	// Arrange
	c := &genCollector{}
	st := store.New()
	o := New(c, st, static("AAPL"), Options{Logger: zaptest.NewLogger(t)})
	stop := start(t, o)
	defer stop()
	waitVersion(t, st, 1)

	// Act
	tk, err := o.Request(context.Background(), []string{"aapl, xyz123"})

	// Assert
	require.NoError(t, err)
	require.NotNil(t, tk)
	assert.Equal(t, []string{"AAPL"}, tk.Tickers)
	require.NoError(t, tk.Wait(context.Background()))
	require.NotNil(t, tk.Snapshot())
	assert.Equal(t, []string{"AAPL"}, keys(tk.Snapshot()))
}

func TestRequest_NothingAccepted(t *testing.T) {
	o := New(&genCollector{}, store.New(), static("AAPL"), Options{})

	tk, err := o.Request(context.Background(), []string{"xyz123, , QQQQQ"})
	assert.NoError(t, err)
	assert.Nil(t, tk)

	tk, err = o.Request(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, tk)
}

func TestRun_DirectoryDownFallsBack(t *testing.T) {
	// Arrange
	c := &genCollector{}
	st := store.New()
	dir := &failingDir{}
	o := New(c, st, dir, Options{Interval: 20 * time.Millisecond, Watchlist: []string{"NVDA"}, Logger: zaptest.NewLogger(t)})

	// Act
	stop := start(t, o)
	defer stop()
	waitVersion(t, st, 2)

	// Assert
	snap := st.Load()
	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, keys(snap))
	assert.GreaterOrEqual(t, dir.calls.Load(), int32(2))
}

func TestRequest_SubsetLeavesOtherRecords(t *testing.T) {
	// Arrange
	c := &genCollector{}
	st := store.New()
	o := New(c, st, static("AAPL", "TSLA", "MSFT", "NVDA"), Options{Logger: zaptest.NewLogger(t)})
	stop := start(t, o)
	defer stop()
	waitVersion(t, st, 1)
	before := st.Load()

	// Act
	c.gen.Store(7)
	tk, err := o.Request(context.Background(), []string{"tsla", "nvda"})
	require.NoError(t, err)
	require.NoError(t, tk.Wait(context.Background()))

	// Assert
	after := st.Load()
	assert.Equal(t, []string{"AAPL", "MSFT", "NVDA", "TSLA"}, keys(after))
	assert.Equal(t, 7.0, *after.Records["TSLA"].Price)
	assert.Equal(t, 7.0, *after.Records["NVDA"].Price)
	assert.Same(t, before.Records["AAPL"].Price, after.Records["AAPL"].Price)
	assert.Same(t, before.Records["MSFT"].Price, after.Records["MSFT"].Price)
	assert.Contains(t, o.Tracked(), "NVDA")
}

func TestRun_FullRefreshOneRecordPerTicker(t *testing.T) {
	c := &genCollector{}
	st := store.New()
	o := New(c, st, static("AAPL", "TSLA", "MSFT"),
		Options{Watchlist: []string{"aapl,tsla", "AAPL", "msft"}, Logger: zaptest.NewLogger(t)})

	stop := start(t, o)
	defer stop()
	waitVersion(t, st, 1)

	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, keys(st.Load()))
	assert.Len(t, st.Read(), 3)
}

func TestOrchestrator_SerializesRefreshes(t *testing.T) {
	// Arrange
	c := &genCollector{block: make(chan struct{})}
	st := store.New()
	o := New(c, st, static("AAPL", "TSLA"), Options{Logger: zaptest.NewLogger(t)})
	stop := start(t, o)
	defer stop()
	require.Eventually(t, func() bool { return o.State() == StateRefreshFull }, 5*time.Second, time.Millisecond)

	// Act
	t1, err := o.Request(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	t2, err := o.Request(context.Background(), []string{"TSLA"})
	require.NoError(t, err)
	close(c.block)
	require.NoError(t, t1.Wait(context.Background()))
	require.NoError(t, t2.Wait(context.Background()))

	// Assert
	assert.Equal(t, int32(1), c.peak.Load())
	assert.Equal(t, int32(3), c.calls.Load())
	assert.Equal(t, uint64(3), st.Load().Version)
	require.Eventually(t, func() bool { return o.State() == StateIdle }, time.Second, time.Millisecond)
}

func TestOrchestrator_SkipsTickWhileFullPending(t *testing.T) {
	o := New(&genCollector{}, store.New(), static("AAPL"), Options{})

	o.scheduleFull("timer")
	o.scheduleFull("timer")

	assert.Len(t, o.jobs, 1)
	assert.True(t, o.fullPending.Load())
}

func TestRun_DoesNotCancelInFlightRefresh(t *testing.T) {
	// Arrange
	c := &genCollector{block: make(chan struct{})}
	st := store.New()
	o := New(c, st, static("AAPL"), Options{Logger: zaptest.NewLogger(t)})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()
	require.Eventually(t, func() bool { return o.State() == StateRefreshFull }, 5*time.Second, time.Millisecond)

	// Act
	cancel()
	select {
	case <-done:
		t.Fatal("Run returned while a refresh was in flight")
	case <-time.After(20 * time.Millisecond):
	}
	close(c.block)

	// Assert
	require.NoError(t, <-done)
	assert.Equal(t, "", c.sawErr.Load())
	assert.Equal(t, uint64(1), st.Load().Version)

	_, err := o.Request(context.Background(), []string{"AAPL"})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

type slowDir struct{ delay time.Duration }

func (d slowDir) Universe(ctx context.Context) (*directory.Universe, error) {
	select {
	case <-time.After(d.delay):
		return directory.NewUniverse([]string{"AAPL", "NVDA"}), nil
	case <-ctx.Done():
		return directory.FallbackUniverse(), fmt.Errorf("%w: %w", directory.ErrUnavailable, ctx.Err())
	}
}

func TestRequest_CallerTimeoutKeepsDirectoryUsable(t *testing.T) {
	// Arrange
	dir := directory.NewCached(slowDir{delay: 100 * time.Millisecond}, time.Hour, zaptest.NewLogger(t))
	o := New(&genCollector{}, store.New(), dir, Options{Logger: zaptest.NewLogger(t)})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Act
	tk, err := o.Request(ctx, []string{"NVDA"})
	tk2, err2 := o.Request(context.Background(), []string{"NVDA"})

	// Assert
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, tk)
	require.NoError(t, err2)
	require.NotNil(t, tk2)
	assert.Equal(t, []string{"NVDA"}, tk2.Tickers)
}

func TestRequest_RacingShutdownAlwaysFinishesTickets(t *testing.T) {
	for i := 0; i < 50; i++ {
		o := New(&genCollector{}, store.New(), static("AAPL"), Options{})
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- o.Run(ctx) }()

		tickets := make(chan *Ticket, 64)
		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for k := 0; k < 4; k++ {
					tk, err := o.Request(context.Background(), []string{"AAPL"})
					if err == nil && tk != nil {
						tickets <- tk
					}
				}
			}()
		}
		cancel()
		wg.Wait()
		require.NoError(t, <-done)
		close(tickets)

		for tk := range tickets {
			select {
			case <-tk.Done():
			case <-time.After(5 * time.Second):
				t.Fatalf("ticket %s accepted during shutdown never finished", tk.ID)
			}
		}
	}
}

func TestRun_Twice(t *testing.T) {
	st := store.New()
	o := New(&genCollector{}, st, static("AAPL"), Options{})
	stop := start(t, o)
	defer stop()
	waitVersion(t, st, 1)

	err := o.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestTrack_RespectsMax(t *testing.T) {
	o := New(&genCollector{}, store.New(), static("AAPL"), Options{MaxTracked: 3})

	o.track([]string{"NVDA", "AAPL"})

	assert.Equal(t, []string{"AAPL", "TSLA", "MSFT"}, o.Tracked())
}

func TestClassify(t *testing.T) {
	ok := market.TickerRecord{Ticker: "A"}
	partial := market.TickerRecord{Ticker: "B", SourceErrors: map[string]string{"news": "x"}}
	failed := market.TickerRecord{Ticker: "C", Error: "x"}

	out, n := classify([]market.TickerRecord{ok})
	assert.Equal(t, "ok", out)
	assert.Zero(t, n)

	out, _ = classify([]market.TickerRecord{ok, partial})
	assert.Equal(t, "partial", out)

	out, n = classify([]market.TickerRecord{ok, failed})
	assert.Equal(t, "partial", out)
	assert.Equal(t, 1, n)

	out, _ = classify([]market.TickerRecord{failed})
	assert.Equal(t, "failed", out)
}

func TestScope_String(t *testing.T) {
	assert.Equal(t, "full", ScopeFull.String())
	assert.Equal(t, "subset", ScopeSubset.String())
}

func keys(s *store.Snapshot) []string {
	recs := make([]market.TickerRecord, 0, s.Len())
	for _, r := range s.Records {
		recs = append(recs, r)
	}
	market.SortRecords(recs)
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Ticker
	}
	return out
}
