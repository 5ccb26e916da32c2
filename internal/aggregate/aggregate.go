// Package aggregate fans out to every source for a batch of tickers and
// merges the answers into market.TickerRecord values.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"marketpulse/internal/market"
	"marketpulse/internal/metrics"
	"marketpulse/internal/provider"
	"marketpulse/internal/sentiment"
	"marketpulse/internal/telemetry"
)

const (
	DefaultMaxConcurrency = 10
	DefaultSourceTimeout  = 5 * time.Second
)

// ErrAllSourcesFailed marks a ticker for which no source answered.
var ErrAllSourcesFailed = errors.New("all sources failed")

// Sources are the three upstreams consulted for every ticker. A nil source
// is reported as unavailable.
type Sources struct {
	Price  provider.PriceSource
	News   provider.ItemSource
	Social provider.ItemSource
}

type Options struct {
	MaxConcurrency int           // tickers in flight at once
	SourceTimeout  time.Duration // per source call
	Scorer         sentiment.Scorer
	Logger         *zap.Logger
	Now            func() time.Time
}

type Aggregator struct {
	src  Sources
	opts Options
	log  *zap.Logger
}

func New(src Sources, opts Options) *Aggregator {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = DefaultSourceTimeout
	}
	if opts.Scorer == nil {
		opts.Scorer = sentiment.Lexicon{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Aggregator{src: src, opts: opts, log: opts.Logger.Named("aggregate")}
}

// Collect builds one record per distinct ticker, in input order. It returns
// once every ticker task has finished; failures are carried inside records.
func (a *Aggregator) Collect(ctx context.Context, tickers []string) []market.TickerRecord {
	tickers = dedup(tickers)
	out := make([]market.TickerRecord, len(tickers))
	if len(tickers) == 0 {
		return out
	}

	ctx, span := telemetry.StartSpan(ctx, "aggregate.collect", attribute.Int("tickers", len(tickers)))
	defer span.End()

	g := new(errgroup.Group)
	g.SetLimit(a.opts.MaxConcurrency)
	for i, t := range tickers {
		g.Go(func() error {
			out[i] = a.collectOne(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	var failed, partial int
	for _, r := range out {
		switch {
		case r.Failed():
			failed++
		case len(r.SourceErrors) > 0:
			partial++
		}
	}
	if failed > 0 {
		metrics.TickerFailures.Add(float64(failed))
	}
	span.SetAttributes(attribute.Int("failed", failed), attribute.Int("partial", partial))
	a.log.Debug("batch collected",
		zap.Int("tickers", len(out)),
		zap.Int("failed", failed),
		zap.Int("partial", partial))
	return out
}

type result[T any] struct {
	val T
	err *provider.Error
}

func (a *Aggregator) collectOne(ctx context.Context, ticker string) market.TickerRecord {
	ctx, span := telemetry.StartSpan(ctx, "aggregate.ticker", attribute.String("ticker", ticker))

	var (
		wg     sync.WaitGroup
		price  result[provider.Quote]
		news   result[[]provider.Item]
		social result[[]provider.Item]
	)
	wg.Add(3)
	go func() { defer wg.Done(); price = call(ctx, a.opts.SourceTimeout, a.src.Price, "price", ticker) }()
	go func() { defer wg.Done(); news = call(ctx, a.opts.SourceTimeout, a.src.News, "news", ticker) }()
	go func() { defer wg.Done(); social = call(ctx, a.opts.SourceTimeout, a.src.Social, "social", ticker) }()
	wg.Wait()

	rec := a.merge(ticker, price, news, social)
	if rec.Failed() {
		telemetry.End(span, errors.New(rec.Error))
	} else {
		span.SetAttributes(attribute.Float64("sentiment", rec.Sentiment))
		telemetry.End(span, nil)
	}
	return rec
}

func (a *Aggregator) merge(ticker string, price result[provider.Quote], news, social result[[]provider.Item]) market.TickerRecord {
	now := a.opts.Now().UTC()

	if price.err != nil && price.err.Kind == provider.KindNotFound {
		return market.TickerRecord{Ticker: ticker, Error: price.err.Error(), FetchedAt: now}
	}
	if price.err != nil && news.err != nil && social.err != nil {
		a.log.Warn("ticker failed",
			zap.String("ticker", ticker),
			zap.NamedError("price", price.err),
			zap.NamedError("news", news.err),
			zap.NamedError("social", social.err))
		return market.TickerRecord{Ticker: ticker, Error: ErrAllSourcesFailed.Error(), FetchedAt: now}
	}

	rec := market.TickerRecord{Ticker: ticker, FetchedAt: now}
	note := func(field string, err *provider.Error) {
		if err == nil {
			return
		}
		if rec.SourceErrors == nil {
			rec.SourceErrors = make(map[string]string, 3)
		}
		rec.SourceErrors[field] = err.Error()
		a.log.Debug("source failed",
			zap.String("ticker", ticker),
			zap.String("field", field),
			zap.String("kind", string(err.Kind)),
			zap.Error(err.Err))
	}
	note("price", price.err)
	note("news", news.err)
	note("social", social.err)

	if price.err == nil {
		q := price.val
		p := q.Price
		rec.Price = &p
		rec.Volume = q.Volume
		rec.MarketCap = q.MarketCap
		rec.PreviousClose = q.PreviousClose
		rec.Open = q.Open
		rec.History = history(q.History)
	}

	// Only sources that answered take part; an empty answer scores 0.
	var averages []float64
	if news.err == nil {
		rec.News = items(news.val)
		averages = append(averages, a.average(rec.News))
	}
	if social.err == nil {
		rec.Social = items(social.val)
		averages = append(averages, a.average(rec.Social))
	}
	rec.Sentiment = market.Round2(sentiment.Aggregate(averages))
	return rec
}

func (a *Aggregator) average(items []market.SourceItem) float64 {
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Title
	}
	return sentiment.Aggregate(sentiment.ScoreAll(a.opts.Scorer, texts))
}

// call runs one source under its own timeout and always returns a
// normalized error, recovering panics as internal failures.
func call[T any](ctx context.Context, timeout time.Duration, src provider.Source[T], field, ticker string) (res result[T]) {
	if src == nil {
		res.err = &provider.Error{Source: field, Ticker: ticker, Kind: provider.KindUnavailable, Err: provider.ErrUnavailable}
		return res
	}
	name := src.Name()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = result[T]{err: &provider.Error{Source: name, Ticker: ticker, Kind: provider.KindInternal, Err: fmt.Errorf("panic: %v", r)}}
		}
		outcome := "ok"
		if res.err != nil {
			outcome = string(res.err.Kind)
		}
		metrics.SourceCalls.WithLabelValues(name, outcome).Inc()
		metrics.SourceLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	v, err := src.Fetch(ctx, ticker)
	if err != nil {
		res.err = provider.Normalize(name, ticker, err)
		return res
	}
	res.val = v
	return res
}

func history(in []provider.Close) []market.PricePoint {
	in = provider.DailyCloses(in)
	if len(in) == 0 {
		return nil
	}
	if len(in) > market.HistoryDays {
		in = in[len(in)-market.HistoryDays:]
	}
	out := make([]market.PricePoint, len(in))
	for i, c := range in {
		out[i] = market.PricePoint{Date: c.Date.Format(time.DateOnly), Close: c.Price}
	}
	return out
}

func items(in []provider.Item) []market.SourceItem {
	if len(in) > provider.MaxItems {
		in = in[:provider.MaxItems]
	}
	out := make([]market.SourceItem, 0, len(in))
	for _, it := range in {
		out = append(out, market.SourceItem{Title: it.Title, URL: it.URL})
	}
	return out
}

func dedup(tickers []string) []string {
	seen := make(map[string]struct{}, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = market.NormalizeTicker(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
