// Package app wires configuration into a running set of components.
package app

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"marketpulse/internal/aggregate"
	"marketpulse/internal/config"
	"marketpulse/internal/directory"
	"marketpulse/internal/httpx"
	"marketpulse/internal/provider"
	"marketpulse/internal/provider/breaker"
	"marketpulse/internal/provider/newsdata"
	"marketpulse/internal/provider/ratelimit"
	"marketpulse/internal/provider/reddit"
	"marketpulse/internal/provider/yahoo"
	"marketpulse/internal/refresh"
	"marketpulse/internal/sentiment"
	"marketpulse/internal/store"
)

// browserUA is sent to Yahoo, which rejects unknown agents.
const browserUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Store        *store.Store
	Directory    *directory.Cached
	Aggregator   *aggregate.Aggregator
	Orchestrator *refresh.Orchestrator

	breakers map[string]func() string
}

// New builds every component from cfg. Nothing starts running until the
// caller invokes Orchestrator.Run.
func New(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := httpx.New(cfg.HTTPTimeout())
	a := &App{Config: cfg, Logger: logger, Store: store.New(), breakers: map[string]func() string{}}

	src := a.sources(hc)
	a.Aggregator = aggregate.New(src, aggregate.Options{
		MaxConcurrency: cfg.Refresh.MaxConcurrency,
		SourceTimeout:  cfg.SourceTimeout(),
		Scorer:         sentiment.Lexicon{},
		Logger:         logger,
	})

	dirHTTP := httpx.New(time.Duration(cfg.Directory.TimeoutSec) * time.Second)
	loader := directory.NewLoader(directory.LoaderConfig{
		URLs:         cfg.Directory.URLs,
		MaxElapsed:   time.Duration(cfg.Directory.MaxRetrySec) * time.Second,
		IncludeTests: cfg.Directory.IncludeTests,
	}, dirHTTP, logger)
	a.Directory = &directory.Cached{
		Src:      loader,
		TTL:      time.Duration(cfg.Directory.CacheTTLSec) * time.Second,
		RetryTTL: time.Duration(cfg.Directory.RetryTTLSec) * time.Second,
		Logger:   logger,
	}

	a.Orchestrator = refresh.New(a.Aggregator, a.Store, a.Directory, refresh.Options{
		Interval:   cfg.RefreshInterval(),
		Watchlist:  cfg.Refresh.Watchlist,
		MaxTracked: cfg.Refresh.MaxTracked,
		QueueSize:  cfg.Refresh.QueueSize,
		Logger:     logger,
	})
	return a
}

// Sources builds the three upstream sources with pacing and breakers, for
// callers that only need aggregation.
func Sources(cfg config.Config, logger *zap.Logger) aggregate.Sources {
	a := &App{Config: cfg, Logger: logger, breakers: map[string]func() string{}}
	if a.Logger == nil {
		a.Logger = zap.NewNop()
	}
	return a.sources(httpx.New(cfg.HTTPTimeout()))
}

func (a *App) sources(hc *httpx.Client) aggregate.Sources {
	cfg := a.Config
	var src aggregate.Sources

	if cfg.Price.Enabled {
		hdr := http.Header{}
		hdr.Set("User-Agent", browserUA)
		client := yahoo.NewClient(
			yahoo.WithBaseURL(cfg.Price.BaseURL),
			yahoo.WithHTTPClient(hc.HTTP),
			yahoo.WithHeader(hdr),
		)
		src.Price = wrap(a, provider.PriceSource(yahoo.NewSource(client, cfg.Price.HistoryDays, a.Logger)), cfg.Price.Limits)
	}
	if cfg.News.Enabled {
		s := newsdata.New(newsdata.Config{
			Endpoint: cfg.News.Endpoint,
			APIKey:   cfg.News.APIKey,
			Language: cfg.News.Language,
			Category: cfg.News.Category,
		}, hc)
		src.News = wrap(a, provider.ItemSource(s), cfg.News.Limits)
	}
	if cfg.Social.Enabled {
		s := reddit.New(reddit.Config{BaseURL: cfg.Social.BaseURL, Subreddit: cfg.Social.Subreddit}, hc)
		src.Social = wrap(a, provider.ItemSource(s), cfg.Social.Limits)
	}
	return src
}

// wrap applies pacing, then a breaker around it so an open circuit does not
// consume rate-limit tokens.
func wrap[T any](a *App, s provider.Source[T], lim config.Limits) provider.Source[T] {
	s = ratelimit.Wrap(s, lim.MaxRequestsPerMinute, lim.Burst, lim.MinInterval())
	if !a.Config.Breaker.Enabled {
		return s
	}
	b := breaker.New(s, breaker.Settings{
		MinRequests:  a.Config.Breaker.MinRequests,
		FailureRatio: a.Config.Breaker.FailureRatio,
		Interval:     time.Duration(a.Config.Breaker.IntervalSec) * time.Second,
		OpenTimeout:  time.Duration(a.Config.Breaker.OpenTimeoutSec) * time.Second,
	}, a.Logger)
	a.breakers[s.Name()] = b.State
	return b
}

// BreakerStates reports each source's circuit state.
func (a *App) BreakerStates() map[string]string {
	out := make(map[string]string, len(a.breakers))
	for name, state := range a.breakers {
		out[name] = state()
	}
	return out
}
