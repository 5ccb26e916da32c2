package directory

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"marketpulse/internal/httpx"
	"marketpulse/internal/metrics"
	"marketpulse/internal/provider"
)

// ErrUnavailable is returned together with the fallback universe when no
// directory file could be loaded.
var ErrUnavailable = errors.New("symbol directory unavailable")

var DefaultURLs = []string{
	"https://www.nasdaqtrader.com/dynamic/SymDir/nasdaqlisted.txt",
	"https://www.nasdaqtrader.com/dynamic/SymDir/otherlisted.txt",
}

type LoaderConfig struct {
	URLs           []string
	MaxElapsed     time.Duration // total retry budget per file (default 30s)
	InitialBackoff time.Duration // default 500ms
	IncludeTests   bool          // keep rows flagged as test issues
}

// Loader downloads the Nasdaq Trader symbol files.
type Loader struct {
	cfg LoaderConfig
	hc  *httpx.Client
	log *zap.Logger
}

func NewLoader(cfg LoaderConfig, hc *httpx.Client, logger *zap.Logger) *Loader {
	if len(cfg.URLs) == 0 {
		cfg.URLs = DefaultURLs
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = 30 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if hc == nil {
		hc = httpx.New(30 * time.Second)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{cfg: cfg, hc: hc, log: logger.Named("directory")}
}

// Universe loads every configured file. Files that fail after retries are
// skipped; if none load, the fallback universe is returned with an error
// wrapping ErrUnavailable.
func (l *Loader) Universe(ctx context.Context) (*Universe, error) {
	var (
		symbols []string
		errs    []error
	)
	for _, u := range l.cfg.URLs {
		syms, err := l.loadFile(ctx, u)
		if err != nil {
			l.log.Warn("directory file failed", zap.String("url", u), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		symbols = append(symbols, syms...)
	}
	if len(symbols) == 0 {
		metrics.DirectoryFailures.Inc()
		err := fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
		l.log.Error("using fallback symbols", zap.Error(err))
		return FallbackUniverse(), err
	}
	uni := NewUniverse(symbols)
	metrics.DirectorySymbols.Set(float64(uni.Len()))
	l.log.Info("directory loaded", zap.Int("symbols", uni.Len()))
	return uni, nil
}

func (l *Loader) loadFile(ctx context.Context, url string) ([]string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.cfg.InitialBackoff
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = l.cfg.MaxElapsed
	b.RandomizationFactor = 0.1

	var syms []string
	op := func() error {
		body, err := l.hc.Get(ctx, url, nil)
		if err != nil {
			var se *provider.StatusError
			if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		syms, err = ParseSymbolFile(bytes.NewReader(body), l.cfg.IncludeTests)
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	notify := func(err error, d time.Duration) {
		l.log.Debug("retrying directory download", zap.String("url", url), zap.Duration("in", d), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, err
	}
	return syms, nil
}

// ParseSymbolFile reads a pipe-delimited Nasdaq Trader listing. The symbol
// column is "Symbol" (nasdaqlisted) or "ACT Symbol" (otherlisted). The
// trailing "File Creation Time" row is ignored.
func ParseSymbolFile(r io.Reader, includeTests bool) ([]string, error) {
	cr := csv.NewReader(r)
	cr.Comma = '|'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	symCol, testCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case "Symbol", "ACT Symbol":
			if symCol < 0 {
				symCol = i
			}
		case "Test Issue":
			testCol = i
		}
	}
	if symCol < 0 {
		return nil, fmt.Errorf("no symbol column in header %q", strings.Join(header, "|"))
	}

	var out []string
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if len(row) == 0 || strings.HasPrefix(row[0], "File Creation Time") {
			continue
		}
		if symCol >= len(row) {
			continue
		}
		if !includeTests && testCol >= 0 && testCol < len(row) && strings.TrimSpace(row[testCol]) == "Y" {
			continue
		}
		if s := strings.TrimSpace(row[symCol]); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no symbols in file")
	}
	return out, nil
}
