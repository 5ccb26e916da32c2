package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Server struct {
	Port              string `json:"port" yaml:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec" yaml:"request_timeout_sec"`
	MaxBodyBytes      int64  `json:"max_body_bytes" yaml:"max_body_bytes"`
}

type Refresh struct {
	IntervalSec      int      `json:"interval_sec" yaml:"interval_sec"`
	Watchlist        []string `json:"watchlist" yaml:"watchlist"`
	MaxTracked       int      `json:"max_tracked" yaml:"max_tracked"`
	MaxConcurrency   int      `json:"max_concurrency" yaml:"max_concurrency"`
	SourceTimeoutSec int      `json:"source_timeout_sec" yaml:"source_timeout_sec"`
	QueueSize        int      `json:"queue_size" yaml:"queue_size"`
}

type Directory struct {
	URLs         []string `json:"urls" yaml:"urls"`
	CacheTTLSec  int      `json:"cache_ttl_sec" yaml:"cache_ttl_sec"`
	RetryTTLSec  int      `json:"retry_ttl_sec" yaml:"retry_ttl_sec"`
	MaxRetrySec  int      `json:"max_retry_sec" yaml:"max_retry_sec"`
	IncludeTests bool     `json:"include_tests" yaml:"include_tests"`
	TimeoutSec   int      `json:"timeout_sec" yaml:"timeout_sec"`
}

// Limits are the per-source request pacing knobs.
type Limits struct {
	MaxRequestsPerMinute int `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`
	Burst                int `json:"burst" yaml:"burst"`
	MinRequestIntervalMs int `json:"min_request_interval_ms" yaml:"min_request_interval_ms"`
}

type Price struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	BaseURL     string `json:"base_url" yaml:"base_url"`
	HistoryDays int    `json:"history_days" yaml:"history_days"`
	Limits      `yaml:",inline"`
}

type News struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	APIKey   string `json:"api_key" yaml:"api_key"`
	Language string `json:"language" yaml:"language"`
	Category string `json:"category" yaml:"category"`
	Limits   `yaml:",inline"`
}

type Social struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	BaseURL   string `json:"base_url" yaml:"base_url"`
	Subreddit string `json:"subreddit" yaml:"subreddit"`
	Limits    `yaml:",inline"`
}

type Breaker struct {
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	MinRequests    uint32  `json:"min_requests" yaml:"min_requests"`
	FailureRatio   float64 `json:"failure_ratio" yaml:"failure_ratio"`
	IntervalSec    int     `json:"interval_sec" yaml:"interval_sec"`
	OpenTimeoutSec int     `json:"open_timeout_sec" yaml:"open_timeout_sec"`
}

type Log struct {
	Level      string `json:"level" yaml:"level"`
	Format     string `json:"format" yaml:"format"` // json|console
	File       string `json:"file" yaml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
}

type Tracing struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"service_name" yaml:"service_name"`
	Pretty      bool   `json:"pretty" yaml:"pretty"`
}

type Config struct {
	Server    Server    `json:"server" yaml:"server"`
	Refresh   Refresh   `json:"refresh" yaml:"refresh"`
	Directory Directory `json:"directory" yaml:"directory"`
	Price     Price     `json:"price" yaml:"price"`
	News      News      `json:"news" yaml:"news"`
	Social    Social    `json:"social" yaml:"social"`
	Breaker   Breaker   `json:"breaker" yaml:"breaker"`
	Log       Log       `json:"log" yaml:"log"`
	Tracing   Tracing   `json:"tracing" yaml:"tracing"`

	HTTPTimeoutSec int `json:"http_timeout_sec" yaml:"http_timeout_sec"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 30, MaxBodyBytes: 1 << 20},
		Refresh: Refresh{
			IntervalSec:      3600,
			Watchlist:        []string{"AAPL", "TSLA", "MSFT"},
			MaxTracked:       50,
			MaxConcurrency:   10,
			SourceTimeoutSec: 5,
			QueueSize:        16,
		},
		Directory: Directory{
			URLs: []string{
				"https://www.nasdaqtrader.com/dynamic/SymDir/nasdaqlisted.txt",
				"https://www.nasdaqtrader.com/dynamic/SymDir/otherlisted.txt",
			},
			CacheTTLSec: 86400,
			RetryTTLSec: 300,
			MaxRetrySec: 30,
			TimeoutSec:  30,
		},
		Price: Price{
			Enabled:     true,
			BaseURL:     "https://query1.finance.yahoo.com",
			HistoryDays: 5,
			Limits:      Limits{MaxRequestsPerMinute: 120, Burst: 10},
		},
		News: News{
			Enabled:  true,
			Endpoint: "https://newsdata.io/api/1/news",
			Language: "en",
			Category: "business",
			Limits:   Limits{MaxRequestsPerMinute: 30, Burst: 5},
		},
		Social: Social{
			Enabled:   true,
			BaseURL:   "https://www.reddit.com",
			Subreddit: "stocks",
			Limits:    Limits{MaxRequestsPerMinute: 60, Burst: 5},
		},
		Breaker: Breaker{
			Enabled:        true,
			MinRequests:    5,
			FailureRatio:   0.6,
			IntervalSec:    60,
			OpenTimeoutSec: 30,
		},
		Log:            Log{Level: "info", Format: "json", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28},
		Tracing:        Tracing{ServiceName: "marketpulse"},
		HTTPTimeoutSec: 10,
	}
}

// Load reads a JSON or YAML (by extension) config from path. If path is
// empty it tries config.json, config.yaml and config.yml in the working
// directory; a missing file means defaults. Environment variables override
// file values.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		for _, p := range []string{"config.json", "config.yaml", "config.yml"} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := decode(path, b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	default:
		return json.Unmarshal(b, cfg)
	}
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is empty"))
	}
	if c.Refresh.IntervalSec <= 0 {
		errs = append(errs, fmt.Errorf("refresh.interval_sec must be > 0, got %d", c.Refresh.IntervalSec))
	}
	if c.Refresh.MaxConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("refresh.max_concurrency must be > 0, got %d", c.Refresh.MaxConcurrency))
	}
	if c.Refresh.SourceTimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("refresh.source_timeout_sec must be > 0, got %d", c.Refresh.SourceTimeoutSec))
	}
	if c.Price.HistoryDays < 0 || c.Price.HistoryDays > 5 {
		errs = append(errs, fmt.Errorf("price.history_days must be within 0..5, got %d", c.Price.HistoryDays))
	}
	if c.Breaker.FailureRatio < 0 || c.Breaker.FailureRatio > 1 {
		errs = append(errs, fmt.Errorf("breaker.failure_ratio must be within 0..1, got %g", c.Breaker.FailureRatio))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c Config) RequestTimeout() time.Duration { return seconds(c.Server.RequestTimeoutSec) }
func (c Config) RefreshInterval() time.Duration { return seconds(c.Refresh.IntervalSec) }
func (c Config) SourceTimeout() time.Duration { return seconds(c.Refresh.SourceTimeoutSec) }
func (c Config) HTTPTimeout() time.Duration { return seconds(c.HTTPTimeoutSec) }

// MinInterval converts the limit's millisecond interval.
func (l Limits) MinInterval() time.Duration {
	return time.Duration(l.MinRequestIntervalMs) * time.Millisecond
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	envInt("REQUEST_TIMEOUT_SEC", &cfg.Server.RequestTimeoutSec, 1)
	envInt("HTTP_TIMEOUT_SEC", &cfg.HTTPTimeoutSec, 1)

	envInt("REFRESH_INTERVAL_SEC", &cfg.Refresh.IntervalSec, 1)
	envInt("MAX_CONCURRENCY", &cfg.Refresh.MaxConcurrency, 1)
	envInt("SOURCE_TIMEOUT_SEC", &cfg.Refresh.SourceTimeoutSec, 1)
	envInt("MAX_TRACKED", &cfg.Refresh.MaxTracked, 1)
	if v := os.Getenv("WATCHLIST"); v != "" {
		cfg.Refresh.Watchlist = splitCSV(v)
	}

	if v := os.Getenv("DIRECTORY_URLS"); v != "" {
		cfg.Directory.URLs = splitCSV(v)
	}
	envInt("DIRECTORY_CACHE_TTL_SEC", &cfg.Directory.CacheTTLSec, 0)

	envBool("PRICE_ENABLED", &cfg.Price.Enabled)
	if v := os.Getenv("PRICE_BASE_URL"); v != "" {
		cfg.Price.BaseURL = v
	}
	envInt("PRICE_MAX_RPM", &cfg.Price.MaxRequestsPerMinute, 0)

	envBool("NEWS_ENABLED", &cfg.News.Enabled)
	if v := os.Getenv("NEWSDATA_API_KEY"); v != "" {
		cfg.News.APIKey = v
	}
	if v := os.Getenv("NEWS_LANGUAGE"); v != "" {
		cfg.News.Language = v
	}
	if v := os.Getenv("NEWS_CATEGORY"); v != "" {
		cfg.News.Category = v
	}
	envInt("NEWS_MAX_RPM", &cfg.News.MaxRequestsPerMinute, 0)

	envBool("SOCIAL_ENABLED", &cfg.Social.Enabled)
	if v := os.Getenv("SOCIAL_SUBREDDIT"); v != "" {
		cfg.Social.Subreddit = v
	}
	envInt("SOCIAL_MAX_RPM", &cfg.Social.MaxRequestsPerMinute, 0)

	envBool("BREAKER_ENABLED", &cfg.Breaker.Enabled)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	envBool("TRACING_ENABLED", &cfg.Tracing.Enabled)
}

// envInt sets *dst from key when it parses and is at least min.
func envInt(key string, dst *int, min int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	x, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || x < min {
		return
	}
	*dst = x
}

func envBool(key string, dst *bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y":
		*dst = true
	case "0", "false", "no", "n":
		*dst = false
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
