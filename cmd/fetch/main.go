// Command fetch aggregates a ticker list once and prints the records as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"marketpulse/internal/aggregate"
	"marketpulse/internal/app"
	"marketpulse/internal/config"
	"marketpulse/internal/directory"
	"marketpulse/internal/httpx"
	"marketpulse/internal/logging"
	"marketpulse/internal/market"
	"marketpulse/internal/sentiment"
)

func main() {
	_ = godotenv.Load()

	var (
		tickersCSV string
		configPath string
		timeout    int
		validate   bool
		pretty     bool
		logLevel   string
	)
	flag.StringVar(&tickersCSV, "tickers", getenv("TICKERS", "AAPL,TSLA,MSFT"), "comma-separated ticker symbols")
	flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.json or config.yaml (optional)")
	flag.IntVar(&timeout, "timeout", 60, "overall timeout seconds")
	flag.BoolVar(&validate, "validate", false, "drop tickers not in the Nasdaq Trader directory")
	flag.BoolVar(&pretty, "pretty", true, "indent JSON output")
	flag.StringVar(&logLevel, "log-level", "warn", "log level (logs go to stderr)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	logger, closeLog, err := logging.New(logging.Config{Level: logLevel, Format: "console"})
	if err != nil {
		zap.NewExample().Fatal("logger", zap.Error(err))
	}
	defer func() { _ = closeLog() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	tickers := market.ParseTickers(tickersCSV)
	if validate {
		loader := directory.NewLoader(directory.LoaderConfig{URLs: cfg.Directory.URLs},
			httpx.New(time.Duration(cfg.Directory.TimeoutSec)*time.Second), logger)
		uni, err := loader.Universe(ctx)
		if err != nil {
			logger.Warn("directory unavailable, validating against fallback", zap.Error(err))
		}
		tickers = uni.Filter(tickers)
	}
	if len(tickers) == 0 {
		logger.Fatal("no tickers to fetch")
	}

	agg := aggregate.New(app.Sources(cfg, logger), aggregate.Options{
		MaxConcurrency: cfg.Refresh.MaxConcurrency,
		SourceTimeout:  cfg.SourceTimeout(),
		Scorer:         sentiment.Lexicon{},
		Logger:         logger,
	})
	records := agg.Collect(ctx, tickers)

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(records); err != nil {
		logger.Fatal("encode", zap.Error(err))
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
