// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Refresh cycles by scope (full|subset) and outcome (ok|partial|failed).
	Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_refreshes_total",
		Help: "Completed refresh cycles",
	}, []string{"scope", "outcome"})

	RefreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketpulse_refresh_duration_seconds",
		Help:    "Wall time of a refresh cycle",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"scope"})

	// Skipped timer ticks because a full refresh was already pending.
	RefreshesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketpulse_refreshes_skipped_total",
		Help: "Scheduled refreshes skipped while a full refresh was pending",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketpulse_refresh_queue_depth",
		Help: "Refresh jobs waiting for the worker",
	})

	// Source calls by source name and result kind ("ok" or an error kind).
	SourceCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_source_calls_total",
		Help: "Upstream source calls by result",
	}, []string{"source", "result"})

	SourceLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketpulse_source_latency_seconds",
		Help:    "Upstream source call latency",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 8),
	}, []string{"source"})

	TickerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketpulse_ticker_failures_total",
		Help: "Tickers published with a ticker-level error",
	})

	CachePublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_cache_publishes_total",
		Help: "Snapshots published by kind (full|subset)",
	}, []string{"kind"})

	CacheRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketpulse_cache_records",
		Help: "Records in the current snapshot",
	})

	DirectorySymbols = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketpulse_directory_symbols",
		Help: "Symbols in the loaded directory",
	})

	DirectoryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketpulse_directory_failures_total",
		Help: "Directory downloads that fell back to the default set",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_http_requests_total",
		Help: "API requests by route and status",
	}, []string{"route", "code"})
)
