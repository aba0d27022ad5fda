package logger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors shared across the service. They register with the
// default registry on package init and are served by promhttp at /metrics.

var (
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	AnalysisTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_ticks_total",
			Help: "Analysis ticks by outcome (completed, skipped)",
		},
		[]string{"outcome"},
	)

	AnalysisTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_tick_duration_seconds",
			Help:    "Wall time of one analysis tick across all symbols",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	SymbolFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_symbol_failures_total",
			Help: "Per-symbol analysis failures by stage",
		},
		[]string{"symbol", "stage"},
	)

	SignalsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_created_total",
			Help: "Trading signals created",
		},
		[]string{"symbol", "side"},
	)

	SignalsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_closed_total",
			Help: "Trading signals closed by reason",
		},
		[]string{"symbol", "reason"},
	)

	HubSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_subscribers",
			Help: "Currently registered broadcast subscribers",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_events_published_total",
			Help: "Events published by the broadcast hub",
		},
		[]string{"type"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_events_dropped_total",
			Help: "Per-subscriber deliveries abandoned (timeout or closed subscriber)",
		},
		[]string{"type"},
	)

	ArchiveWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_writes_total",
			Help: "Archive batch writes by outcome",
		},
		[]string{"kind", "outcome"},
	)
)
