// Package metrics defines the Prometheus metric collectors used across the
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	ReadsTrackedTotal    *prometheus.CounterVec
	AggregateDuration    *prometheus.HistogramVec
	AggregateFailures    *prometheus.CounterVec
	RankingFallbacks     prometheus.Counter
	GenerationsTotal     *prometheus.CounterVec
	GenerationLatency    prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates the collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		ReadsTrackedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "story_reads_tracked_total",
				Help: "Read events by outcome (recorded, invalid, not_found, error).",
			},
			[]string{"outcome"},
		),
		AggregateDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analytics_aggregate_duration_seconds",
				Help:    "Time spent computing one aggregate.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"aggregate"},
		),
		AggregateFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_aggregate_failures_total",
				Help: "Aggregate sub-queries that failed and were degraded to empty values.",
			},
			[]string{"aggregate"},
		),
		RankingFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "analytics_ranking_fallbacks_total",
				Help: "Top-stories requests served by the manual ranking path.",
			},
		),
		GenerationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "story_generations_total",
				Help: "Story generation requests by result code.",
			},
			[]string{"code"},
		),
		GenerationLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "story_generation_latency_seconds",
				Help:    "Upstream text generation latency in seconds.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of report cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of report cache misses.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ReadsTrackedTotal,
		m.AggregateDuration,
		m.AggregateFailures,
		m.RankingFallbacks,
		m.GenerationsTotal,
		m.GenerationLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
