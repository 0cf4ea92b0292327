package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. It satisfies the dispatcher observer interface.
type Metrics struct {
	// Dispatcher metrics
	HitsEnqueuedTotal *prometheus.CounterVec
	HitsDroppedTotal  *prometheus.CounterVec
	ExchangesTotal    *prometheus.CounterVec
	ExchangeDuration  *prometheus.HistogramVec
	QueueDepth        prometheus.Gauge

	// Collector metrics
	CollectedHitsTotal    *prometheus.CounterVec
	ValidationIssuesTotal *prometheus.CounterVec
	ThrottledHitsTotal    *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HitsEnqueuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_hits_enqueued_total",
				Help: "Total number of hits accepted into the send queue",
			},
			[]string{"hit_type"},
		),
		HitsDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_hits_dropped_total",
				Help: "Total number of hits discarded before queueing",
			},
			[]string{"hit_type", "reason"},
		),
		ExchangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_exchanges_total",
				Help: "Total number of exchanges with the collection endpoint",
			},
			[]string{"hit_type", "outcome", "status"},
		),
		ExchangeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "beacon_exchange_duration_seconds",
				Help:    "Exchange duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"outcome"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "beacon_queue_depth",
				Help: "Number of hits waiting for delivery",
			},
		),

		CollectedHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_collector_hits_total",
				Help: "Total number of hits received by the collector",
			},
			[]string{"hit_type", "valid"},
		),
		ValidationIssuesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_collector_validation_issues_total",
				Help: "Total number of validation findings by parameter",
			},
			[]string{"parameter", "message_type"},
		),
		ThrottledHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_collector_throttled_hits_total",
				Help: "Total number of hits refused by the collector rate limit",
			},
			[]string{"hit_type"},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "beacon_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "beacon_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),
	}

	registry.MustRegister(
		m.HitsEnqueuedTotal,
		m.HitsDroppedTotal,
		m.ExchangesTotal,
		m.ExchangeDuration,
		m.QueueDepth,
		m.CollectedHitsTotal,
		m.ValidationIssuesTotal,
		m.ThrottledHitsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
	)

	return m
}

func hitTypeLabel(hitType string) string {
	if hitType == "" {
		return "unknown"
	}
	return hitType
}

func (m *Metrics) HitEnqueued(_ context.Context, hitType string, _ int) {
	m.HitsEnqueuedTotal.WithLabelValues(hitTypeLabel(hitType)).Inc()
}

func (m *Metrics) HitDropped(_ context.Context, hitType, reason string) {
	m.HitsDroppedTotal.WithLabelValues(hitTypeLabel(hitType), reason).Inc()
}

func (m *Metrics) ExchangeCompleted(_ context.Context, hitType, outcome string, statusCode int, duration time.Duration) {
	status := "none"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	m.ExchangesTotal.WithLabelValues(hitTypeLabel(hitType), outcome, status).Inc()
	m.ExchangeDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *Metrics) QueueDepthChanged(_ context.Context, depth int) {
	m.QueueDepth.Set(float64(depth))
}

// RecordCollectedHit counts a hit received by the collector.
func (m *Metrics) RecordCollectedHit(hitType string, valid bool) {
	m.CollectedHitsTotal.WithLabelValues(hitTypeLabel(hitType), strconv.FormatBool(valid)).Inc()
}

// RecordValidationIssue counts a single validation finding.
func (m *Metrics) RecordValidationIssue(parameter, messageType string) {
	if parameter == "" {
		parameter = "none"
	}
	m.ValidationIssuesTotal.WithLabelValues(parameter, messageType).Inc()
}

// RecordThrottledHit counts a hit refused by the collector rate limit.
func (m *Metrics) RecordThrottledHit(hitType string) {
	m.ThrottledHitsTotal.WithLabelValues(hitTypeLabel(hitType)).Inc()
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(r.ContentLength))
			}

			next.ServeHTTP(rw, r)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format.
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
