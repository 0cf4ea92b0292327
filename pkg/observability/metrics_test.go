package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsObserver(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	ctx := context.Background()

	m.HitEnqueued(ctx, "event", 1)
	m.HitEnqueued(ctx, "event", 2)
	m.HitEnqueued(ctx, "", 3)
	m.HitDropped(ctx, "screenview", "opt_out")
	m.ExchangeCompleted(ctx, "event", "sent", 200, 30*time.Millisecond)
	m.ExchangeCompleted(ctx, "event", "failed", 0, time.Second)
	m.QueueDepthChanged(ctx, 4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HitsEnqueuedTotal.WithLabelValues("event")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HitsEnqueuedTotal.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HitsDroppedTotal.WithLabelValues("screenview", "opt_out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExchangesTotal.WithLabelValues("event", "sent", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExchangesTotal.WithLabelValues("event", "failed", "none")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.QueueDepth))
	assert.Equal(t, 2, testutil.CollectAndCount(m.ExchangeDuration))
}

func TestMetricsCollector(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordCollectedHit("event", true)
	m.RecordCollectedHit("event", false)
	m.RecordValidationIssue("tid", "ERROR")
	m.RecordValidationIssue("", "INFO")
	m.RecordThrottledHit("")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CollectedHitsTotal.WithLabelValues("event", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CollectedHitsTotal.WithLabelValues("event", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationIssuesTotal.WithLabelValues("tid", "ERROR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationIssuesTotal.WithLabelValues("none", "INFO")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ThrottledHitsTotal.WithLabelValues("unknown")))
}

func TestNewMetricsDuplicateRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetrics(registry)
	assert.Panics(t, func() { NewMetrics(registry) })
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	handler := HTTPMetricsMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status string
	}{
		{name: "implicit 200", method: http.MethodGet, path: "/collect", status: "200"},
		{name: "explicit 404", method: http.MethodGet, path: "/missing", status: "404"},
		{name: "post with body", method: http.MethodPost, path: "/collect", body: "v=1&t=event", status: "200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(tt.method, tt.path, tt.status)))
		})
	}

	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestSize))
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.HitEnqueued(context.Background(), "timing", 1)

	rec := httptest.NewRecorder()
	MetricsHandler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `beacon_hits_enqueued_total{hit_type="timing"} 1`)
}
