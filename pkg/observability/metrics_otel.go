package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/platinummonkey/beacon"

// OTelMetrics records dispatcher measurements as OpenTelemetry instruments. It satisfies
// the dispatcher observer interface.
type OTelMetrics struct {
	hitsEnqueued     metric.Int64Counter
	hitsDropped      metric.Int64Counter
	exchanges        metric.Int64Counter
	exchangeDuration metric.Float64Histogram
	queueDepth       metric.Int64Gauge
}

// NewOTelMetrics creates instruments on the global meter provider.
func NewOTelMetrics() (*OTelMetrics, error) {
	return NewOTelMetricsWithMeter(otel.Meter(meterName))
}

// NewOTelMetricsWithMeter creates instruments on meter.
func NewOTelMetricsWithMeter(meter metric.Meter) (*OTelMetrics, error) {
	m := &OTelMetrics{}
	var err error

	m.hitsEnqueued, err = meter.Int64Counter(
		"beacon.hits.enqueued",
		metric.WithDescription("Hits accepted into the send queue"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create hits.enqueued counter: %w", err)
	}

	m.hitsDropped, err = meter.Int64Counter(
		"beacon.hits.dropped",
		metric.WithDescription("Hits discarded before queueing"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create hits.dropped counter: %w", err)
	}

	m.exchanges, err = meter.Int64Counter(
		"beacon.exchanges",
		metric.WithDescription("Exchanges with the collection endpoint"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create exchanges counter: %w", err)
	}

	m.exchangeDuration, err = meter.Float64Histogram(
		"beacon.exchange.duration",
		metric.WithDescription("Exchange duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange.duration histogram: %w", err)
	}

	m.queueDepth, err = meter.Int64Gauge(
		"beacon.queue.depth",
		metric.WithDescription("Hits waiting for delivery"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue.depth gauge: %w", err)
	}

	return m, nil
}

func (m *OTelMetrics) HitEnqueued(ctx context.Context, hitType string, _ int) {
	m.hitsEnqueued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("beacon.hit.type", hitTypeLabel(hitType)),
	))
}

func (m *OTelMetrics) HitDropped(ctx context.Context, hitType, reason string) {
	m.hitsDropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("beacon.hit.type", hitTypeLabel(hitType)),
		attribute.String("beacon.drop.reason", reason),
	))
}

func (m *OTelMetrics) ExchangeCompleted(ctx context.Context, hitType, outcome string, statusCode int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("beacon.hit.type", hitTypeLabel(hitType)),
		attribute.String("beacon.outcome", outcome),
		attribute.Int("http.response.status_code", statusCode),
	)
	m.exchanges.Add(ctx, 1, attrs)
	m.exchangeDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *OTelMetrics) QueueDepthChanged(ctx context.Context, depth int) {
	m.queueDepth.Record(ctx, int64(depth))
}
