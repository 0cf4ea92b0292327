package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/beacon/pkg/observability"
)

var (
	_ Observer = NopObserver{}
	_ Observer = MultiObserver{}
	_ Observer = (*observability.Metrics)(nil)
	_ Observer = (*observability.OTelMetrics)(nil)
)

func TestMultiObserverFansOut(t *testing.T) {
	a := observability.NewMetrics(prometheus.NewRegistry())
	b := observability.NewMetrics(prometheus.NewRegistry())
	obs := MultiObserver{a, b, NopObserver{}}
	ctx := context.Background()

	obs.HitEnqueued(ctx, "event", 1)
	obs.HitDropped(ctx, "event", DropQueueFull)
	obs.ExchangeCompleted(ctx, "event", OutcomeSent, 200, time.Millisecond)
	obs.QueueDepthChanged(ctx, 0)

	for _, m := range []*observability.Metrics{a, b} {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.HitsEnqueuedTotal.WithLabelValues("event")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.HitsDroppedTotal.WithLabelValues("event", DropQueueFull)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.ExchangesTotal.WithLabelValues("event", OutcomeSent, "200")))
	}
}
