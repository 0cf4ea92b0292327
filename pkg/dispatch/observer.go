package dispatch

import (
	"context"
	"time"

	"github.com/platinummonkey/beacon/pkg/observability"
)

// Observer receives dispatcher measurements. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	HitEnqueued(ctx context.Context, hitType string, queueDepth int)
	HitDropped(ctx context.Context, hitType, reason string)
	ExchangeCompleted(ctx context.Context, hitType, outcome string, statusCode int, duration time.Duration)
	QueueDepthChanged(ctx context.Context, depth int)
}

// Drop reasons reported to HitDropped.
const (
	DropOptOut    = "opt_out"
	DropQueueFull = "queue_full"
	DropClosed    = "closed"
)

// NopObserver discards all measurements.
type NopObserver struct{}

func (NopObserver) HitEnqueued(context.Context, string, int) {}
func (NopObserver) HitDropped(context.Context, string, string) {}
func (NopObserver) ExchangeCompleted(context.Context, string, string, int, time.Duration) {}
func (NopObserver) QueueDepthChanged(context.Context, int) {}

// MultiObserver fans measurements out to several observers.
type MultiObserver []Observer

func (m MultiObserver) HitEnqueued(ctx context.Context, hitType string, queueDepth int) {
	for _, o := range m {
		o.HitEnqueued(ctx, hitType, queueDepth)
	}
}

func (m MultiObserver) HitDropped(ctx context.Context, hitType, reason string) {
	for _, o := range m {
		o.HitDropped(ctx, hitType, reason)
	}
}

func (m MultiObserver) ExchangeCompleted(ctx context.Context, hitType, outcome string, statusCode int, duration time.Duration) {
	for _, o := range m {
		o.ExchangeCompleted(ctx, hitType, outcome, statusCode, duration)
	}
}

func (m MultiObserver) QueueDepthChanged(ctx context.Context, depth int) {
	for _, o := range m {
		o.QueueDepthChanged(ctx, depth)
	}
}

// safeObserver keeps a panicking observer from taking down the dispatcher loop.
type safeObserver struct {
	next   Observer
	logger *observability.Logger
}

func (o safeObserver) HitEnqueued(ctx context.Context, hitType string, queueDepth int) {
	defer observability.RecoverPanic(o.logger, "observer HitEnqueued")
	o.next.HitEnqueued(ctx, hitType, queueDepth)
}

func (o safeObserver) HitDropped(ctx context.Context, hitType, reason string) {
	defer observability.RecoverPanic(o.logger, "observer HitDropped")
	o.next.HitDropped(ctx, hitType, reason)
}

func (o safeObserver) ExchangeCompleted(ctx context.Context, hitType, outcome string, statusCode int, duration time.Duration) {
	defer observability.RecoverPanic(o.logger, "observer ExchangeCompleted")
	o.next.ExchangeCompleted(ctx, hitType, outcome, statusCode, duration)
}

func (o safeObserver) QueueDepthChanged(ctx context.Context, depth int) {
	defer observability.RecoverPanic(o.logger, "observer QueueDepthChanged")
	o.next.QueueDepthChanged(ctx, depth)
}
