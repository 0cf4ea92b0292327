package dispatch

import (
	"time"

	"github.com/platinummonkey/beacon/pkg/hit"
	"github.com/platinummonkey/beacon/pkg/observability"
)

// HitSent is emitted after the endpoint accepted a hit with a 2xx response.
type HitSent struct {
	Hit        hit.Hit
	StatusCode int
	Body       []byte
	QueueTime  time.Duration
}

// HitFailed is emitted when an exchange fails. The hit stays at the head of the queue.
type HitFailed struct {
	Hit        hit.Hit
	StatusCode int
	Attempt    int
	Err        error
}

// HitMalformed is emitted when the endpoint rejects a hit with a 4xx status, or when a
// debug endpoint reports it as invalid.
type HitMalformed struct {
	Hit        hit.Hit
	StatusCode int
	Messages   []hit.ParserMessage
}

// OnHitSent registers fn for successful deliveries.
//
// Hooks run on the dispatcher goroutine and must not block. Calling Flush, Pending,
// Sending or Close from a hook deadlocks, since those wait on the same goroutine; start
// a new goroutine for them instead. A panicking hook is logged and skipped.
func (d *Dispatcher) OnHitSent(fn func(HitSent)) {
	d.hooksMu.Lock()
	defer d.hooksMu.Unlock()
	d.sentHooks = append(d.sentHooks, fn)
}

// OnHitFailed registers fn for failed exchanges.
func (d *Dispatcher) OnHitFailed(fn func(HitFailed)) {
	d.hooksMu.Lock()
	defer d.hooksMu.Unlock()
	d.failedHooks = append(d.failedHooks, fn)
}

// OnHitMalformed registers fn for hits the endpoint rejected as malformed.
func (d *Dispatcher) OnHitMalformed(fn func(HitMalformed)) {
	d.hooksMu.Lock()
	defer d.hooksMu.Unlock()
	d.malformedHooks = append(d.malformedHooks, fn)
}

func (d *Dispatcher) emitSent(e HitSent) {
	d.hooksMu.RLock()
	hooks := d.sentHooks
	d.hooksMu.RUnlock()
	for _, fn := range hooks {
		d.callHook("OnHitSent", func() { fn(e) })
	}
}

func (d *Dispatcher) emitFailed(e HitFailed) {
	d.hooksMu.RLock()
	hooks := d.failedHooks
	d.hooksMu.RUnlock()
	for _, fn := range hooks {
		d.callHook("OnHitFailed", func() { fn(e) })
	}
}

func (d *Dispatcher) emitMalformed(e HitMalformed) {
	d.hooksMu.RLock()
	hooks := d.malformedHooks
	d.hooksMu.RUnlock()
	for _, fn := range hooks {
		d.callHook("OnHitMalformed", func() { fn(e) })
	}
}

func (d *Dispatcher) callHook(name string, fn func()) {
	defer observability.RecoverPanic(d.logger, name)
	fn()
}
