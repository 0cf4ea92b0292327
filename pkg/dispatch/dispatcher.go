package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/beacon/pkg/hit"
	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/platform"
	"github.com/platinummonkey/beacon/pkg/prefs"
	"github.com/platinummonkey/beacon/pkg/tracker"
)

const (
	defaultRequestTimeout = 10 * time.Second
	incomingBuffer        = 1024
)

// Options configures a Dispatcher. Zero values select defaults.
type Options struct {
	Platform       platform.Provider
	Prefs          prefs.Store
	HTTPClient     *http.Client
	Endpoints      Endpoints
	Clock          clockwork.Clock
	Logger         *observability.Logger
	Observer       Observer
	Retry          RetryConfig
	Settings       *Settings
	AppName        string
	AppVersion     string
	Connectivity   ConnectivityMonitor
	MaxQueueSize   int
	RequestTimeout time.Duration
	// DeliveryLogSize bounds the number of exchanges kept for Deliveries.
	DeliveryLogSize int
}

// Dispatcher queues hits and delivers them one at a time, in order, to the collection
// endpoint. All queue state is owned by a single goroutine; public methods hand work to
// it over channels.
type Dispatcher struct {
	platform     platform.Provider
	prefs        prefs.Store
	client       *http.Client
	endpoints    Endpoints
	clock        clockwork.Clock
	logger       *observability.Logger
	observer     Observer
	retry        *RetryPolicy
	connectivity ConnectivityMonitor
	maxQueue     int
	timeout      time.Duration
	appName      string
	appVersion   string
	deliveries   *DeliveryLog

	settingsMu sync.RWMutex
	settings   Settings
	connUnsub  func()

	optOutMu     sync.Mutex
	optOutLoaded bool
	optOut       bool

	trackersMu     sync.Mutex
	trackers       map[string]*tracker.Tracker
	defaultTracker *tracker.Tracker

	hooksMu        sync.RWMutex
	sentHooks      []func(HitSent)
	failedHooks    []func(HitFailed)
	malformedHooks []func(HitMalformed)

	incoming chan hit.Hit
	commands chan func(*queueState)
	results  chan exchangeResult
	wake     chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// queueState is only touched by the run goroutine.
type queueState struct {
	queue    []hit.Hit
	sending  bool
	attempts int
	retry    clockwork.Timer
	closing  bool
	waiters  []chan error
}

func (s *queueState) stopRetry() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
}

// resolve completes every pending Flush with err.
func (s *queueState) resolve(err error) {
	for _, w := range s.waiters {
		w <- err
	}
	s.waiters = nil
}

// New creates a dispatcher and starts its goroutine. Call Close to stop it.
func New(opts Options) *Dispatcher {
	if opts.Prefs == nil {
		opts.Prefs = prefs.NewMemory()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, os.Stderr)
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	settings := DefaultSettings()
	if opts.Settings != nil {
		settings = *opts.Settings
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		platform:     opts.Platform,
		prefs:        opts.Prefs,
		client:       opts.HTTPClient,
		endpoints:    opts.Endpoints.withDefaults(),
		clock:        opts.Clock,
		logger:       opts.Logger.WithField("component", "dispatcher"),
		observer:     safeObserver{next: opts.Observer, logger: opts.Logger},
		retry:        NewRetryPolicy(opts.Retry),
		connectivity: opts.Connectivity,
		maxQueue:     opts.MaxQueueSize,
		timeout:      opts.RequestTimeout,
		appName:      opts.AppName,
		appVersion:   opts.AppVersion,
		deliveries:   NewDeliveryLog(opts.DeliveryLogSize),
		settings:     settings,
		trackers:     make(map[string]*tracker.Tracker),
		incoming:     make(chan hit.Hit, incomingBuffer),
		commands:     make(chan func(*queueState)),
		results:      make(chan exchangeResult, 1),
		wake:         make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
	}

	// settings.Enabled is rewritten when auto tracking starts.
	if settings.AutoTrackConnectivity {
		d.settings.AutoTrackConnectivity = false
		d.SetAutoTrackConnectivity(true)
	}

	go d.run()
	return d
}

// EnqueueHit queues params for delivery unless the user opted out. It never waits on
// network I/O.
func (d *Dispatcher) EnqueueHit(params map[string]string) {
	h := hit.NewHit(params, d.clock.Now())

	if d.AppOptOut() {
		d.observer.HitDropped(d.ctx, h.Type(), DropOptOut)
		return
	}

	select {
	case <-d.closing:
		d.observer.HitDropped(d.ctx, h.Type(), DropClosed)
		return
	default:
	}

	select {
	case d.incoming <- h:
	case <-d.done:
		d.observer.HitDropped(d.ctx, h.Type(), DropClosed)
	}
}

// Flush starts a delivery attempt immediately and waits until the queue is empty, an
// exchange fails, or ctx is done.
func (d *Dispatcher) Flush(ctx context.Context) error {
	ch := make(chan error, 1)
	err := d.do(ctx, func(s *queueState) {
		if s.closing {
			ch <- ErrClosed
			return
		}
		s.waiters = append(s.waiters, ch)
		d.step(s)
	})
	if err != nil {
		return err
	}

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued hits, including one in flight.
func (d *Dispatcher) Pending(ctx context.Context) (int, error) {
	ch := make(chan int, 1)
	if err := d.do(ctx, func(s *queueState) { ch <- len(s.queue) }); err != nil {
		return 0, err
	}
	return <-ch, nil
}

// Sending reports whether an exchange is in flight.
func (d *Dispatcher) Sending(ctx context.Context) (bool, error) {
	ch := make(chan bool, 1)
	if err := d.do(ctx, func(s *queueState) { ch <- s.sending }); err != nil {
		return false, err
	}
	return <-ch, nil
}

// Deliveries returns up to limit recent exchanges, newest first.
func (d *Dispatcher) Deliveries(limit int) []Delivery {
	return d.deliveries.Recent(limit)
}

// Close stops starting new exchanges and waits for an in-flight one to finish. If ctx
// ends first the in-flight request is cancelled. Queued hits are discarded.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		close(d.closing)

		d.settingsMu.Lock()
		if d.connUnsub != nil {
			d.connUnsub()
			d.connUnsub = nil
		}
		d.settingsMu.Unlock()

		d.trackersMu.Lock()
		for id, t := range d.trackers {
			t.Close()
			delete(d.trackers, id)
		}
		d.defaultTracker = nil
		d.trackersMu.Unlock()
	})

	defer d.cancel()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.cancel()
		<-d.done
		return ctx.Err()
	}
}

// do runs fn on the dispatcher goroutine.
func (d *Dispatcher) do(ctx context.Context, fn func(*queueState)) error {
	select {
	case d.commands <- fn:
		return nil
	case <-d.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// kick asks the dispatcher goroutine to attempt a send. Safe to call from hooks.
func (d *Dispatcher) kick() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	defer observability.RecoverPanic(d.logger, "dispatcher loop")

	s := &queueState{}
	closing := d.closing

	for {
		if s.closing && !s.sending {
			s.stopRetry()
			if n := len(s.queue); n > 0 {
				d.logger.WithField("discarded", n).Warn("dispatcher closed with queued hits")
			}
			return
		}

		var retryC <-chan time.Time
		if s.retry != nil {
			retryC = s.retry.Chan()
		}

		select {
		case h := <-d.incoming:
			d.accept(s, h)
		case fn := <-d.commands:
			d.drain(s)
			fn(s)
		case res := <-d.results:
			d.complete(s, res)
		case <-retryC:
			s.retry = nil
			d.logger.WithField("attempts", s.attempts).Debug("retrying head hit")
			d.step(s)
		case <-d.wake:
			d.drain(s)
			d.step(s)
		case <-closing:
			closing = nil
			s.closing = true
			s.stopRetry()
			s.resolve(ErrClosed)
		}
	}
}

// drain accepts hits already handed off so commands observe every earlier enqueue.
func (d *Dispatcher) drain(s *queueState) {
	for {
		select {
		case h := <-d.incoming:
			d.accept(s, h)
		default:
			return
		}
	}
}

func (d *Dispatcher) accept(s *queueState, h hit.Hit) {
	if d.maxQueue > 0 && len(s.queue) >= d.maxQueue {
		d.logger.WithFields(map[string]interface{}{
			"hit_type":   h.Type(),
			"queue_size": len(s.queue),
		}).Warn("queue full, dropping hit")
		d.observer.HitDropped(d.ctx, h.Type(), DropQueueFull)
		return
	}

	s.queue = append(s.queue, h)
	d.observer.HitEnqueued(d.ctx, h.Type(), len(s.queue))
	d.observer.QueueDepthChanged(d.ctx, len(s.queue))
	d.step(s)
}

// step starts an exchange for the head hit when idle. A disabled dispatcher keeps its
// queue.
func (d *Dispatcher) step(s *queueState) {
	if s.sending || s.closing {
		return
	}
	if len(s.queue) == 0 {
		s.stopRetry()
		s.resolve(nil)
		return
	}

	settings := d.Settings()
	if !settings.Enabled {
		s.resolve(ErrDisabled)
		return
	}

	s.stopRetry()
	s.sending = true
	head := s.queue[0]
	attempt := s.attempts + 1

	go func() {
		defer observability.RecoverPanicWithCallback(d.logger, "hit exchange", func() {
			d.results <- exchangeResult{
				hit:     head,
				attempt: attempt,
				err:     fmt.Errorf("%w: exchange panicked", ErrTransport),
			}
		})
		d.results <- d.exchange(head, settings, attempt)
	}()
}

func (d *Dispatcher) complete(s *queueState, res exchangeResult) {
	s.sending = false

	delivery := Delivery{
		HitType:     res.hit.Type(),
		Method:      res.method,
		URL:         res.url,
		StatusCode:  res.statusCode,
		Attempt:     res.attempt,
		QueueTime:   res.queueTime,
		Duration:    res.duration,
		CompletedAt: d.clock.Now(),
	}
	log := res.logger
	if log == nil {
		log = d.logger
	}
	log = log.WithFields(map[string]interface{}{
		"hit_type":    res.hit.Type(),
		"status_code": res.statusCode,
		"attempt":     res.attempt,
	})

	if res.err != nil {
		s.attempts++
		delivery.Outcome = OutcomeFailed
		delivery.Error = res.err.Error()
		if res.statusCode >= 400 && res.statusCode < 500 {
			delivery.Outcome = OutcomeMalformed
		}
		d.deliveries.Record(delivery)
		d.observer.ExchangeCompleted(d.ctx, res.hit.Type(), delivery.Outcome, res.statusCode, res.duration)
		log.WithError(res.err).Warn("hit delivery failed")

		if delivery.Outcome == OutcomeMalformed {
			d.emitMalformed(HitMalformed{Hit: res.hit, StatusCode: res.statusCode})
		}
		d.emitFailed(HitFailed{Hit: res.hit, StatusCode: res.statusCode, Attempt: res.attempt, Err: res.err})
		s.resolve(res.err)
		d.scheduleRetry(s, res.err)
		return
	}

	s.attempts = 0
	s.queue[0] = hit.Hit{}
	s.queue = s.queue[1:]
	d.observer.QueueDepthChanged(d.ctx, len(s.queue))

	delivery.Outcome = OutcomeSent
	var invalid []hit.ParserMessage
	if res.debug {
		var ok bool
		if invalid, ok = parseValidation(res.body); ok && len(invalid) > 0 {
			delivery.Outcome = OutcomeMalformed
		}
	}
	d.deliveries.Record(delivery)
	d.observer.ExchangeCompleted(d.ctx, res.hit.Type(), delivery.Outcome, res.statusCode, res.duration)

	if delivery.Outcome == OutcomeMalformed {
		log.WithField("messages", len(invalid)).Warn("hit rejected by validation endpoint")
		d.emitMalformed(HitMalformed{Hit: res.hit, StatusCode: res.statusCode, Messages: invalid})
	} else {
		log.Debug("hit sent")
	}
	d.emitSent(HitSent{Hit: res.hit, StatusCode: res.statusCode, Body: res.body, QueueTime: res.queueTime})

	d.step(s)
}

func (d *Dispatcher) scheduleRetry(s *queueState, err error) {
	if s.closing {
		return
	}
	if !d.retry.ShouldRetry(s.attempts, err) {
		d.logger.WithField("attempts", s.attempts).
			Warn("retry limit reached, waiting for next enqueue or flush")
		return
	}
	delay := d.retry.NextRetryDelay(s.attempts)
	s.stopRetry()
	s.retry = d.clock.NewTimer(delay)
	d.logger.WithField("delay", delay.String()).Debug("scheduled retry")
}

// Settings returns a snapshot of the runtime settings.
func (d *Dispatcher) Settings() Settings {
	d.settingsMu.RLock()
	defer d.settingsMu.RUnlock()
	return d.settings
}

// Apply replaces all settings at once. While AutoTrackConnectivity is on, Enabled follows
// the connectivity monitor and the requested value is ignored.
func (d *Dispatcher) Apply(s Settings) {
	if s.AutoTrackConnectivity && d.connectivity == nil {
		d.logger.Warn("auto-track connectivity requested without a connectivity monitor")
		s.AutoTrackConnectivity = false
	}

	d.settingsMu.Lock()
	switch was := d.settings.AutoTrackConnectivity; {
	case s.AutoTrackConnectivity && !was:
		d.connUnsub = d.connectivity.Subscribe(d.onOnlineStateChanged)
	case !s.AutoTrackConnectivity && was:
		if d.connUnsub != nil {
			d.connUnsub()
			d.connUnsub = nil
		}
	}
	if s.AutoTrackConnectivity {
		s.Enabled = d.connectivity.Online()
	}
	d.settings = s
	d.settingsMu.Unlock()

	d.kick()
}

func (d *Dispatcher) update(fn func(*Settings)) {
	d.settingsMu.Lock()
	fn(&d.settings)
	d.settingsMu.Unlock()
	d.kick()
}

// SetEnabled turns delivery on or off. Hits enqueued while disabled are kept.
func (d *Dispatcher) SetEnabled(v bool) { d.update(func(s *Settings) { s.Enabled = v }) }

// SetSecure selects the https endpoints.
func (d *Dispatcher) SetSecure(v bool) { d.update(func(s *Settings) { s.Secure = v }) }

// SetDebug selects the validation endpoints.
func (d *Dispatcher) SetDebug(v bool) { d.update(func(s *Settings) { s.Debug = v }) }

// SetPostData selects POST bodies over GET query strings.
func (d *Dispatcher) SetPostData(v bool) { d.update(func(s *Settings) { s.PostData = v }) }

// SetBustCache adds a random z parameter to every exchange.
func (d *Dispatcher) SetBustCache(v bool) { d.update(func(s *Settings) { s.BustCache = v }) }

// SetAutoTrackConnectivity makes Enabled follow the connectivity monitor. Turning it
// off re-enables delivery.
func (d *Dispatcher) SetAutoTrackConnectivity(v bool) {
	d.settingsMu.Lock()
	if d.settings.AutoTrackConnectivity == v {
		d.settingsMu.Unlock()
		return
	}
	if v && d.connectivity == nil {
		d.settingsMu.Unlock()
		d.logger.Warn("auto-track connectivity requested without a connectivity monitor")
		return
	}

	d.settings.AutoTrackConnectivity = v
	if v {
		d.settings.Enabled = d.connectivity.Online()
		d.connUnsub = d.connectivity.Subscribe(d.onOnlineStateChanged)
	} else {
		if d.connUnsub != nil {
			d.connUnsub()
			d.connUnsub = nil
		}
		d.settings.Enabled = true
	}
	d.settingsMu.Unlock()
	d.kick()
}

func (d *Dispatcher) onOnlineStateChanged(online bool) {
	d.settingsMu.Lock()
	if !d.settings.AutoTrackConnectivity {
		d.settingsMu.Unlock()
		return
	}
	d.settings.Enabled = online
	d.settingsMu.Unlock()

	d.logger.WithField("online", online).Info("connectivity changed")
	d.kick()
}

// AppOptOut reports whether the user opted out of tracking. The value is read from the
// preference store on first use and cached.
func (d *Dispatcher) AppOptOut() bool {
	d.optOutMu.Lock()
	defer d.optOutMu.Unlock()

	if !d.optOutLoaded {
		ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
		defer cancel()
		v, err := prefs.LoadBool(ctx, d.prefs, prefs.KeyAppOptOut, false)
		if err != nil {
			d.logger.WithError(err).Warn("failed to load opt-out preference")
			return false
		}
		d.optOut = v
		d.optOutLoaded = true
	}
	return d.optOut
}

// SetAppOptOut updates the cached opt-out flag and persists it. The cache is updated
// even if persisting fails.
func (d *Dispatcher) SetAppOptOut(ctx context.Context, optOut bool) error {
	d.optOutMu.Lock()
	d.optOut = optOut
	d.optOutLoaded = true
	d.optOutMu.Unlock()

	if err := prefs.SaveBool(ctx, d.prefs, prefs.KeyAppOptOut, optOut); err != nil {
		return fmt.Errorf("failed to persist opt-out: %w", err)
	}
	return nil
}

// Platform returns the platform provider trackers are seeded from.
func (d *Dispatcher) Platform() platform.Provider {
	return d.platform
}
