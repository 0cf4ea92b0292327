package dispatch

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ConnectivityMonitor reports whether the network is reachable.
type ConnectivityMonitor interface {
	Online() bool
	// Subscribe registers fn for online state changes and returns a function that
	// removes it.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// listeners is the subscription bookkeeping shared by the monitors in this package.
type listeners struct {
	mu     sync.Mutex
	online bool
	fns    map[int]func(bool)
	nextID int
}

func (l *listeners) Online() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.online
}

func (l *listeners) Subscribe(fn func(online bool)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(bool))
	}
	id := l.nextID
	l.nextID++
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.fns, id)
		})
	}
}

// set updates the state and notifies subscribers outside the lock when it changed.
func (l *listeners) set(online bool) {
	l.mu.Lock()
	if l.online == online {
		l.mu.Unlock()
		return
	}
	l.online = online
	fns := make([]func(bool), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

// ManualMonitor is a ConnectivityMonitor driven by the embedding application.
type ManualMonitor struct {
	listeners
}

// NewManualMonitor creates a monitor with the given initial state.
func NewManualMonitor(online bool) *ManualMonitor {
	m := &ManualMonitor{}
	m.online = online
	return m
}

// SetOnline changes the state and notifies subscribers.
func (m *ManualMonitor) SetOnline(online bool) {
	m.set(online)
}

// NetworkProber derives connectivity from periodic TCP dials to a well-known address.
type NetworkProber struct {
	listeners

	address  string
	interval time.Duration
	timeout  time.Duration
	clock    clockwork.Clock
	dial     func(ctx context.Context, network, address string) (net.Conn, error)

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// ProberOption configures a NetworkProber.
type ProberOption func(*NetworkProber)

// WithProbeClock replaces the clock driving the probe ticker.
func WithProbeClock(clock clockwork.Clock) ProberOption {
	return func(p *NetworkProber) {
		p.clock = clock
	}
}

// WithDialer replaces the dial function.
func WithDialer(dial func(ctx context.Context, network, address string) (net.Conn, error)) ProberOption {
	return func(p *NetworkProber) {
		p.dial = dial
	}
}

// NewNetworkProber creates a prober for address (host:port). The initial state is
// online until the first probe says otherwise.
func NewNetworkProber(address string, interval time.Duration, opts ...ProberOption) *NetworkProber {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	dialer := &net.Dialer{}
	p := &NetworkProber{
		address:  address,
		interval: interval,
		timeout:  5 * time.Second,
		clock:    clockwork.NewRealClock(),
		dial:     dialer.DialContext,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	p.online = true
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe performs a single dial and updates the state.
func (p *NetworkProber) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dial(ctx, "tcp", p.address)
	online := err == nil
	if conn != nil {
		_ = conn.Close()
	}
	p.set(online)
	return online
}

// Start probes immediately and then on every interval until Stop or ctx is done.
func (p *NetworkProber) Start(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	go func() {
		defer close(p.done)
		defer ticker.Stop()

		p.Probe(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stop:
				return
			case <-ticker.Chan():
				p.Probe(ctx)
			}
		}
	}()
}

// Stop ends probing and waits for the probe goroutine to exit. Only valid after Start.
func (p *NetworkProber) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
	<-p.done
}
