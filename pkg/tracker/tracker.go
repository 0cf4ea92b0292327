package tracker

import (
	"strconv"
	"sync"

	"github.com/platinummonkey/beacon/pkg/hit"
	"github.com/platinummonkey/beacon/pkg/platform"
)

// ProtocolVersion is the measurement protocol version sent with every hit.
const ProtocolVersion = "1"

// Enqueuer accepts flattened hits for delivery.
type Enqueuer interface {
	EnqueueHit(params map[string]string)
}

// Tracker holds per-property defaults and merges them into every hit it sends.
// A Tracker is safe for concurrent use.
type Tracker struct {
	propertyID string
	enqueuer   Enqueuer
	provider   platform.Provider

	mu               sync.RWMutex
	clientID         string
	appName          string
	appVersion       string
	appID            string
	appInstallerID   string
	screenName       string
	anonymizeIP      bool
	screenResolution platform.Dimensions
	viewportSize     platform.Dimensions
	screenColors     int
	language         string
	encoding         string
	ipOverride       string
	userAgent        string
	location         string
	values           map[string]string

	unsubscribe func()
	closeOnce   sync.Once
}

// Option configures a Tracker at construction.
type Option func(*Tracker)

// WithApp sets the application name and version.
func WithApp(name, version string) Option {
	return func(t *Tracker) {
		t.appName = name
		t.appVersion = version
	}
}

// WithAnonymizeIP enables IP anonymization for every hit.
func WithAnonymizeIP() Option {
	return func(t *Tracker) {
		t.anonymizeIP = true
	}
}

// WithValues pre-populates the ad-hoc parameter store.
func WithValues(values map[string]string) Option {
	return func(t *Tracker) {
		for k, v := range values {
			t.values[k] = v
		}
	}
}

// New creates a tracker for propertyID. When provider is non-nil the tracker is seeded
// from it and follows its geometry notifications until Close. Options are applied after
// the provider values.
func New(propertyID string, provider platform.Provider, enqueuer Enqueuer, opts ...Option) *Tracker {
	t := &Tracker{
		propertyID: propertyID,
		enqueuer:   enqueuer,
		provider:   provider,
		values:     make(map[string]string),
	}

	if provider != nil {
		t.clientID = provider.AnonymousClientID()
		t.screenColors = provider.ScreenColors()
		t.screenResolution = provider.ScreenResolution()
		t.viewportSize = provider.ViewportResolution()
		t.language = provider.UserLanguage()
		t.unsubscribe = provider.OnGeometryChanged(t.onGeometryChanged)
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

func (t *Tracker) onGeometryChanged(kind platform.Geometry) {
	switch kind {
	case platform.GeometryScreen:
		d := t.provider.ScreenResolution()
		t.mu.Lock()
		t.screenResolution = d
		t.mu.Unlock()
	case platform.GeometryViewport:
		d := t.provider.ViewportResolution()
		t.mu.Lock()
		t.viewportSize = d
		t.mu.Unlock()
	}
}

// Close stops following geometry notifications. Safe to call more than once.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() {
		if t.unsubscribe != nil {
			t.unsubscribe()
		}
	})
}

// PropertyID returns the tracking ID all hits from this tracker are sent to.
func (t *Tracker) PropertyID() string {
	return t.propertyID
}

// Get returns a value previously stored with Set.
func (t *Tracker) Get(key string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[key]
	return v, ok
}

// Set stores a parameter that is sent with every subsequent hit. Setting the same key
// again replaces the previous value.
func (t *Tracker) Set(key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[key] = value
}

// Send merges the tracker's defaults with params and hands the hit to the dispatcher.
// Values in params override everything the tracker holds, including values stored with
// Set, but only for this hit. Send does not wait for delivery.
func (t *Tracker) Send(params map[string]string) {
	t.enqueuer.EnqueueHit(t.build(params).Flatten())
}

// SendHit flattens b and sends it.
func (t *Tracker) SendHit(b hit.Builder) {
	t.Send(b.Flatten())
}

// SendScreenView sends a screenview hit.
func (t *Tracker) SendScreenView(screenName string) {
	t.SendHit(hit.ScreenView(screenName))
}

// SendEvent sends an event hit.
func (t *Tracker) SendEvent(category, action, label string, value int64) {
	t.SendHit(hit.Event(category, action, label, value))
}

// SendException sends an exception hit.
func (t *Tracker) SendException(description string, fatal bool) {
	t.SendHit(hit.Exception(description, fatal))
}

// SendTiming sends a user timing hit.
func (t *Tracker) SendTiming(category, variable string, millis uint64, label string) {
	t.SendHit(hit.Timing(category, variable, millis, label))
}

// build layers required fields, conditional fields, stored values and call parameters,
// in increasing priority.
func (t *Tracker) build(params map[string]string) hit.Builder {
	t.mu.RLock()
	defer t.mu.RUnlock()

	required := map[string]string{
		hit.KeyProtocolVersion: ProtocolVersion,
		hit.KeyPropertyID:      t.propertyID,
		hit.KeyClientID:        t.clientID,
		"an":                   t.appName,
		"av":                   t.appVersion,
	}

	optional := make(map[string]string)
	setIf := func(key, value string) {
		if value != "" {
			optional[key] = value
		}
	}
	setIf("aid", t.appID)
	setIf("aiid", t.appInstallerID)
	setIf(hit.KeyScreenName, t.screenName)
	if t.anonymizeIP {
		optional["aip"] = "1"
	}
	if !t.screenResolution.IsZero() {
		optional["sr"] = t.screenResolution.String()
	}
	if !t.viewportSize.IsZero() {
		optional["vp"] = t.viewportSize.String()
	}
	if t.screenColors != 0 {
		optional["sd"] = strconv.Itoa(t.screenColors) + "-bits"
	}
	setIf("ul", t.language)
	setIf("de", t.encoding)
	setIf("uip", t.ipOverride)
	setIf("ua", t.userAgent)
	setIf("geoid", t.location)

	return hit.New(required).
		WithAll(optional).
		WithAll(t.values).
		WithAll(params)
}
