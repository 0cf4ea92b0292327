package dispatch

import (
	"github.com/platinummonkey/beacon/pkg/tracker"
)

// CreateTracker returns the tracker for propertyID, creating it on first use. The first
// tracker created becomes the default tracker.
func (d *Dispatcher) CreateTracker(propertyID string) *tracker.Tracker {
	d.trackersMu.Lock()
	defer d.trackersMu.Unlock()

	if t, ok := d.trackers[propertyID]; ok {
		return t
	}

	t := tracker.New(propertyID, d.platform, d, tracker.WithApp(d.appName, d.appVersion))
	d.trackers[propertyID] = t
	if d.defaultTracker == nil {
		d.defaultTracker = t
	}

	d.logger.WithField("property_id", propertyID).Debug("created tracker")
	return t
}

// CloseTracker unregisters t and stops its platform subscription.
func (d *Dispatcher) CloseTracker(t *tracker.Tracker) {
	if t == nil {
		return
	}

	d.trackersMu.Lock()
	if current, ok := d.trackers[t.PropertyID()]; ok && current == t {
		delete(d.trackers, t.PropertyID())
	}
	if d.defaultTracker == t {
		d.defaultTracker = nil
	}
	d.trackersMu.Unlock()

	t.Close()
}

// DefaultTracker returns the first tracker created, or nil.
func (d *Dispatcher) DefaultTracker() *tracker.Tracker {
	d.trackersMu.Lock()
	defer d.trackersMu.Unlock()
	return d.defaultTracker
}

// Tracker looks up a registered tracker.
func (d *Dispatcher) Tracker(propertyID string) (*tracker.Tracker, bool) {
	d.trackersMu.Lock()
	defer d.trackersMu.Unlock()
	t, ok := d.trackers[propertyID]
	return t, ok
}
