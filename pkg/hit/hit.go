package hit

import (
	"time"
)

// Hit is a flattened set of parameters plus the time it was created.
type Hit struct {
	params    map[string]string
	createdAt time.Time
}

// NewHit creates a hit from a copy of params.
func NewHit(params map[string]string, createdAt time.Time) Hit {
	copied := make(map[string]string, len(params))
	for k, v := range params {
		copied[k] = v
	}
	return Hit{params: copied, createdAt: createdAt}
}

// Params returns a copy of the hit parameters.
func (h Hit) Params() map[string]string {
	copied := make(map[string]string, len(h.params))
	for k, v := range h.params {
		copied[k] = v
	}
	return copied
}

// Get returns a single parameter.
func (h Hit) Get(key string) (string, bool) {
	v, ok := h.params[key]
	return v, ok
}

// Type returns the hit type, or an empty string if unset.
func (h Hit) Type() string {
	return h.params[KeyHitType]
}

// CreatedAt returns the creation timestamp.
func (h Hit) CreatedAt() time.Time {
	return h.createdAt
}

// QueueTime returns how long the hit has waited as of now. Never negative.
func (h Hit) QueueTime(now time.Time) time.Duration {
	d := now.Sub(h.createdAt)
	if d < 0 {
		return 0
	}
	return d
}
