package hit

import (
	"strconv"
)

// Hit types
const (
	TypeScreenView = "screenview"
	TypeEvent      = "event"
	TypeException  = "exception"
	TypeTiming     = "timing"
)

// Wire parameter names
const (
	KeyProtocolVersion = "v"
	KeyPropertyID      = "tid"
	KeyClientID        = "cid"
	KeyHitType         = "t"
	KeyQueueTime       = "qt"
	KeyCacheBuster     = "z"

	KeyScreenName = "cd"

	KeyEventCategory = "ec"
	KeyEventAction   = "ea"
	KeyEventLabel    = "el"
	KeyEventValue    = "ev"

	KeyExceptionDescription = "exd"
	KeyExceptionFatal       = "exf"

	KeyTimingCategory = "utc"
	KeyTimingVariable = "utv"
	KeyTimingTime     = "utt"
	KeyTimingLabel    = "utl"

	KeySessionControl = "sc"
	KeyNonInteraction = "ni"
)

// layer is one node of the overlay chain. A layer's map is private to the node and is
// never written after construction.
type layer struct {
	parent *layer
	values map[string]string
	depth  int
}

// Builder is an immutable, layered set of hit parameters.
// The zero value is an empty builder and is ready to use.
type Builder struct {
	top *layer
}

// New creates a builder with a single layer holding a copy of values.
func New(values map[string]string) Builder {
	return Builder{}.WithAll(values)
}

// With returns a new builder with one extra layer holding key=value.
func (b Builder) With(key, value string) Builder {
	return b.push(map[string]string{key: value})
}

// WithAll returns a new builder with one extra layer holding a copy of values.
func (b Builder) WithAll(values map[string]string) Builder {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return b.push(copied)
}

func (b Builder) push(values map[string]string) Builder {
	depth := 1
	if b.top != nil {
		depth = b.top.depth + 1
	}
	return Builder{top: &layer{parent: b.top, values: values, depth: depth}}
}

// Get returns the value of key from the most recent layer that defines it.
func (b Builder) Get(key string) (string, bool) {
	for l := b.top; l != nil; l = l.parent {
		if v, ok := l.values[key]; ok {
			return v, true
		}
	}
	return "", false
}

// Depth returns the number of layers in the builder.
func (b Builder) Depth() int {
	if b.top == nil {
		return 0
	}
	return b.top.depth
}

// Flatten merges all layers into a new map. Layers are applied oldest first, so a key
// set in a later layer overwrites the same key from an earlier one.
func (b Builder) Flatten() map[string]string {
	if b.top == nil {
		return map[string]string{}
	}

	chain := make([]*layer, b.top.depth)
	size := 0
	for l := b.top; l != nil; l = l.parent {
		chain[l.depth-1] = l
		size += len(l.values)
	}

	result := make(map[string]string, size)
	for _, l := range chain {
		for k, v := range l.values {
			result[k] = v
		}
	}
	return result
}

// CustomDimension returns a builder with custom dimension cd<index> set.
func (b Builder) CustomDimension(index int, dimension string) Builder {
	return b.With("cd"+strconv.Itoa(index), dimension)
}

// CustomMetric returns a builder with custom metric cm<index> set.
func (b Builder) CustomMetric(index int, metric int64) Builder {
	return b.With("cm"+strconv.Itoa(index), strconv.FormatInt(metric, 10))
}

// NewSession marks the hit as the start of a new session.
func (b Builder) NewSession() Builder {
	return b.With(KeySessionControl, "start")
}

// NonInteraction marks the hit as a non-interaction hit.
func (b Builder) NonInteraction() Builder {
	return b.With(KeyNonInteraction, "1")
}

// ScreenView creates a screenview hit. An empty name is omitted.
func ScreenView(screenName string) Builder {
	values := map[string]string{KeyHitType: TypeScreenView}
	if screenName != "" {
		values[KeyScreenName] = screenName
	}
	return Builder{}.push(values)
}

// Event creates an event hit. Label is omitted when empty and value when zero.
func Event(category, action, label string, value int64) Builder {
	values := map[string]string{
		KeyHitType:       TypeEvent,
		KeyEventCategory: category,
		KeyEventAction:   action,
	}
	if label != "" {
		values[KeyEventLabel] = label
	}
	if value != 0 {
		values[KeyEventValue] = strconv.FormatInt(value, 10)
	}
	return Builder{}.push(values)
}

// Exception creates an exception hit. exf is only sent for non-fatal exceptions.
func Exception(description string, fatal bool) Builder {
	values := map[string]string{KeyHitType: TypeException}
	if description != "" {
		values[KeyExceptionDescription] = description
	}
	if !fatal {
		values[KeyExceptionFatal] = "0"
	}
	return Builder{}.push(values)
}

// Timing creates a user timing hit. millis is the measured duration in milliseconds.
func Timing(category, variable string, millis uint64, label string) Builder {
	values := map[string]string{KeyHitType: TypeTiming}
	if category != "" {
		values[KeyTimingCategory] = category
	}
	if variable != "" {
		values[KeyTimingVariable] = variable
	}
	if millis != 0 {
		values[KeyTimingTime] = strconv.FormatUint(millis, 10)
	}
	if label != "" {
		values[KeyTimingLabel] = label
	}
	return Builder{}.push(values)
}
