// Package hit builds measurement-protocol hit payloads.
//
// # Overview
//
// A Builder is an immutable overlay of parameter layers. Every With/WithAll call returns a
// new Builder whose layer chain is the parent's chain plus one layer; the parent is never
// modified, so a common prefix can be branched cheaply:
//
//	base := hit.Event("video", "play", "", 0)
//	a := base.With(hit.KeyEventLabel, "intro")
//	b := base.With(hit.KeyEventLabel, "outro")
//
// Flatten reduces the chain to one map, applying layers oldest to newest so that later
// layers win on key collisions.
//
// # Hit Types
//
// screenview, event, exception, timing. Optional fields are omitted entirely when empty or
// zero; they never appear as empty strings.
//
// # Related Packages
//
//   - pkg/tracker: merges tracker defaults with a flattened builder
//   - pkg/dispatch: queues Hit values for delivery
package hit
