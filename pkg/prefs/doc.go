// Package prefs persists client preferences such as the opt-out flag and the anonymous
// client ID.
//
// # Backends
//
//   - memory: process lifetime only
//   - file: YAML document under the user config dir
//   - sqlite / postgres: beacon_preferences table
//   - redis: one hash per group
//
// # Usage Example
//
//	store, closeFn, err := prefs.Open(ctx, prefs.Config{Type: "file"})
//	if err != nil {
//		return err
//	}
//	defer closeFn()
//
//	optOut, err := prefs.LoadBool(ctx, store, prefs.KeyAppOptOut, false)
package prefs
