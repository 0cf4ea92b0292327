// Package contextkeys defines the context keys shared across packages.
//
//	ctx = context.WithValue(ctx, contextkeys.RequestIDKey, id)
package contextkeys

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey holds the request ID string.
	// Set by: collector request middleware, observability.WithRequestID
	RequestIDKey Key = "request_id"

	// LoggerKey holds a *observability.Logger.
	// Set by: observability.WithLogger
	LoggerKey Key = "logger"
)
