package dispatch

import "errors"

var (
	// ErrTransport wraps network failures and non-2xx responses.
	ErrTransport = errors.New("transport failure")
	// ErrClosed is returned once the dispatcher has been closed.
	ErrClosed = errors.New("dispatcher closed")
	// ErrDisabled is returned by Flush while dispatching is disabled and hits are queued.
	ErrDisabled = errors.New("dispatching disabled")
)
