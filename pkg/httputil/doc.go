// Package httputil provides the HTTP helpers shared by the collector and the beacon
// daemon: JSON and pixel responses, query parsing and request middleware.
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.RecoveryMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//		httputil.MaxBytesMiddleware(8192),
//	)(router)
package httputil
