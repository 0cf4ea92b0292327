// Package collector is a local measurement-protocol collection endpoint for development
// and tests.
//
// It serves /collect and /debug/collect over GET and POST, validates each payload the
// way the production validation endpoint does and keeps a bounded history of what it
// received. /collect answers with a tracking pixel; /debug/collect answers with a
// hitParsingResult document.
//
// An admin API supports test setups:
//
//	GET    /admin/hits?limit=N&t=event   received hits, oldest first
//	POST   /admin/reset                  drop history and faults
//	GET    /admin/faults                 list injected faults
//	POST   /admin/faults                 {"path":"/collect","status_code":503,"count":2}
//	DELETE /admin/faults?path=/collect
//
// With Options.RateLimit set, each property and client pair gets a token bucket.
// Throttled hits are answered with 503 and Retry-After so clients keep them queued.
//
// Typical test use:
//
//	c := collector.New(collector.Options{})
//	srv := httptest.NewServer(c.Handler())
//	d := dispatch.New(dispatch.Options{Endpoints: dispatch.Uniform(srv.URL + collector.PathCollect)})
package collector
