// Package dispatch delivers hits to the measurement protocol collection endpoint.
//
// A Dispatcher keeps a FIFO queue of hits and sends at most one at a time. The head of
// the queue is only removed after a 2xx response; any other outcome leaves it in place
// and the dispatcher goes idle until a backoff timer fires, a new hit is enqueued, or
// Flush is called.
//
// # States
//
//	Idle    --enqueue/flush/retry--> Sending   (queue non-empty and enabled)
//	Sending --2xx-->                 Sending   (next hit) or Idle (queue empty)
//	Sending --error-->               Idle      (head retained, retry scheduled)
//
// # Usage Example
//
//	d := dispatch.New(dispatch.Options{
//	    Platform:   platform.NewInfo(platform.Config{AppName: "demo"}),
//	    AppName:    "demo",
//	    AppVersion: "1.0",
//	})
//	defer d.Close(context.Background())
//
//	t := d.CreateTracker("UA-12345-1")
//	t.SendScreenView("Home")
package dispatch
