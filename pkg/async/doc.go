// Package async runs background tasks with panic recovery, timeouts and logging.
//
// SafeGo runs one detached task:
//
//	async.SafeGo(ctx, logger, 30*time.Second, "config reload", reload)
//
// Single keeps a periodic task from overlapping itself, which suits cron-driven flushes:
//
//	flush := async.NewSingle(logger, "scheduled flush", time.Minute)
//	c.AddFunc("@every 1m", func() { flush.Run(ctx, d.Flush) })
package async
