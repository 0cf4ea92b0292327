package async

import (
	"context"
	"sync"
	"time"

	"github.com/platinummonkey/beacon/pkg/observability"
)

// SafeGo runs fn in a goroutine under a timeout derived from parentCtx. Panics are
// recovered and logged; a returned error is logged at Warn. The returned channel is closed
// when fn has finished.
//
//	async.SafeGo(ctx, logger, 30*time.Second, "scheduled flush", d.Flush)
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer observability.RecoverPanic(logger, taskName)

		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Warn("background task failed")
		}
	}()
	return done
}

// Single runs at most one instance of a task at a time. A Run while the previous run is
// still active is skipped.
type Single struct {
	logger   *observability.Logger
	taskName string
	timeout  time.Duration

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// NewSingle creates a Single for taskName.
func NewSingle(logger *observability.Logger, taskName string, timeout time.Duration) *Single {
	return &Single{logger: logger, taskName: taskName, timeout: timeout}
}

// Run starts fn unless a previous run is still active. It reports whether fn was started.
func (s *Single) Run(ctx context.Context, fn func(context.Context) error) bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.WithField("task", s.taskName).Debug("previous run still active, skipping")
		return false
	}
	s.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	done := SafeGo(ctx, s.logger, s.timeout, s.taskName, fn)
	go func() {
		<-done
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.wg.Done()
	}()
	return true
}

// Wait blocks until the active run, if any, has finished.
func (s *Single) Wait() {
	s.wg.Wait()
}
