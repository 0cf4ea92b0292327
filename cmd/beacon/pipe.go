package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/beacon/pkg/async"
	"github.com/platinummonkey/beacon/pkg/config"
	"github.com/platinummonkey/beacon/pkg/dispatch"
	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/prefs"
)

const maxLineBytes = 64 * 1024

// runPipe reads hits from stdin until EOF or a signal, flushing on a schedule and serving
// metrics and health endpoints in the meantime.
func runPipe(ctx context.Context, c *client, cfg *config.Config, flags *Flags, logger *logrus.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	flusher := async.NewSingle(c.libLogger, "flush", flags.FlushTimeout)
	flush := func() {
		flusher.Run(ctx, func(ctx context.Context) error {
			err := c.dispatcher.Flush(ctx)
			if errors.Is(err, dispatch.ErrDisabled) {
				logger.Debug("Dispatching disabled, skipping scheduled flush")
				return nil
			}
			return err
		})
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(flags.FlushSchedule, flush); err != nil {
		return fmt.Errorf("invalid flush schedule %q: %w", flags.FlushSchedule, err)
	}
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
		flusher.Wait()
	}()
	logger.Infof("Flush schedule: %s", flags.FlushSchedule)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(c, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		logger.Infof("Serving metrics and health on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if flags.ConfigPath != "" {
		watcher, err := config.NewWatcher(flags.ConfigPath, c.libLogger, func(next *config.Config) {
			config.ApplyRuntime(c.dispatcher, next)
			logger.WithField("settings", fmt.Sprintf("%+v", next.Dispatch.Settings)).Info("Applied configuration change")
		})
		if err != nil {
			return err
		}
		defer watcher.Close()
		g.Go(func() error {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	// The scanner cannot be interrupted, so the reader is left behind on shutdown.
	readDone := make(chan error, 1)
	go func() {
		n, err := readHits(ctx, os.Stdin, c, logger)
		logger.Infof("Read %d hits from stdin", n)
		readDone <- err
	}()

	g.Go(func() error {
		defer cancel()
		select {
		case <-ctx.Done():
		case err := <-readDone:
			if err != nil {
				return err
			}
		}

		flushCtx, flushCancel := context.WithTimeout(context.Background(), flags.FlushTimeout)
		defer flushCancel()
		if err := c.dispatcher.Flush(flushCtx); err != nil && !errors.Is(err, dispatch.ErrDisabled) {
			return fmt.Errorf("final flush: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// readHits sends one hit per JSON line of r. Lines that do not decode are logged and
// skipped.
func readHits(ctx context.Context, r io.Reader, c *client, logger *logrus.Logger) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	sent := 0
	line := 0
	for scanner.Scan() {
		line++
		if ctx.Err() != nil {
			return sent, nil
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		params, err := decodeParams(raw)
		if err != nil {
			logger.WithError(err).WithField("line", line).Warn("Skipping unreadable hit")
			continue
		}
		c.tracker.Send(params)
		sent++
	}
	if err := scanner.Err(); err != nil {
		return sent, fmt.Errorf("failed to read stdin: %w", err)
	}
	return sent, nil
}

// decodeParams accepts a flat JSON object. Numbers and booleans are converted to their
// text form.
func decodeParams(raw []byte) (map[string]string, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	params := make(map[string]string, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case string:
			params[k] = val
		case bool:
			if val {
				params[k] = "1"
			} else {
				params[k] = "0"
			}
		case float64:
			params[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case nil:
		default:
			return nil, fmt.Errorf("parameter %q must be a string, number or boolean", k)
		}
	}
	return params, nil
}

func newRouter(c *client, cfg *config.Config) *mux.Router {
	router := mux.NewRouter()

	checker := observability.NewHealthChecker(cfg.App.Version)
	checker.AddCheck("dispatcher", true, func(ctx context.Context) error {
		_, err := c.dispatcher.Pending(ctx)
		return err
	})
	checker.AddCheck("queue", false, func(ctx context.Context) error {
		pending, err := c.dispatcher.Pending(ctx)
		if err != nil {
			return err
		}
		if limit := cfg.Dispatch.MaxQueueSize; limit > 0 && pending >= limit {
			return fmt.Errorf("queue full (%d hits)", pending)
		}
		return nil
	})
	switch store := c.store.(type) {
	case *prefs.SQL:
		checker.AddCheck("prefs", false, observability.DatabaseCheck(store.DB()))
	case *prefs.Redis:
		checker.AddCheck("prefs", false, observability.RedisCheck(store.Client()))
	}
	if c.prober != nil {
		checker.AddCheck("connectivity", false, func(context.Context) error {
			if !c.prober.Online() {
				return fmt.Errorf("%s unreachable", cfg.Dispatch.ConnectivityProbe)
			}
			return nil
		})
	}
	observability.RegisterHealthRoutes(router, checker)

	if cfg.Observability.MetricsEnabled {
		router.Handle("/metrics", observability.MetricsHandler(c.registry)).Methods(http.MethodGet)
	}
	return router
}
