package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/beacon/pkg/config"
	"github.com/platinummonkey/beacon/pkg/dispatch"
	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/platform"
	"github.com/platinummonkey/beacon/pkg/prefs"
	"github.com/platinummonkey/beacon/pkg/tracker"
)

// client bundles a dispatcher and everything it was built from.
type client struct {
	dispatcher *dispatch.Dispatcher
	tracker    *tracker.Tracker
	store      prefs.Store
	registry   *prometheus.Registry
	prober     *dispatch.NetworkProber
	libLogger  *observability.Logger
	closers    []namedCloser
}

type namedCloser struct {
	name string
	fn   func(ctx context.Context) error
}

func newClient(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*client, error) {
	libLogger := observability.NewLogger(cfg.Observability.Level(), os.Stderr).
		WithField("service", cfg.Observability.OTel.ServiceName)
	c := &client{
		registry:  prometheus.NewRegistry(),
		libLogger: libLogger,
	}

	store, closeStore, err := prefs.Open(ctx, cfg.Prefs)
	if err != nil {
		return nil, fmt.Errorf("failed to open preferences: %w", err)
	}
	c.store = store
	c.closers = append(c.closers, namedCloser{"prefs", func(context.Context) error { return closeStore() }})

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel, libLogger)
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	observers := dispatch.MultiObserver{}
	if cfg.Observability.MetricsEnabled {
		observers = append(observers, observability.NewMetrics(c.registry))
	}
	if providers != nil {
		c.closers = append(c.closers, namedCloser{"otel", providers.Shutdown})
		otelMetrics, err := observability.NewOTelMetrics()
		if err != nil {
			_ = providers.Shutdown(ctx)
			_ = closeStore()
			return nil, err
		}
		observers = append(observers, otelMetrics)
	}

	info := platform.NewInfo(platform.Config{
		AppName:    cfg.App.Name,
		AppVersion: cfg.App.Version,
		Store:      store,
	})

	opts := cfg.DispatchOptions()
	opts.Platform = info
	opts.Prefs = store
	opts.Logger = libLogger
	opts.Observer = observers

	if cfg.Dispatch.ConnectivityProbe != "" {
		c.prober = dispatch.NewNetworkProber(cfg.Dispatch.ConnectivityProbe, cfg.Dispatch.ConnectivityInterval)
		c.prober.Start(ctx)
		opts.Connectivity = c.prober
	}

	c.dispatcher = dispatch.New(opts)
	c.tracker = c.dispatcher.CreateTracker(cfg.App.PropertyID)
	registerHooks(c.dispatcher, logger)

	logger.WithFields(logrus.Fields{
		"property_id": cfg.App.PropertyID,
		"prefs":       cfg.Prefs.Type,
		"debug":       cfg.Dispatch.Settings.Debug,
	}).Debug("Client ready")

	return c, nil
}

func registerHooks(d *dispatch.Dispatcher, logger *logrus.Logger) {
	d.OnHitSent(func(e dispatch.HitSent) {
		logger.WithFields(logrus.Fields{
			"hit_type":   e.Hit.Type(),
			"status":     e.StatusCode,
			"queue_time": e.QueueTime,
		}).Info("Hit sent")
	})
	d.OnHitFailed(func(e dispatch.HitFailed) {
		logger.WithFields(logrus.Fields{
			"hit_type": e.Hit.Type(),
			"status":   e.StatusCode,
			"attempt":  e.Attempt,
		}).WithError(e.Err).Warn("Hit delivery failed")
	})
	d.OnHitMalformed(func(e dispatch.HitMalformed) {
		entry := logger.WithFields(logrus.Fields{
			"hit_type": e.Hit.Type(),
			"status":   e.StatusCode,
		})
		if len(e.Messages) == 0 {
			entry.Warn("Hit rejected as malformed")
			return
		}
		for _, m := range e.Messages {
			entry.WithFields(logrus.Fields{
				"parameter": m.Parameter,
				"code":      m.MessageCode,
			}).Warn(m.Description)
		}
	})
}

// Close stops the dispatcher and releases its resources, waiting at most timeout for an
// in-flight exchange.
func (c *client) Close(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := c.dispatcher.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("dispatcher: %w", err))
	}
	if c.prober != nil {
		c.prober.Stop()
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.closers[i].name, err))
		}
	}
	return errors.Join(errs...)
}
