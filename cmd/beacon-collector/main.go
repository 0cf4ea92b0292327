package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/beacon/pkg/collector"
	"github.com/platinummonkey/beacon/pkg/observability"
)

// Config holds the collector service configuration
type Config struct {
	Addr            string
	LogLevel        string
	HistorySize     int
	Strict          bool
	RateLimit       int
	RateBurst       int
	ShutdownTimeout time.Duration
}

func main() {
	config := parseFlags()

	logger := setupLogger(config.LogLevel)
	logger.Info("Starting beacon collector")

	level, err := observability.ParseLogLevel(config.LogLevel)
	if err != nil {
		logger.Warnf("Unknown log level %q, using info", config.LogLevel)
	}
	libLogger := observability.NewLogger(level, os.Stderr).WithField("service", "beacon-collector")

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	opts := collector.Options{
		Logger:      libLogger,
		Metrics:     metrics,
		HistorySize: config.HistorySize,
		Strict:      config.Strict,
	}
	if config.RateLimit > 0 {
		opts.RateLimit = &collector.RateLimitConfig{
			HitsPerWindow:  config.RateLimit,
			WindowDuration: time.Minute,
			BurstSize:      config.RateBurst,
		}
		logger.Infof("Throttling to %d hits per minute per client (burst %d)", config.RateLimit, config.RateBurst)
	}
	col := collector.New(opts)

	ctx, cancel := context.WithCancel(context.Background())
	col.StartCleanup(ctx)

	server := &http.Server{
		Addr:              config.Addr,
		Handler:           newRouter(col, registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := observability.NewShutdownManager(libLogger, server, config.ShutdownTimeout)
	shutdown.Register("history", func(context.Context) error {
		logger.Infof("Discarding %d recorded hits", len(col.Hits(0)))
		col.Reset()
		return nil
	})

	go func() {
		logger.Infof("Listening on %s (strict=%t)", config.Addr, config.Strict)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	err = shutdown.WaitForSignal(ctx)
	cancel()
	if err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
	logger.Info("Collector stopped")
}

func parseFlags() *Config {
	config := &Config{}

	flag.StringVar(&config.Addr, "addr", getEnv("BEACON_COLLECTOR_ADDR", ":8080"), "Listen address")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.IntVar(&config.HistorySize, "history", collector.DefaultHistorySize, "Number of received hits to keep")
	flag.BoolVar(&config.Strict, "strict", false, "Answer 400 to invalid hits on /collect")
	flag.IntVar(&config.RateLimit, "rate-limit", 0, "Hits per minute allowed per property and client (0 disables throttling)")
	flag.IntVar(&config.RateBurst, "rate-burst", 0, "Extra hits allowed in a burst above -rate-limit")
	flag.DurationVar(&config.ShutdownTimeout, "shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")

	flag.Parse()

	return config
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// newRouter serves the collector alongside metrics and health endpoints.
func newRouter(col *collector.Collector, registry *prometheus.Registry) http.Handler {
	router := mux.NewRouter()

	checker := observability.NewHealthChecker("")
	observability.RegisterHealthRoutes(router, checker)
	router.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet)
	router.PathPrefix("/").Handler(col.Handler())

	return router
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
