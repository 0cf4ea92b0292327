// Package observability provides structured logging, Prometheus and OpenTelemetry metrics,
// tracing setup, health checks and shutdown sequencing.
//
// # Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stderr)
//	logger.WithField("hit_type", "event").Warnf("exchange failed: %v", err)
//
// # Metrics
//
// Metrics and OTelMetrics both implement the dispatcher observer, so either can be passed
// as dispatch.Options.Observer:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	d := dispatch.New(dispatch.Options{Observer: metrics})
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// # Health
//
//	checker := observability.NewHealthChecker(version)
//	checker.AddCheck("prefs", true, observability.DatabaseCheck(db))
//	observability.RegisterHealthRoutes(router, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:  true,
//		Endpoint: "otel-collector:4317",
//		Insecure: true,
//	}, logger)
//	defer providers.Shutdown(ctx)
package observability
