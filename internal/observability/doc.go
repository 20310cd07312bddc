// Package observability provides logging, metrics, and tracing
// functionality for the ReRide fetch proxy.
//
// Structured logging is implemented with zap behind the Logger interface,
// metrics are collected into a single Prometheus registry, and traces are
// exported over OTLP gRPC with OpenTelemetry.
//
// # Logging
//
//	logger, err := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("cache initialized",
//	    observability.Int("maxEntries", 100),
//	)
//
// # Metrics
//
//	metrics := observability.NewMetrics()
//	metrics.MustRegisterCollector(collector)
//	router.GET("/metrics", gin.WrapH(metrics.Handler()))
//
// # Tracing
//
//	tracer, err := observability.NewTracer(observability.TracerConfig{
//	    ServiceName:  "rerideproxy",
//	    OTLPEndpoint: "localhost:4317",
//	    Enabled:      true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tracer.Shutdown(ctx)
package observability
