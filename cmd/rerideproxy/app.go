package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/reride-fetch/internal/cache"
	"github.com/vyrodovalexey/reride-fetch/internal/config"
	"github.com/vyrodovalexey/reride-fetch/internal/debounce"
	"github.com/vyrodovalexey/reride-fetch/internal/dedup"
	"github.com/vyrodovalexey/reride-fetch/internal/fetch"
	"github.com/vyrodovalexey/reride-fetch/internal/middleware"
	"github.com/vyrodovalexey/reride-fetch/internal/observability"
	"github.com/vyrodovalexey/reride-fetch/internal/reqcache"
	"github.com/vyrodovalexey/reride-fetch/internal/server"
)

// application holds all application components.
type application struct {
	server  *server.Server
	layer   *reqcache.Layer
	metrics *observability.Metrics
	tracer  *observability.Tracer
	config  *config.Config
	logger  observability.Logger
}

// initApplication initializes all application components.
func initApplication(cfg *config.Config, logger observability.Logger) (*application, error) {
	metrics := observability.NewMetrics()
	metrics.SetBuildInfo(version, gitCommit, buildTime)
	if err := registerCollectors(metrics); err != nil {
		return nil, err
	}

	tracer, err := initTracer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	var clientOpts []fetch.ClientOption
	breaker := fetch.NewBreakerFromConfig("upstream", cfg.Upstream.CircuitBreaker,
		fetch.WithBreakerLogger(logger),
		fetch.WithBreakerStateCallback(metrics.SetCircuitBreakerState))
	if breaker != nil {
		clientOpts = append(clientOpts, fetch.WithBreaker(breaker))
	}

	layer, err := reqcache.New(cfg, logger, clientOpts...)
	if err != nil {
		_ = tracer.Shutdown(context.Background())
		return nil, err
	}

	srv := server.New(cfg, layer,
		server.WithLogger(logger),
		server.WithMetrics(metrics),
		server.WithVersion(version))

	return &application{
		server:  srv,
		layer:   layer,
		metrics: metrics,
		tracer:  tracer,
		config:  cfg,
		logger:  logger,
	}, nil
}

// registerCollectors registers the package metrics with the process registry.
func registerCollectors(metrics *observability.Metrics) error {
	cacheMetrics := cache.GetMetrics()
	cacheMetrics.Init()

	groups := [][]prometheus.Collector{
		cacheMetrics.Collectors(),
		fetch.GetMetrics().Collectors(),
		dedup.GetMetrics().Collectors(),
		debounce.GetMetrics().Collectors(),
		middleware.GetMiddlewareMetrics().Collectors(),
	}

	for _, cs := range groups {
		for _, c := range cs {
			if err := metrics.Registry().Register(c); err != nil {
				return fmt.Errorf("failed to register collector: %w", err)
			}
		}
	}
	return nil
}

// initTracer initializes the tracer.
func initTracer(cfg *config.Config) (*observability.Tracer, error) {
	tracerCfg := observability.TracerConfig{
		ServiceName:  config.DefaultServiceName,
		SamplingRate: 1.0,
	}

	if t := cfg.Observability.Tracing; t != nil {
		tracerCfg.Enabled = t.Enabled
		tracerCfg.SamplingRate = t.SamplingRate
		tracerCfg.OTLPEndpoint = t.OTLPEndpoint
		if t.ServiceName != "" {
			tracerCfg.ServiceName = t.ServiceName
		}
	}

	return observability.NewTracer(tracerCfg)
}
