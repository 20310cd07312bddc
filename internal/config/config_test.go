package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, DefaultServerAddress, cfg.Server.Address)
	assert.Equal(t, DefaultReadTimeout, cfg.Server.ReadTimeout.Duration())
	assert.Equal(t, DefaultShutdownTimeout, cfg.Server.ShutdownTimeout.Duration())
	require.NotNil(t, cfg.Server.RateLimit)
	assert.False(t, cfg.Server.RateLimit.Enabled)

	assert.Equal(t, DefaultUpstreamTimeout, cfg.Upstream.Timeout.Duration())
	require.NotNil(t, cfg.Upstream.CircuitBreaker)
	assert.True(t, cfg.Upstream.CircuitBreaker.Enabled)

	require.NotNil(t, cfg.Cache)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, CacheTypeMemory, cfg.Cache.Type)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL.Duration())
	assert.Equal(t, 100, cfg.Cache.MaxEntries)
	assert.Equal(t, 5*time.Minute, cfg.Cache.CleanupInterval.Duration())

	assert.Equal(t, "info", cfg.Observability.Logging.Level)
	assert.Equal(t, "json", cfg.Observability.Logging.Format)
	assert.True(t, cfg.Observability.Metrics.Enabled)
	assert.Equal(t, DefaultMetricsPath, cfg.Observability.Metrics.Path)
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			RateLimit: &RateLimitConfig{Enabled: true},
		},
		Upstream: UpstreamConfig{
			BaseURL:        "https://api.reride.example",
			CircuitBreaker: &CircuitBreakerConfig{Enabled: true},
		},
		Cache: &CacheConfig{Enabled: true, Redis: &RedisCacheConfig{URL: "redis://localhost:6379"}},
		Observability: ObservabilityConfig{
			Tracing: &TracingConfig{Enabled: true},
		},
	}

	cfg.ApplyDefaults()

	assert.Equal(t, DefaultServerAddress, cfg.Server.Address)
	assert.Equal(t, DefaultIdleTimeout, cfg.Server.IdleTimeout.Duration())
	assert.Equal(t, float64(DefaultRateLimitRPS), cfg.Server.RateLimit.RequestsPerSecond)
	assert.Equal(t, DefaultRateLimitBurst, cfg.Server.RateLimit.Burst)

	assert.Equal(t, "https://api.reride.example", cfg.Upstream.BaseURL)
	assert.Equal(t, DefaultCircuitBreakerThreshold, cfg.Upstream.CircuitBreaker.Threshold)
	assert.Equal(t, DefaultCircuitBreakerTimeout, cfg.Upstream.CircuitBreaker.Timeout.Duration())

	assert.Equal(t, CacheTypeMemory, cfg.Cache.Type)
	assert.Equal(t, DefaultCacheMaxEntries, cfg.Cache.MaxEntries)
	assert.Equal(t, DefaultRedisKeyPrefix, cfg.Cache.Redis.KeyPrefix)
	assert.Equal(t, DefaultRedisPoolSize, cfg.Cache.Redis.PoolSize)

	assert.Equal(t, DefaultServiceName, cfg.Observability.Tracing.ServiceName)
	assert.Equal(t, DefaultMetricsPath, cfg.Observability.Metrics.Path)
}

func TestConfig_ApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Address: ":9090", ReadTimeout: Duration(time.Second)},
		Cache:  &CacheConfig{Enabled: true, Type: CacheTypeMemory, MaxEntries: 2, TTL: Duration(time.Minute)},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{Level: "debug", Format: "console"},
		},
	}

	cfg.ApplyDefaults()

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, time.Second, cfg.Server.ReadTimeout.Duration())
	assert.Equal(t, 2, cfg.Cache.MaxEntries)
	assert.Equal(t, time.Minute, cfg.Cache.TTL.Duration())
	assert.Equal(t, "debug", cfg.Observability.Logging.Level)
	assert.Equal(t, "console", cfg.Observability.Logging.Format)
}

func TestConfig_ApplyDefaults_NilCache(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	require.NotNil(t, cfg.Cache)
	assert.True(t, cfg.Cache.Enabled)
}
