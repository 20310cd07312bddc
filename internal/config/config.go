// Package config provides configuration types and loading for the ReRide fetch proxy.
package config

import "time"

// Default configuration values.
const (
	// DefaultServerAddress is the default listen address of the HTTP server.
	DefaultServerAddress = ":8080"

	// DefaultReadTimeout is the default HTTP server read timeout.
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout is the default HTTP server write timeout.
	DefaultWriteTimeout = 30 * time.Second

	// DefaultIdleTimeout is the default HTTP server idle timeout.
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default graceful shutdown timeout.
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultUpstreamTimeout is the default timeout for upstream API calls.
	DefaultUpstreamTimeout = 10 * time.Second

	// DefaultCircuitBreakerThreshold is the default request count before the breaker may trip.
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerTimeout is the default open-state duration of the breaker.
	DefaultCircuitBreakerTimeout = 30 * time.Second

	// DefaultRateLimitRPS is the default per-client request rate.
	DefaultRateLimitRPS = 50

	// DefaultRateLimitBurst is the default per-client burst size.
	DefaultRateLimitBurst = 100

	// DefaultMetricsPath is the default path of the Prometheus endpoint.
	DefaultMetricsPath = "/metrics"

	// DefaultServiceName is the default service name used for tracing.
	DefaultServiceName = "rerideproxy"
)

// Config is the root configuration of the fetch proxy.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `yaml:"server" json:"server"`

	// Upstream describes the ReRide API the proxy fetches from.
	Upstream UpstreamConfig `yaml:"upstream" json:"upstream"`

	// Cache contains the response cache settings.
	Cache *CacheConfig `yaml:"cache,omitempty" json:"cache,omitempty"`

	// Observability contains logging, metrics and tracing settings.
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Address is the listen address, e.g. ":8080".
	Address string `yaml:"address" json:"address"`

	ReadTimeout     Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout    Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
	IdleTimeout     Duration `yaml:"idleTimeout,omitempty" json:"idleTimeout,omitempty"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`

	// RateLimit configures per-client rate limiting of the API routes.
	RateLimit *RateLimitConfig `yaml:"rateLimit,omitempty" json:"rateLimit,omitempty"`
}

// RateLimitConfig contains per-client token bucket settings.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty" json:"requestsPerSecond,omitempty"`
	Burst             int     `yaml:"burst,omitempty" json:"burst,omitempty"`
}

// UpstreamConfig describes the upstream ReRide API.
type UpstreamConfig struct {
	// BaseURL is prepended to every proxied path, e.g. "https://reride.example.com".
	BaseURL string `yaml:"baseURL" json:"baseURL"`

	// Timeout bounds a single upstream call. The cache layer imposes no timeout of its own.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Headers are added to every upstream request.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// CircuitBreaker protects the upstream from request storms while it is failing.
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuitBreaker,omitempty" json:"circuitBreaker,omitempty"`
}

// CircuitBreakerConfig contains circuit breaker settings.
type CircuitBreakerConfig struct {
	Enabled   bool     `yaml:"enabled" json:"enabled"`
	Threshold int      `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Timeout   Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// ObservabilityConfig contains logging, metrics and tracing settings.
type ObservabilityConfig struct {
	Logging LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics MetricsConfig  `yaml:"metrics" json:"metrics"`
	Tracing *TracingConfig `yaml:"tracing,omitempty" json:"tracing,omitempty"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level,omitempty" json:"level,omitempty"`

	// Format is json or console.
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
}

// MetricsConfig contains Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty" json:"otlpEndpoint,omitempty"`
	SamplingRate float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`
	ServiceName  string  `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
}

// DefaultConfig returns a configuration populated with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         DefaultServerAddress,
			ReadTimeout:     Duration(DefaultReadTimeout),
			WriteTimeout:    Duration(DefaultWriteTimeout),
			IdleTimeout:     Duration(DefaultIdleTimeout),
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
			RateLimit: &RateLimitConfig{
				Enabled:           false,
				RequestsPerSecond: DefaultRateLimitRPS,
				Burst:             DefaultRateLimitBurst,
			},
		},
		Upstream: UpstreamConfig{
			Timeout: Duration(DefaultUpstreamTimeout),
			CircuitBreaker: &CircuitBreakerConfig{
				Enabled:   true,
				Threshold: DefaultCircuitBreakerThreshold,
				Timeout:   Duration(DefaultCircuitBreakerTimeout),
			},
		},
		Cache: DefaultCacheConfig(),
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    DefaultMetricsPath,
			},
		},
	}
}

// ApplyDefaults fills zero-valued fields with defaults.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()

	if c.Server.Address == "" {
		c.Server.Address = def.Server.Address
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = def.Server.ReadTimeout
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = def.Server.WriteTimeout
	}
	if c.Server.IdleTimeout <= 0 {
		c.Server.IdleTimeout = def.Server.IdleTimeout
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if c.Server.RateLimit != nil {
		if c.Server.RateLimit.RequestsPerSecond <= 0 {
			c.Server.RateLimit.RequestsPerSecond = DefaultRateLimitRPS
		}
		if c.Server.RateLimit.Burst <= 0 {
			c.Server.RateLimit.Burst = DefaultRateLimitBurst
		}
	}

	if c.Upstream.Timeout <= 0 {
		c.Upstream.Timeout = def.Upstream.Timeout
	}
	if cb := c.Upstream.CircuitBreaker; cb != nil {
		if cb.Threshold <= 0 {
			cb.Threshold = DefaultCircuitBreakerThreshold
		}
		if cb.Timeout <= 0 {
			cb.Timeout = Duration(DefaultCircuitBreakerTimeout)
		}
	}

	if c.Cache == nil {
		c.Cache = def.Cache
	} else {
		c.Cache.applyDefaults()
	}

	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = def.Observability.Logging.Level
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = def.Observability.Logging.Format
	}
	if c.Observability.Metrics.Path == "" {
		c.Observability.Metrics.Path = DefaultMetricsPath
	}
	if t := c.Observability.Tracing; t != nil && t.ServiceName == "" {
		t.ServiceName = DefaultServiceName
	}
}
