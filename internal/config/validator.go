package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, e[i].Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates proxy configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// ValidateConfig validates a configuration.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// Validate validates the configuration and returns ValidationErrors if any check fails.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	if cfg == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateServer(&cfg.Server)
	v.validateUpstream(&cfg.Upstream)
	v.validateCache(cfg.Cache)
	v.validateObservability(&cfg.Observability)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateServer(s *ServerConfig) {
	if s.Address == "" {
		v.addError("server.address", "address is required")
	}
	if s.ShutdownTimeout < 0 {
		v.addError("server.shutdownTimeout", "shutdownTimeout must not be negative")
	}
	if rl := s.RateLimit; rl != nil && rl.Enabled {
		if rl.RequestsPerSecond <= 0 {
			v.addError("server.rateLimit.requestsPerSecond", "requestsPerSecond must be positive")
		}
		if rl.Burst <= 0 {
			v.addError("server.rateLimit.burst", "burst must be positive")
		}
	}
}

func (v *Validator) validateUpstream(u *UpstreamConfig) {
	if u.BaseURL == "" {
		v.addError("upstream.baseURL", "baseURL is required")
	} else {
		parsed, err := url.Parse(u.BaseURL)
		switch {
		case err != nil:
			v.addError("upstream.baseURL", fmt.Sprintf("invalid URL: %v", err))
		case parsed.Scheme != "http" && parsed.Scheme != "https":
			v.addError("upstream.baseURL", "scheme must be http or https")
		case parsed.Host == "":
			v.addError("upstream.baseURL", "host is required")
		}
	}

	if u.Timeout < 0 {
		v.addError("upstream.timeout", "timeout must not be negative")
	}

	if cb := u.CircuitBreaker; cb != nil && cb.Enabled {
		if cb.Threshold <= 0 {
			v.addError("upstream.circuitBreaker.threshold", "threshold must be positive")
		}
		if cb.Timeout <= 0 {
			v.addError("upstream.circuitBreaker.timeout", "timeout must be positive")
		}
	}
}

func (v *Validator) validateCache(c *CacheConfig) {
	if c.IsEmpty() {
		return
	}

	switch c.Type {
	case CacheTypeMemory, "":
		if c.MaxEntries < 0 {
			v.addError("cache.maxEntries", "maxEntries must not be negative")
		}
	case CacheTypeRedis:
		if c.Redis.IsEmpty() {
			v.addError("cache.redis.url", "url is required for redis cache")
		}
	default:
		v.addError("cache.type", fmt.Sprintf("invalid cache type: %s", c.Type))
	}

	if c.TTL < 0 {
		v.addError("cache.ttl", "ttl must not be negative")
	}
	if c.CleanupInterval < 0 {
		v.addError("cache.cleanupInterval", "cleanupInterval must not be negative")
	}
	if c.Redis != nil && (c.Redis.TTLJitter < 0 || c.Redis.TTLJitter > 1) {
		v.addError("cache.redis.ttlJitter", "ttlJitter must be between 0 and 1")
	}
}

func (v *Validator) validateObservability(obs *ObservabilityConfig) {
	if lvl := obs.Logging.Level; lvl != "" {
		switch lvl {
		case "debug", "info", "warn", "error":
		default:
			v.addError("observability.logging.level", fmt.Sprintf("invalid log level: %s", lvl))
		}
	}

	if f := obs.Logging.Format; f != "" && f != "json" && f != "console" {
		v.addError("observability.logging.format", fmt.Sprintf("invalid log format: %s", f))
	}

	if obs.Metrics.Enabled && obs.Metrics.Path != "" && !strings.HasPrefix(obs.Metrics.Path, "/") {
		v.addError("observability.metrics.path", "path must start with '/'")
	}

	if t := obs.Tracing; t != nil && t.Enabled {
		if t.SamplingRate < 0 || t.SamplingRate > 1 {
			v.addError("observability.tracing.samplingRate", "samplingRate must be between 0 and 1")
		}
	}
}

// addError adds a validation error.
func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}
