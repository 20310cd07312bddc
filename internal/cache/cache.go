package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vyrodovalexey/reride-fetch/internal/config"
	"github.com/vyrodovalexey/reride-fetch/internal/observability"
)

// Backend label values.
const (
	backendMemory = "memory"
	backendRedis  = "redis"
)

// NoExpiration stores an entry without a time-to-live.
const NoExpiration time.Duration = -1

// cacheTracerName is the OpenTelemetry tracer name for cache operations.
const cacheTracerName = "reride/cache"

// Common cache errors.
var (
	// ErrCacheMiss indicates that the key is absent or expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheDisabled indicates that caching is disabled.
	ErrCacheDisabled = errors.New("cache disabled")

	// ErrInvalidConfig indicates that the cache configuration is invalid.
	ErrInvalidConfig = errors.New("invalid cache configuration")
)

// Cache is the interface shared by the cache backends.
type Cache interface {
	// Get returns the stored value, or ErrCacheMiss if the key is absent
	// or expired. An expired entry is removed as a side effect.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any existing entry and
	// restarting its lifetime. A ttl of 0 selects the default TTL and
	// NoExpiration disables expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key and reports whether an entry was removed.
	Delete(ctx context.Context, key string) (bool, error)

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Stats returns a snapshot of the cache statistics.
	Stats() Stats

	// Close releases backend resources.
	Close() error
}

// Cleaner is implemented by backends that need a periodic sweep of expired
// entries. See Janitor.
type Cleaner interface {
	// Cleanup removes every expired entry and returns how many were removed.
	Cleanup() int
}

// Pinger is implemented by backends that depend on a remote server.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TTLAdjuster is implemented by backends whose default TTL can change at
// runtime, for example on configuration reload.
type TTLAdjuster interface {
	SetDefaultTTL(ttl time.Duration)
	DefaultTTL() time.Duration
}

// Stats contains cache statistics.
type Stats struct {
	// Total is the number of stored entries, expired ones included.
	Total int

	// Valid is the number of entries that have not expired.
	Valid int

	// Expired is the number of expired entries not yet purged.
	Expired int

	// Capacity is the maximum number of entries; 0 means unbounded.
	Capacity int

	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns the cache hit rate as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// New creates a cache backend from the configuration. A disabled
// configuration yields a cache on which every operation reports
// ErrCacheDisabled.
func New(cfg *config.CacheConfig, logger observability.Logger) (Cache, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}

	if logger == nil {
		logger = observability.NopLogger()
	}

	if !cfg.Enabled {
		return disabledCache{}, nil
	}

	switch cfg.Type {
	case config.CacheTypeMemory, "":
		return NewMemoryCache(cfg.MaxEntries, cfg.TTL.Duration(), WithLogger(logger)), nil
	case config.CacheTypeRedis:
		return NewRedisCache(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: unknown cache type %q", ErrInvalidConfig, cfg.Type)
	}
}

// disabledCache is a cache that always returns ErrCacheDisabled.
type disabledCache struct{}

func (disabledCache) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheDisabled
}

func (disabledCache) Set(context.Context, string, []byte, time.Duration) error {
	return ErrCacheDisabled
}

func (disabledCache) Delete(context.Context, string) (bool, error) {
	return false, ErrCacheDisabled
}

func (disabledCache) Clear(context.Context) error {
	return ErrCacheDisabled
}

func (disabledCache) Stats() Stats {
	return Stats{}
}

func (disabledCache) Close() error {
	return nil
}
