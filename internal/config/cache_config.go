package config

import "time"

// Cache defaults.
const (
	// DefaultCacheTTL is the default time-to-live of cached responses.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultCacheMaxEntries is the default capacity of the memory cache.
	DefaultCacheMaxEntries = 100

	// DefaultCacheCleanupInterval is the default period of the expired-entry sweep.
	DefaultCacheCleanupInterval = 5 * time.Minute

	// DefaultRedisPoolSize is the default Redis connection pool size.
	DefaultRedisPoolSize = 10

	// DefaultRedisConnectTimeout is the default Redis dial timeout.
	DefaultRedisConnectTimeout = 5 * time.Second

	// DefaultRedisReadTimeout is the default Redis read timeout.
	DefaultRedisReadTimeout = 3 * time.Second

	// DefaultRedisWriteTimeout is the default Redis write timeout.
	DefaultRedisWriteTimeout = 3 * time.Second

	// DefaultRedisKeyPrefix is the default prefix for keys stored in Redis.
	DefaultRedisKeyPrefix = "reride:"
)

// CacheType constants for cache backend types.
const (
	// CacheTypeMemory uses the process-local TTL cache.
	CacheTypeMemory = "memory"

	// CacheTypeRedis uses Redis for caching.
	CacheTypeRedis = "redis"
)

// CacheConfig represents response cache configuration.
type CacheConfig struct {
	// Enabled indicates whether caching is enabled.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Type is the cache backend type: "memory" or "redis".
	Type string `yaml:"type" json:"type"`

	// TTL is the default time-to-live for cached entries.
	TTL Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`

	// MaxEntries is the maximum number of entries for the memory cache.
	MaxEntries int `yaml:"maxEntries,omitempty" json:"maxEntries,omitempty"`

	// CleanupInterval is the period of the background sweep of expired entries.
	CleanupInterval Duration `yaml:"cleanupInterval,omitempty" json:"cleanupInterval,omitempty"`

	// Redis contains Redis-specific configuration.
	Redis *RedisCacheConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// RedisCacheConfig contains Redis-specific cache configuration.
type RedisCacheConfig struct {
	// URL is the Redis connection URL.
	// Format: redis://[user:password@]host:port[/db]
	URL string `yaml:"url" json:"url"`

	// PoolSize is the maximum number of connections in the pool.
	PoolSize int `yaml:"poolSize,omitempty" json:"poolSize,omitempty"`

	// ConnectTimeout is the timeout for establishing connections.
	ConnectTimeout Duration `yaml:"connectTimeout,omitempty" json:"connectTimeout,omitempty"`

	// ReadTimeout is the timeout for read operations.
	ReadTimeout Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`

	// WriteTimeout is the timeout for write operations.
	WriteTimeout Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`

	// KeyPrefix is a prefix added to all cache keys.
	KeyPrefix string `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`

	// TTLJitter is the maximum fraction of jitter applied to TTL values (0.0 to 1.0).
	TTLJitter float64 `yaml:"ttlJitter,omitempty" json:"ttlJitter,omitempty"`

	// HashKeys when true, hashes cache keys before storing them in Redis.
	HashKeys bool `yaml:"hashKeys,omitempty" json:"hashKeys,omitempty"`
}

// DefaultCacheConfig returns default cache configuration.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Enabled:         true,
		Type:            CacheTypeMemory,
		TTL:             Duration(DefaultCacheTTL),
		MaxEntries:      DefaultCacheMaxEntries,
		CleanupInterval: Duration(DefaultCacheCleanupInterval),
	}
}

// DefaultRedisCacheConfig returns default Redis cache configuration.
func DefaultRedisCacheConfig() *RedisCacheConfig {
	return &RedisCacheConfig{
		PoolSize:       DefaultRedisPoolSize,
		ConnectTimeout: Duration(DefaultRedisConnectTimeout),
		ReadTimeout:    Duration(DefaultRedisReadTimeout),
		WriteTimeout:   Duration(DefaultRedisWriteTimeout),
		KeyPrefix:      DefaultRedisKeyPrefix,
	}
}

// IsEmpty returns true if the CacheConfig has no meaningful configuration.
func (cc *CacheConfig) IsEmpty() bool {
	if cc == nil {
		return true
	}
	return !cc.Enabled
}

// IsEmpty returns true if the RedisCacheConfig has no configuration.
func (rcc *RedisCacheConfig) IsEmpty() bool {
	if rcc == nil {
		return true
	}
	return rcc.URL == ""
}

func (cc *CacheConfig) applyDefaults() {
	if cc.Type == "" {
		cc.Type = CacheTypeMemory
	}
	if cc.TTL <= 0 {
		cc.TTL = Duration(DefaultCacheTTL)
	}
	if cc.MaxEntries <= 0 {
		cc.MaxEntries = DefaultCacheMaxEntries
	}
	if cc.CleanupInterval <= 0 {
		cc.CleanupInterval = Duration(DefaultCacheCleanupInterval)
	}
	if cc.Redis == nil {
		return
	}
	def := DefaultRedisCacheConfig()
	if cc.Redis.PoolSize <= 0 {
		cc.Redis.PoolSize = def.PoolSize
	}
	if cc.Redis.ConnectTimeout <= 0 {
		cc.Redis.ConnectTimeout = def.ConnectTimeout
	}
	if cc.Redis.ReadTimeout <= 0 {
		cc.Redis.ReadTimeout = def.ReadTimeout
	}
	if cc.Redis.WriteTimeout <= 0 {
		cc.Redis.WriteTimeout = def.WriteTimeout
	}
	if cc.Redis.KeyPrefix == "" {
		cc.Redis.KeyPrefix = def.KeyPrefix
	}
}
