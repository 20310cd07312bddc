package cache

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/reride-fetch/internal/config"
	"github.com/vyrodovalexey/reride-fetch/internal/observability"
	"github.com/vyrodovalexey/reride-fetch/internal/retry"
)

// clearBatchSize is the SCAN page size used by Clear and Stats.
const clearBatchSize = 500

// statsTimeout bounds the key count done by Stats.
const statsTimeout = 2 * time.Second

// redisRetryConfig returns the retry configuration for Redis operations.
func redisRetryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		JitterFactor:   retry.DefaultJitterFactor,
	}
}

// isRetryableRedisError checks if the error is retryable (network/connection errors).
func isRetryableRedisError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// RedisCache is a cache backend stored in Redis. Redis owns expiry and
// eviction, so Stats reports only hit and miss counters.
type RedisCache struct {
	logger    observability.Logger
	client    *redis.Client
	keyPrefix string
	ttlJitter float64
	hashKeys  bool

	mu         sync.RWMutex
	defaultTTL time.Duration

	hits   int64
	misses int64
}

// NewRedisCache connects to the Redis server described by cfg.Redis.
func NewRedisCache(cfg *config.CacheConfig, logger observability.Logger) (*RedisCache, error) {
	if cfg == nil || cfg.Redis == nil {
		return nil, fmt.Errorf("%w: redis configuration is required", ErrInvalidConfig)
	}
	if cfg.Redis.URL == "" {
		return nil, fmt.Errorf("%w: redis URL is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redis URL: %w", ErrInvalidConfig, err)
	}
	applyRedisPoolOptions(opts, cfg.Redis)

	client := redis.NewClient(opts)
	if err := pingRedis(client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	defaultTTL := cfg.TTL.Duration()
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	c := &RedisCache{
		logger:     logger,
		client:     client,
		keyPrefix:  resolveKeyPrefix(cfg.Redis.KeyPrefix),
		ttlJitter:  cfg.Redis.TTLJitter,
		hashKeys:   cfg.Redis.HashKeys,
		defaultTTL: defaultTTL,
	}

	logger.Info("redis cache initialized",
		observability.String("addr", opts.Addr),
		observability.String("keyPrefix", c.keyPrefix),
		observability.Duration("defaultTTL", defaultTTL),
		observability.Float64("ttlJitter", c.ttlJitter),
		observability.Bool("hashKeys", c.hashKeys))

	return c, nil
}

// applyRedisPoolOptions applies pool and timeout configuration overrides to Redis options.
func applyRedisPoolOptions(opts *redis.Options, redisCfg *config.RedisCacheConfig) {
	if redisCfg.PoolSize > 0 {
		opts.PoolSize = redisCfg.PoolSize
	}
	if redisCfg.ConnectTimeout > 0 {
		opts.DialTimeout = redisCfg.ConnectTimeout.Duration()
	}
	if redisCfg.ReadTimeout > 0 {
		opts.ReadTimeout = redisCfg.ReadTimeout.Duration()
	}
	if redisCfg.WriteTimeout > 0 {
		opts.WriteTimeout = redisCfg.WriteTimeout.Duration()
	}
}

// pingRedis tests the Redis connection with a timeout.
func pingRedis(client *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}

// resolveKeyPrefix returns the key prefix, defaulting to config.DefaultRedisKeyPrefix.
func resolveKeyPrefix(prefix string) string {
	if prefix == "" {
		return config.DefaultRedisKeyPrefix
	}
	return prefix
}

// applyTTLJitter varies ttl by up to ±jitterFactor so entries written
// together do not expire together.
func applyTTLJitter(ttl time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 || ttl <= 0 {
		return ttl
	}
	if jitterFactor > 1.0 {
		jitterFactor = 1.0
	}
	//nolint:gosec // G404: TTL jitter does not need cryptographic randomness
	jitter := time.Duration(float64(ttl) * jitterFactor * (2*rand.Float64() - 1))
	result := ttl + jitter
	if result <= 0 {
		return ttl
	}
	return result
}

// hashKey returns the xxhash digest of key in hex.
func hashKey(key string) string {
	return strconv.FormatUint(xxhash.Sum64String(key), 16)
}

// resolveKey applies the key prefix and optional hashing.
func (c *RedisCache) resolveKey(key string) string {
	if c.hashKeys {
		return c.keyPrefix + hashKey(key)
	}
	return c.keyPrefix + key
}

// redisTTL converts a cache TTL into a Redis expiration. Redis treats 0 as
// no expiry.
func (c *RedisCache) redisTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl == NoExpiration:
		return 0
	case ttl == 0:
		ttl = c.DefaultTTL()
	}
	return applyTTLJitter(ttl, c.ttlJitter)
}

func (c *RedisCache) retryOptions(op, key string) *retry.Options {
	return &retry.Options{
		ShouldRetry: isRetryableRedisError,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			c.logger.Debug("retrying redis "+op,
				observability.String("key", key),
				observability.Int("attempt", attempt),
				observability.Duration("backoff", backoff),
				observability.Error(err))
		},
	}
}

func (c *RedisCache) startSpan(ctx context.Context, name, key string) (context.Context, trace.Span) {
	return otel.Tracer(cacheTracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.backend", backendRedis),
			attribute.String("cache.key", key),
		),
	)
}

func (c *RedisCache) fail(span trace.Span, op, key string, err error) {
	GetMetrics().errorsTotal.WithLabelValues(backendRedis, op).Inc()
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
	c.logger.Error("redis "+op+" failed",
		observability.String("key", key),
		observability.Error(err))
}

func observeRedis(op string, start time.Time) {
	GetMetrics().operationDuration.WithLabelValues(backendRedis, op).Observe(time.Since(start).Seconds())
}

// Get retrieves a value from the cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := c.startSpan(ctx, "cache.Get", key)
	defer span.End()
	defer observeRedis("get", time.Now())

	fullKey := c.resolveKey(key)

	var result []byte
	err := retry.Do(ctx, redisRetryConfig(), func() error {
		val, getErr := c.client.Get(ctx, fullKey).Bytes()
		if getErr != nil {
			return getErr
		}
		result = val
		return nil
	}, c.retryOptions("get", key))

	switch {
	case err == nil:
		atomic.AddInt64(&c.hits, 1)
		GetMetrics().hitsTotal.WithLabelValues(backendRedis).Inc()
		span.SetAttributes(
			attribute.Bool("cache.hit", true),
			attribute.Int("cache.value_size", len(result)),
		)
		return result, nil
	case errors.Is(err, redis.Nil):
		atomic.AddInt64(&c.misses, 1)
		GetMetrics().missesTotal.WithLabelValues(backendRedis).Inc()
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	default:
		c.fail(span, "get", key, err)
		return nil, err
	}
}

// Set stores a value in the cache.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := c.startSpan(ctx, "cache.Set", key)
	defer span.End()
	defer observeRedis("set", time.Now())

	span.SetAttributes(attribute.Int("cache.value_size", len(value)))

	fullKey := c.resolveKey(key)
	expiration := c.redisTTL(ttl)

	err := retry.Do(ctx, redisRetryConfig(), func() error {
		return c.client.Set(ctx, fullKey, value, expiration).Err()
	}, c.retryOptions("set", key))
	if err != nil {
		c.fail(span, "set", key, err)
		return err
	}

	c.logger.Debug("cache set",
		observability.String("key", key),
		observability.Duration("ttl", expiration),
		observability.Int("size", len(value)))
	return nil
}

// Delete removes a value from the cache and reports whether it was present.
func (c *RedisCache) Delete(ctx context.Context, key string) (bool, error) {
	ctx, span := c.startSpan(ctx, "cache.Delete", key)
	defer span.End()
	defer observeRedis("delete", time.Now())

	fullKey := c.resolveKey(key)

	var removed int64
	err := retry.Do(ctx, redisRetryConfig(), func() error {
		var delErr error
		removed, delErr = c.client.Del(ctx, fullKey).Result()
		return delErr
	}, c.retryOptions("delete", key))
	if err != nil {
		c.fail(span, "delete", key, err)
		return false, err
	}

	c.logger.Debug("cache deleted",
		observability.String("key", key),
		observability.Bool("existed", removed > 0))
	return removed > 0, nil
}

// Clear removes every key under the cache prefix.
func (c *RedisCache) Clear(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "cache.Clear", c.keyPrefix+"*")
	defer span.End()
	defer observeRedis("clear", time.Now())

	var (
		cursor  uint64
		removed int64
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.keyPrefix+"*", clearBatchSize).Result()
		if err != nil {
			c.fail(span, "clear", c.keyPrefix, err)
			return err
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				c.fail(span, "clear", c.keyPrefix, err)
				return err
			}
			removed += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	c.logger.Debug("cache cleared",
		observability.String("keyPrefix", c.keyPrefix),
		observability.Int64("removed", removed))
	return nil
}

// Stats counts the keys under the cache prefix. Redis drops expired keys
// itself, so every counted key is valid and Expired is always 0. Capacity
// is 0 because Redis bounds memory with its own eviction policy. When the
// count fails only the hit and miss counters are reported.
func (c *RedisCache) Stats() Stats {
	st := Stats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
	}

	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()

	n, err := c.countKeys(ctx)
	if err != nil {
		GetMetrics().errorsTotal.WithLabelValues(backendRedis, "stats").Inc()
		c.logger.Warn("redis key count failed", observability.Error(err))
		return st
	}
	st.Total = n
	st.Valid = n
	return st
}

func (c *RedisCache) countKeys(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.keyPrefix+"*", clearBatchSize).Result()
		if err != nil {
			return 0, err
		}
		total += len(keys)
		cursor = next
		if cursor == 0 {
			return total, nil
		}
	}
}

// SetDefaultTTL changes the TTL applied by Set when called with ttl 0.
func (c *RedisCache) SetDefaultTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.defaultTTL = ttl
	c.mu.Unlock()
}

// DefaultTTL returns the TTL applied by Set when called with ttl 0.
func (c *RedisCache) DefaultTTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaultTTL
}

// Ping checks that the Redis server is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	c.logger.Info("redis cache closing")
	return c.client.Close()
}
