package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/reride-fetch/internal/config"
	"github.com/vyrodovalexey/reride-fetch/internal/observability"
)

// setupMiniRedis creates a miniredis server for testing.
func setupMiniRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	return mr
}

func redisConfig(mr *miniredis.Miniredis) *config.CacheConfig {
	return &config.CacheConfig{
		Enabled: true,
		Type:    config.CacheTypeRedis,
		TTL:     config.Duration(5 * time.Minute),
		Redis: &config.RedisCacheConfig{
			URL: "redis://" + mr.Addr(),
		},
	}
}

func newTestRedisCache(t *testing.T, mr *miniredis.Miniredis, mutate func(*config.RedisCacheConfig)) *RedisCache {
	t.Helper()

	cfg := redisConfig(mr)
	if mutate != nil {
		mutate(cfg.Redis)
	}

	c, err := NewRedisCache(cfg, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestNewRedisCache(t *testing.T) {
	mr := setupMiniRedis(t)

	tests := []struct {
		name      string
		cfg       *config.CacheConfig
		expectErr bool
	}{
		{
			name:      "valid config",
			cfg:       redisConfig(mr),
			expectErr: false,
		},
		{
			name: "with pool options",
			cfg: &config.CacheConfig{
				Enabled: true,
				Type:    config.CacheTypeRedis,
				Redis: &config.RedisCacheConfig{
					URL:            "redis://" + mr.Addr(),
					PoolSize:       5,
					ConnectTimeout: config.Duration(time.Second),
					ReadTimeout:    config.Duration(time.Second),
					WriteTimeout:   config.Duration(time.Second),
				},
			},
			expectErr: false,
		},
		{
			name:      "nil redis section",
			cfg:       &config.CacheConfig{Enabled: true, Type: config.CacheTypeRedis},
			expectErr: true,
		},
		{
			name: "empty URL",
			cfg: &config.CacheConfig{
				Enabled: true,
				Type:    config.CacheTypeRedis,
				Redis:   &config.RedisCacheConfig{},
			},
			expectErr: true,
		},
		{
			name: "invalid URL",
			cfg: &config.CacheConfig{
				Enabled: true,
				Type:    config.CacheTypeRedis,
				Redis:   &config.RedisCacheConfig{URL: "not-a-url://x"},
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewRedisCache(tt.cfg, nil)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, c.Close())
		})
	}
}

func TestNewRedisCache_ConnectionFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisCache(&config.CacheConfig{
		Enabled: true,
		Type:    config.CacheTypeRedis,
		Redis: &config.RedisCacheConfig{
			URL:            "redis://" + addr,
			ConnectTimeout: config.Duration(100 * time.Millisecond),
		},
	}, nil)
	assert.Error(t, err)
}

func TestRedisCache_SetAndGet(t *testing.T) {
	mr := setupMiniRedis(t)
	c := newTestRedisCache(t, mr, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "vehicles", []byte(`[]`), 0))

	value, err := c.Get(ctx, "vehicles")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[]`), value)

	assert.True(t, mr.Exists(config.DefaultRedisKeyPrefix+"vehicles"))
	assert.Equal(t, 5*time.Minute, mr.TTL(config.DefaultRedisKeyPrefix+"vehicles"))
}

func TestRedisCache_Get_Miss(t *testing.T) {
	mr := setupMiniRedis(t)
	c := newTestRedisCache(t, mr, nil)

	_, err := c.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrCacheMiss)

	stats := c.Stats()
	assert.Equal(t, int64(0), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 0, stats.Capacity)
}

func TestRedisCache_Expiry(t *testing.T) {
	mr := setupMiniRedis(t)
	c := newTestRedisCache(t, mr, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Second))
	mr.FastForward(2 * time.Second)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_NoExpiration(t *testing.T) {
	mr := setupMiniRedis(t)
	c := newTestRedisCache(t, mr, nil)

	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), NoExpiration))
	assert.Equal(t, time.Duration(0), mr.TTL(config.DefaultRedisKeyPrefix+"k"))
}

func TestRedisCache_Delete(t *testing.T) {
	mr := setupMiniRedis(t)
	c := newTestRedisCache(t, mr, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))

	removed, err := c.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = c.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRedisCache_ClearOnlyOwnPrefix(t *testing.T) {
	mr := setupMiniRedis(t)
	c := newTestRedisCache(t, mr, func(r *config.RedisCacheConfig) { r.KeyPrefix = "test:" })
	ctx := context.Background()

	require.NoError(t, mr.Set("other:key", "keep"))
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, k, []byte("v"), 0))
	}

	require.NoError(t, c.Clear(ctx))

	assert.False(t, mr.Exists("test:a"))
	assert.False(t, mr.Exists("test:b"))
	assert.False(t, mr.Exists("test:c"))
	assert.True(t, mr.Exists("other:key"))
}

func TestRedisCache_StatsCountsOwnKeys(t *testing.T) {
	mr := setupMiniRedis(t)
	c := newTestRedisCache(t, mr, func(r *config.RedisCacheConfig) { r.KeyPrefix = "test:" })
	ctx := context.Background()

	require.NoError(t, mr.Set("other:key", "ignored"))
	require.NoError(t, c.Set(ctx, "vehicles", []byte("[]"), time.Second))
	require.NoError(t, c.Set(ctx, "listings", []byte("[]"), time.Minute))

	st := c.Stats()
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 2, st.Valid)
	assert.Equal(t, 0, st.Expired)

	mr.FastForward(2 * time.Second)

	st = c.Stats()
	assert.Equal(t, 1, st.Total)
	assert.Equal(t, 1, st.Valid)
}

func TestRedisCache_StatsServerDown(t *testing.T) {
	mr := setupMiniRedis(t)
	c := newTestRedisCache(t, mr, nil)

	_, _ = c.Get(context.Background(), "missing")
	mr.Close()

	st := c.Stats()
	assert.Equal(t, 0, st.Total)
	assert.Equal(t, int64(1), st.Misses)
}

func TestRedisCache_HashKeys(t *testing.T) {
	mr := setupMiniRedis(t)
	c := newTestRedisCache(t, mr, func(r *config.RedisCacheConfig) { r.HashKeys = true })
	ctx := context.Background()

	key := "GET https://api.reride.example/vehicles?page=1"
	require.NoError(t, c.Set(ctx, key, []byte("v"), 0))

	assert.False(t, mr.Exists(config.DefaultRedisKeyPrefix+key))
	assert.True(t, mr.Exists(config.DefaultRedisKeyPrefix+hashKey(key)))

	value, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)
}

func TestRedisCache_SetDefaultTTL(t *testing.T) {
	mr := setupMiniRedis(t)
	c := newTestRedisCache(t, mr, nil)

	c.SetDefaultTTL(time.Hour)
	assert.Equal(t, time.Hour, c.DefaultTTL())

	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), 0))
	assert.Equal(t, time.Hour, mr.TTL(config.DefaultRedisKeyPrefix+"k"))
}

func TestRedisCache_ServerDown(t *testing.T) {
	mr := setupMiniRedis(t)
	c := newTestRedisCache(t, mr, nil)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := c.Get(ctx, "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCacheMiss))
}

func TestApplyTTLJitter(t *testing.T) {
	tests := []struct {
		name   string
		ttl    time.Duration
		jitter float64
	}{
		{name: "no jitter", ttl: time.Minute, jitter: 0},
		{name: "ten percent", ttl: time.Minute, jitter: 0.1},
		{name: "clamped", ttl: time.Minute, jitter: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 50; i++ {
				got := applyTTLJitter(tt.ttl, tt.jitter)
				assert.Positive(t, got)
				if tt.jitter == 0 {
					assert.Equal(t, tt.ttl, got)
				}
				if tt.jitter > 0 && tt.jitter <= 1 {
					delta := float64(tt.ttl) * tt.jitter
					assert.InDelta(t, float64(tt.ttl), float64(got), delta)
				}
			}
		})
	}
}

func TestIsRetryableRedisError(t *testing.T) {
	assert.False(t, isRetryableRedisError(nil))
	assert.False(t, isRetryableRedisError(redis.Nil))
	assert.False(t, isRetryableRedisError(context.Canceled))
	assert.False(t, isRetryableRedisError(context.DeadlineExceeded))
	assert.True(t, isRetryableRedisError(errors.New("connection reset")))
}
