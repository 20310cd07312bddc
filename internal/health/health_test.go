package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/reride-fetch/internal/cache"
	"github.com/vyrodovalexey/reride-fetch/internal/config"
	"github.com/vyrodovalexey/reride-fetch/internal/fetch"
	"github.com/vyrodovalexey/reride-fetch/internal/observability"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func staticCheck(status Status) CheckFunc {
	return func(context.Context) Check {
		return Check{Status: status}
	}
}

func TestChecker_Health(t *testing.T) {
	t.Parallel()

	c := NewChecker("1.2.3")
	c.RegisterCheck("broken", staticCheck(StatusUnhealthy))

	resp := c.Health()
	assert.Equal(t, StatusHealthy, resp.Status, "liveness ignores checks")
	assert.Equal(t, "1.2.3", resp.Version)
}

func TestChecker_Readiness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		checks map[string]Status
		want   Status
	}{
		{name: "no checks", want: StatusHealthy},
		{name: "all healthy", checks: map[string]Status{"a": StatusHealthy, "b": StatusHealthy}, want: StatusHealthy},
		{name: "degraded", checks: map[string]Status{"a": StatusHealthy, "b": StatusDegraded}, want: StatusDegraded},
		{name: "unhealthy wins", checks: map[string]Status{"a": StatusUnhealthy, "b": StatusDegraded}, want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := NewChecker("test")
			for name, st := range tt.checks {
				c.RegisterCheck(name, staticCheck(st))
			}

			resp := c.Readiness(context.Background())
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Checks, len(tt.checks))
		})
	}
}

func TestChecker_Handlers(t *testing.T) {
	t.Parallel()

	c := NewChecker("test")
	c.RegisterCheck("cache", staticCheck(StatusUnhealthy))

	engine := gin.New()
	engine.GET("/healthz", c.HealthHandler())
	engine.GET("/readyz", c.ReadinessHandler())

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusUnhealthy, resp.Checks["cache"].Status)
}

func TestCacheCheck_Memory(t *testing.T) {
	t.Parallel()

	check := CacheCheck(cache.NewMemoryCache(10, time.Minute))
	assert.Equal(t, StatusHealthy, check(context.Background()).Status)
}

func TestCacheCheck_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	rc, err := cache.NewRedisCache(&config.CacheConfig{
		Enabled: true,
		Type:    config.CacheTypeRedis,
		Redis:   &config.RedisCacheConfig{URL: "redis://" + mr.Addr()},
	}, observability.NopLogger())
	require.NoError(t, err)
	defer rc.Close()

	check := CacheCheck(rc)
	assert.Equal(t, StatusHealthy, check(context.Background()).Status)

	mr.Close()
	result := check(context.Background())
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.NotEmpty(t, result.Message)
}

func TestBreakerCheck(t *testing.T) {
	t.Parallel()

	assert.Equal(t, StatusHealthy, BreakerCheck(nil)(context.Background()).Status)

	b := fetch.NewBreaker("upstream", 1, time.Minute)
	check := BreakerCheck(b)
	assert.Equal(t, StatusHealthy, check(context.Background()).Status)

	_, _ = b.Execute(func() (any, error) {
		return nil, errors.New("connection refused")
	})
	result := check(context.Background())
	assert.Equal(t, StatusDegraded, result.Status)
	assert.Contains(t, result.Message, "open")
}
