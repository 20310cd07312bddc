package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/reride-fetch/internal/config"
	"github.com/vyrodovalexey/reride-fetch/internal/observability"
	"github.com/vyrodovalexey/reride-fetch/internal/reqcache"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type upstream struct {
	srv   *httptest.Server
	calls atomic.Int64
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()

	u := &upstream{}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		switch r.URL.Path {
		case "/slow":
			time.Sleep(100 * time.Millisecond)
			_, _ = w.Write([]byte(`{"vehicles":[]}`))
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/text":
			_, _ = w.Write([]byte("not json"))
		case "/lang":
			_, _ = w.Write([]byte(`{"lang":"` + r.Header.Get("Accept-Language") + `"}`))
		default:
			_, _ = w.Write([]byte(`{"path":"` + r.URL.Path + `","query":"` + r.URL.RawQuery + `"}`))
		}
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *upstream) {
	t.Helper()

	up := newUpstream(t)
	cfg := config.DefaultConfig()
	cfg.Upstream.BaseURL = up.srv.URL
	cfg.Upstream.CircuitBreaker.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	layer, err := reqcache.New(cfg, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = layer.Close() })

	return New(cfg, layer, WithMetrics(observability.NewMetrics())), up
}

func do(s *Server, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, vv := range header {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	rec = do(s, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cache":{"status":"healthy"}`)
	assert.Contains(t, rec.Body.String(), `"upstream":{"status":"healthy"}`)
}

func TestServer_ProxyCachesResponses(t *testing.T) {
	s, up := newTestServer(t, nil)

	rec := do(s, http.MethodGet, "/api/vehicles?page=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, CacheMiss, rec.Header().Get(HeaderCacheStatus))
	assert.JSONEq(t, `{"path":"/vehicles","query":"page=2"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(s, http.MethodGet, "/api/vehicles?page=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, CacheHit, rec.Header().Get(HeaderCacheStatus))
	assert.Equal(t, int64(1), up.calls.Load())

	rec = do(s, http.MethodGet, "/api/vehicles?page=3", nil)
	assert.Equal(t, CacheMiss, rec.Header().Get(HeaderCacheStatus))
	assert.Equal(t, int64(2), up.calls.Load())
}

func TestServer_ProxyDeduplicatesConcurrentRequests(t *testing.T) {
	s, up := newTestServer(t, nil)

	var wg sync.WaitGroup
	statuses := make([]string, 2)
	for i := range statuses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := do(s, http.MethodGet, "/api/slow", nil)
			assert.Equal(t, http.StatusOK, rec.Code)
			statuses[i] = rec.Header().Get(HeaderCacheStatus)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), up.calls.Load())
	assert.Contains(t, statuses, CacheShared)
	for _, st := range statuses {
		assert.Contains(t, []string{CacheMiss, CacheShared}, st)
	}

	rec := do(s, http.MethodGet, "/api/slow", nil)
	assert.Equal(t, CacheHit, rec.Header().Get(HeaderCacheStatus))
	assert.Equal(t, int64(1), up.calls.Load())
}

func TestServer_ProxyForwardsHeadersIntoKey(t *testing.T) {
	s, up := newTestServer(t, nil)

	rec := do(s, http.MethodGet, "/api/lang", http.Header{"Accept-Language": {"en"}})
	assert.JSONEq(t, `{"lang":"en"}`, rec.Body.String())

	rec = do(s, http.MethodGet, "/api/lang", http.Header{"Accept-Language": {"hi"}})
	assert.JSONEq(t, `{"lang":"hi"}`, rec.Body.String())
	assert.Equal(t, CacheMiss, rec.Header().Get(HeaderCacheStatus))
	assert.Equal(t, int64(2), up.calls.Load())
}

func TestServer_ProxyErrors(t *testing.T) {
	s, up := newTestServer(t, nil)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "upstream 5xx", path: "/api/broken", wantStatus: http.StatusBadGateway},
		{name: "upstream 4xx", path: "/api/missing", wantStatus: http.StatusNotFound},
		{name: "non-JSON body", path: "/api/text", wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := up.calls.Load()

			rec := do(s, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Empty(t, rec.Header().Get(HeaderCacheStatus))

			// Failures are not cached.
			rec = do(s, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, before+2, up.calls.Load())
		})
	}
}

func TestServer_ProxyUnreachableUpstream(t *testing.T) {
	s, up := newTestServer(t, nil)
	up.srv.Close()

	rec := do(s, http.MethodGet, "/api/vehicles", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServer_ProxyUpstreamTimeout(t *testing.T) {
	s, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Upstream.Timeout = config.Duration(20 * time.Millisecond)
	})

	rec := do(s, http.MethodGet, "/api/slow", nil)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.JSONEq(t, `{"error":"upstream timeout"}`, rec.Body.String())
}

func TestServer_ProxyCircuitOpen(t *testing.T) {
	s, up := newTestServer(t, func(cfg *config.Config) {
		cfg.Upstream.CircuitBreaker = &config.CircuitBreakerConfig{
			Enabled:   true,
			Threshold: 1,
			Timeout:   config.Duration(time.Minute),
		}
	})

	rec := do(s, http.MethodGet, "/api/broken", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = do(s, http.MethodGet, "/api/broken", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"upstream unavailable"}`, rec.Body.String())
	assert.Equal(t, int64(1), up.calls.Load(), "open circuit must not reach the upstream")

	rec = do(s, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
}

func TestServer_ProxyClientGone(t *testing.T) {
	s, up := newTestServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/slow", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, StatusClientClosedRequest, rec.Code)
	assert.Empty(t, rec.Body.String())

	// The detached upstream call still completes and fills the cache.
	require.Eventually(t, func() bool {
		return s.layer.Stats().Total == 1
	}, 2*time.Second, 10*time.Millisecond)

	rec = do(s, http.MethodGet, "/api/slow", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, CacheHit, rec.Header().Get(HeaderCacheStatus))
	assert.Equal(t, int64(1), up.calls.Load())
}

func TestServer_Stats(t *testing.T) {
	s, _ := newTestServer(t, nil)

	do(s, http.MethodGet, "/api/vehicles", nil)
	do(s, http.MethodGet, "/api/vehicles", nil)

	rec := do(s, http.MethodGet, "/cache/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Valid)
	assert.Equal(t, config.DefaultCacheMaxEntries, stats.Capacity)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 50.0, stats.HitRate, 0.001)
	assert.Equal(t, 0, stats.InFlight)
}

func TestServer_InvalidateByPath(t *testing.T) {
	s, up := newTestServer(t, nil)

	do(s, http.MethodGet, "/api/vehicles", nil)

	rec := do(s, http.MethodDelete, "/cache/entries?path=/vehicles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":true}`, rec.Body.String())

	rec = do(s, http.MethodDelete, "/cache/entries?path=/vehicles", nil)
	assert.JSONEq(t, `{"removed":false}`, rec.Body.String())

	rec = do(s, http.MethodGet, "/api/vehicles", nil)
	assert.Equal(t, CacheMiss, rec.Header().Get(HeaderCacheStatus))
	assert.Equal(t, int64(2), up.calls.Load())
}

func TestServer_InvalidateByKey(t *testing.T) {
	s, up := newTestServer(t, nil)

	do(s, http.MethodGet, "/api/listings", nil)

	key := "GET " + up.srv.URL + "/listings"
	rec := do(s, http.MethodDelete, "/cache/entries?key="+url.QueryEscape(key), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":true}`, rec.Body.String())
}

func TestServer_InvalidateRequiresTarget(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(s, http.MethodDelete, "/cache/entries", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ClearAndCleanup(t *testing.T) {
	s, _ := newTestServer(t, nil)

	do(s, http.MethodGet, "/api/a", nil)
	do(s, http.MethodGet, "/api/b", nil)

	rec := do(s, http.MethodPost, "/cache/cleanup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":0}`, rec.Body.String())

	rec = do(s, http.MethodPost, "/cache/clear", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(s, http.MethodGet, "/cache/stats", nil)
	var stats StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 0, stats.Total)
}

func TestServer_RateLimit(t *testing.T) {
	s, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.RateLimit = &config.RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 0.001,
			Burst:             1,
		}
	})
	defer s.rateLimiter.Stop()

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/vehicles", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(s, http.MethodGet, "/api/vehicles", nil).Code)

	// Admin routes are not rate limited.
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/cache/stats", nil).Code)
}

func TestServer_Metrics(t *testing.T) {
	s, _ := newTestServer(t, nil)

	do(s, http.MethodGet, "/api/vehicles", nil)

	rec := do(s, http.MethodGet, config.DefaultMetricsPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reride_http_requests_total")
}

func TestServer_StartStop(t *testing.T) {
	s, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.Address = "127.0.0.1:0"
	})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	require.Eventually(t, s.IsRunning, time.Second, 10*time.Millisecond)
	assert.Equal(t, config.DefaultShutdownTimeout, s.ShutdownTimeout())

	require.NoError(t, s.Stop(t.Context()))
	assert.NoError(t, <-errCh)
	assert.False(t, s.IsRunning())

	// Stopping again is a no-op.
	assert.NoError(t, s.Stop(t.Context()))
}
