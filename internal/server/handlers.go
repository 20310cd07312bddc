package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/reride-fetch/internal/fetch"
	"github.com/vyrodovalexey/reride-fetch/internal/observability"
)

// HeaderCacheStatus reports how a proxied response was obtained.
const HeaderCacheStatus = "X-Cache"

// StatusClientClosedRequest is written when the client went away before the
// upstream answered. Nothing reaches the client; the status shows up in the
// access log and request metrics.
const StatusClientClosedRequest = 499

// Cache status values.
const (
	CacheHit    = "HIT"
	CacheMiss   = "MISS"
	CacheShared = "SHARED"
)

// forwardedHeaders are copied from the client request to the upstream
// request and therefore take part in the cache key.
var forwardedHeaders = []string{"Accept-Language"}

// StatsResponse is the body of GET /cache/stats.
type StatsResponse struct {
	Total     int     `json:"total"`
	Valid     int     `json:"valid"`
	Expired   int     `json:"expired"`
	Capacity  int     `json:"capacity"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hitRate"`
	InFlight  int     `json:"inFlight"`
}

// handleProxy serves GET /api/*path from the upstream through the
// deduplicated cached fetch.
func (s *Server) handleProxy(c *gin.Context) {
	target := c.Param("path")
	if q := c.Request.URL.RawQuery; q != "" {
		target += "?" + q
	}

	req := fetch.Get(target)
	for _, h := range forwardedHeaders {
		if v := c.GetHeader(h); v != "" {
			req.WithHeader(h, v)
		}
	}

	res, shared, err := s.layer.DeduplicatedFetch(c.Request.Context(), req)
	if err != nil {
		s.writeFetchError(c, err)
		return
	}

	c.Header(HeaderCacheStatus, cacheStatus(res, shared))
	c.Data(http.StatusOK, "application/json; charset=utf-8", res.Body)
}

func cacheStatus(res *fetch.Result, shared bool) string {
	switch {
	case res.Cached:
		return CacheHit
	case shared:
		return CacheShared
	default:
		return CacheMiss
	}
}

// writeFetchError maps a fetch failure to a proxy response.
func (s *Server) writeFetchError(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) {
		s.logger.Debug("client closed request",
			observability.String("path", c.Request.URL.Path))
		c.AbortWithStatus(StatusClientClosedRequest)
		return
	}

	_ = c.Error(err)

	var statusErr *fetch.StatusError
	switch {
	case errors.As(err, &statusErr):
		status := statusErr.StatusCode
		if status >= http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{
			"error":          "upstream request failed",
			"upstreamStatus": statusErr.StatusCode,
		})
	case fetch.IsCircuitOpen(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "upstream unavailable"})
	case errors.Is(err, fetch.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "upstream timeout"})
	case errors.Is(err, fetch.ErrInvalidBody), errors.Is(err, fetch.ErrNetworkFailure):
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream request failed"})
	default:
		s.logger.Error("unexpected fetch error",
			observability.String("path", c.Request.URL.Path),
			observability.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func (s *Server) handleStats(c *gin.Context) {
	st := s.layer.Stats()
	c.JSON(http.StatusOK, StatsResponse{
		Total:     st.Total,
		Valid:     st.Valid,
		Expired:   st.Expired,
		Capacity:  st.Capacity,
		Hits:      st.Hits,
		Misses:    st.Misses,
		Evictions: st.Evictions,
		HitRate:   st.HitRate(),
		InFlight:  s.layer.InFlight(),
	})
}

// handleInvalidate removes one entry, addressed either by its cache key
// (?key=) or by the proxied path it was stored for (?path=).
func (s *Server) handleInvalidate(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		removed bool
		err     error
	)
	switch {
	case c.Query("key") != "":
		removed, err = s.layer.Invalidate(ctx, c.Query("key"))
	case c.Query("path") != "":
		removed, err = s.layer.InvalidateRequest(ctx, fetch.Get(c.Query("path")))
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "key or path query parameter is required"})
		return
	}

	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalidation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) handleClear(c *gin.Context) {
	if err := s.layer.Clear(c.Request.Context()); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "clear failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCleanup(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"removed": s.layer.Cleanup()})
}
