// Package reqcache assembles the request cache layer used by the proxy:
// one process-wide response cache, a cache-aware fetch client, and a
// deduplicating fetcher on top of it.
//
// The layer is built once at startup and handed to its consumers. Start
// launches the expired-entry sweep and Close stops it and releases the
// cache backend.
package reqcache

import (
	"context"
	"fmt"
	"time"

	"github.com/vyrodovalexey/reride-fetch/internal/cache"
	"github.com/vyrodovalexey/reride-fetch/internal/config"
	"github.com/vyrodovalexey/reride-fetch/internal/dedup"
	"github.com/vyrodovalexey/reride-fetch/internal/fetch"
	"github.com/vyrodovalexey/reride-fetch/internal/observability"
)

// Layer is the request cache layer.
type Layer struct {
	cache   cache.Cache
	client  *fetch.Client
	fetcher *dedup.Fetcher
	janitor *cache.Janitor
	logger  observability.Logger
}

// Option configures a Layer.
type Option func(*layerOptions)

type layerOptions struct {
	logger          observability.Logger
	cleanupInterval time.Duration
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(o *layerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCleanupInterval sets the period of the expired-entry sweep.
func WithCleanupInterval(interval time.Duration) Option {
	return func(o *layerOptions) {
		o.cleanupInterval = interval
	}
}

// New builds the layer from configuration.
func New(cfg *config.Config, logger observability.Logger, clientOpts ...fetch.ClientOption) (*Layer, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	cacheCfg := cfg.Cache
	if cacheCfg == nil {
		cacheCfg = config.DefaultCacheConfig()
	}

	c, err := cache.New(cacheCfg, logger.With(observability.String("component", "cache")))
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	client, err := fetch.NewClientFromConfig(cfg.Upstream, c,
		logger.With(observability.String("component", "fetch")), clientOpts...)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to create fetch client: %w", err)
	}

	return NewLayer(c, client,
		WithLogger(logger),
		WithCleanupInterval(cacheCfg.CleanupInterval.Duration()),
	), nil
}

// NewLayer assembles a layer from an existing cache and client. The client
// should be configured with the same cache.
func NewLayer(c cache.Cache, client *fetch.Client, opts ...Option) *Layer {
	o := layerOptions{logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	l := &Layer{
		cache:   c,
		client:  client,
		fetcher: dedup.NewFetcher(client, dedup.WithLogger(o.logger)),
		logger:  o.logger,
	}

	if cleaner, ok := c.(cache.Cleaner); ok {
		l.janitor = cache.NewJanitor(cleaner, o.cleanupInterval, o.logger)
	}

	return l
}

// Start launches the background sweep of expired entries.
func (l *Layer) Start(ctx context.Context) {
	if l.janitor != nil {
		l.janitor.Start(ctx)
	}
}

// Close stops the sweep and closes the cache backend.
func (l *Layer) Close() error {
	if l.janitor != nil {
		l.janitor.Stop()
	}
	return l.cache.Close()
}

// FetchWithCache performs a cached fetch.
func (l *Layer) FetchWithCache(ctx context.Context, req *fetch.Request, opts ...fetch.Option) ([]byte, error) {
	return l.client.Do(ctx, req, opts...)
}

// DeduplicatedFetch performs a cached fetch shared with concurrent
// identical fetches.
func (l *Layer) DeduplicatedFetch(
	ctx context.Context,
	req *fetch.Request,
	opts ...fetch.Option,
) (*fetch.Result, bool, error) {
	return l.fetcher.Fetch(ctx, req, opts...)
}

// Invalidate removes the entry stored under key.
func (l *Layer) Invalidate(ctx context.Context, key string) (bool, error) {
	removed, err := l.cache.Delete(ctx, key)
	if err != nil {
		return false, err
	}
	l.logger.Debug("cache entry invalidated",
		observability.String("key", key),
		observability.Bool("removed", removed))
	return removed, nil
}

// InvalidateRequest removes the entry stored for req.
func (l *Layer) InvalidateRequest(ctx context.Context, req *fetch.Request, opts ...fetch.Option) (bool, error) {
	key, err := l.client.ResolveKey(req, opts...)
	if err != nil {
		return false, err
	}
	return l.Invalidate(ctx, key)
}

// Clear removes every cached entry.
func (l *Layer) Clear(ctx context.Context) error {
	if err := l.cache.Clear(ctx); err != nil {
		return err
	}
	l.logger.Info("cache cleared")
	return nil
}

// Cleanup purges expired entries and returns how many were removed. It
// returns 0 for backends that expire entries on their own.
func (l *Layer) Cleanup() int {
	if cleaner, ok := l.cache.(cache.Cleaner); ok {
		return cleaner.Cleanup()
	}
	return 0
}

// Stats returns cache statistics.
func (l *Layer) Stats() cache.Stats {
	return l.cache.Stats()
}

// InFlight returns the number of keys with a pending deduplicated fetch.
func (l *Layer) InFlight() int {
	return l.fetcher.InFlight()
}

// SetDefaultTTL changes the cache default TTL when the backend supports it.
func (l *Layer) SetDefaultTTL(ttl time.Duration) bool {
	adj, ok := l.cache.(cache.TTLAdjuster)
	if !ok {
		return false
	}
	adj.SetDefaultTTL(ttl)
	l.logger.Info("cache default TTL updated", observability.Duration("ttl", ttl))
	return true
}

// Cache returns the underlying cache.
func (l *Layer) Cache() cache.Cache {
	return l.cache
}

// Client returns the cache-aware fetch client.
func (l *Layer) Client() *fetch.Client {
	return l.client
}

// Fetcher returns the deduplicating fetcher.
func (l *Layer) Fetcher() *dedup.Fetcher {
	return l.fetcher
}
