package cache

import (
	"bytes"
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/reride-fetch/internal/observability"
)

// Memory cache defaults.
const (
	DefaultMaxEntries = 100
	DefaultTTL        = 5 * time.Minute
)

// MemoryCache is a bounded in-memory TTL cache.
//
// Entries are kept in write order. Inserting a new key into a full cache
// evicts the entry written longest ago; overwriting an existing key never
// evicts and moves that key to the newest position. Reads do not affect the
// order, so this is FIFO by last write rather than LRU.
type MemoryCache struct {
	logger     observability.Logger
	maxEntries int
	now        func() time.Time

	mu         sync.Mutex
	defaultTTL time.Duration
	items      map[string]*list.Element
	// order holds *memoryEntry values; Front is the newest write.
	order *list.List

	hits      int64
	misses    int64
	evictions int64
}

// memoryEntry is a stored value with its lifetime.
type memoryEntry struct {
	key       string
	value     []byte
	createdAt time.Time
	ttl       time.Duration
}

// expired reports whether the entry has outlived its ttl. An entry is
// valid while now - createdAt <= ttl.
func (e *memoryEntry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) > e.ttl
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) MemoryOption {
	return func(c *MemoryCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces time.Now, used by tests to control expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewMemoryCache creates a cache holding at most maxEntries entries.
// Non-positive arguments select DefaultMaxEntries and DefaultTTL.
func NewMemoryCache(maxEntries int, defaultTTL time.Duration, opts ...MemoryOption) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	c := &MemoryCache{
		logger:     observability.NopLogger(),
		maxEntries: maxEntries,
		now:        time.Now,
		defaultTTL: defaultTTL,
		items:      make(map[string]*list.Element),
		order:      list.New(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger.Info("memory cache initialized",
		observability.Int("maxEntries", maxEntries),
		observability.Duration("defaultTTL", defaultTTL))

	return c
}

// Get retrieves a value from the cache.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	_, span := otel.Tracer(cacheTracerName).Start(ctx, "cache.Get",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", backendMemory),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		GetMetrics().operationDuration.WithLabelValues(backendMemory, "get").Observe(time.Since(start).Seconds())
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.recordMiss()
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	}

	entry := elem.Value.(*memoryEntry)
	if entry.expired(c.now()) {
		c.removeElement(elem)
		GetMetrics().expirationsTotal.WithLabelValues(backendMemory).Inc()
		c.recordMiss()
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	}

	atomic.AddInt64(&c.hits, 1)
	GetMetrics().hitsTotal.WithLabelValues(backendMemory).Inc()
	span.SetAttributes(
		attribute.Bool("cache.hit", true),
		attribute.Int("cache.value_size", len(entry.value)),
	)

	return bytes.Clone(entry.value), nil
}

// Set stores a value in the cache.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, span := otel.Tracer(cacheTracerName).Start(ctx, "cache.Set",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", backendMemory),
			attribute.String("cache.key", key),
			attribute.Int("cache.value_size", len(value)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		GetMetrics().operationDuration.WithLabelValues(backendMemory, "set").Observe(time.Since(start).Seconds())
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl == 0 {
		ttl = c.defaultTTL
	}

	entry := &memoryEntry{
		key:       key,
		value:     bytes.Clone(value),
		createdAt: c.now(),
		ttl:       ttl,
	}

	if elem, exists := c.items[key]; exists {
		elem.Value = entry
		c.order.MoveToFront(elem)
		c.logger.Debug("cache updated",
			observability.String("key", key),
			observability.Duration("ttl", ttl))
		return nil
	}

	if c.order.Len() >= c.maxEntries {
		c.evictOldest()
	}

	c.items[key] = c.order.PushFront(entry)
	GetMetrics().sizeGauge.WithLabelValues(backendMemory).Set(float64(c.order.Len()))

	c.logger.Debug("cache set",
		observability.String("key", key),
		observability.Duration("ttl", ttl),
		observability.Int("size", c.order.Len()))

	return nil
}

// Delete removes a value from the cache and reports whether it was present.
func (c *MemoryCache) Delete(ctx context.Context, key string) (bool, error) {
	_, span := otel.Tracer(cacheTracerName).Start(ctx, "cache.Delete",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", backendMemory),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		return false, nil
	}

	c.removeElement(elem)
	GetMetrics().sizeGauge.WithLabelValues(backendMemory).Set(float64(c.order.Len()))
	c.logger.Debug("cache deleted", observability.String("key", key))

	return true, nil
}

// Clear removes all entries.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.order.Len()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	GetMetrics().sizeGauge.WithLabelValues(backendMemory).Set(0)

	c.logger.Debug("cache cleared", observability.Int("removed", n))
	return nil
}

// Cleanup removes every expired entry and returns how many were removed.
func (c *MemoryCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0

	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*memoryEntry).expired(now) {
			c.removeElement(elem)
			removed++
		}
		elem = prev
	}

	if removed > 0 {
		GetMetrics().expirationsTotal.WithLabelValues(backendMemory).Add(float64(removed))
		GetMetrics().sizeGauge.WithLabelValues(backendMemory).Set(float64(c.order.Len()))
		c.logger.Debug("cache cleanup completed",
			observability.Int("removed", removed),
			observability.Int("size", c.order.Len()))
	}

	return removed
}

// Stats returns cache statistics. Expired entries not yet purged are
// counted in Total and Expired.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	now := c.now()
	total := c.order.Len()
	expired := 0
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		if elem.Value.(*memoryEntry).expired(now) {
			expired++
		}
	}
	c.mu.Unlock()

	return Stats{
		Total:     total,
		Valid:     total - expired,
		Expired:   expired,
		Capacity:  c.maxEntries,
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
	}
}

// SetDefaultTTL changes the TTL applied by Set when called with ttl 0.
// Existing entries keep the TTL they were written with.
func (c *MemoryCache) SetDefaultTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.defaultTTL = ttl
	c.mu.Unlock()
}

// DefaultTTL returns the TTL applied by Set when called with ttl 0.
func (c *MemoryCache) DefaultTTL() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.defaultTTL
}

// Close drops all entries.
func (c *MemoryCache) Close() error {
	_ = c.Clear(context.Background())
	c.logger.Info("memory cache closed")
	return nil
}

// evictOldest removes the entry written longest ago.
// Must be called with lock held.
func (c *MemoryCache) evictOldest() {
	elem := c.order.Back()
	if elem == nil {
		return
	}
	c.removeElement(elem)
	atomic.AddInt64(&c.evictions, 1)
	GetMetrics().evictionsTotal.WithLabelValues(backendMemory).Inc()
	c.logger.Debug("cache evicted oldest entry",
		observability.String("key", elem.Value.(*memoryEntry).key))
}

// removeElement removes an element from the cache.
// Must be called with lock held.
func (c *MemoryCache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*memoryEntry).key)
}

func (c *MemoryCache) recordMiss() {
	atomic.AddInt64(&c.misses, 1)
	GetMetrics().missesTotal.WithLabelValues(backendMemory).Inc()
}
