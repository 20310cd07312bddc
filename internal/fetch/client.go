package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/reride-fetch/internal/cache"
	"github.com/vyrodovalexey/reride-fetch/internal/config"
	"github.com/vyrodovalexey/reride-fetch/internal/observability"
)

// fetchTracerName is the OpenTelemetry tracer name for fetch operations.
const fetchTracerName = "reride/fetch"

// maxResponseBody bounds how much of an upstream body is read.
const maxResponseBody = 32 << 20

// Doer performs a cached fetch. *Client implements it.
type Doer interface {
	Do(ctx context.Context, req *Request, opts ...Option) ([]byte, error)
}

// Result is the outcome of a successful fetch.
type Result struct {
	// Key is the cache key the payload is stored under.
	Key string

	Body []byte

	// Cached reports whether Body came from the cache.
	Cached bool
}

// options holds per-call settings.
type options struct {
	key string
	ttl time.Duration
}

// Option configures a single fetch.
type Option func(*options)

// WithKey overrides the derived cache key.
func WithKey(key string) Option {
	return func(o *options) {
		o.key = key
	}
}

// WithTTL overrides the cache default TTL for the stored payload.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// Client is a cache-aware HTTP client for the upstream API.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	headers    http.Header
	cache      cache.Cache
	breaker    *Breaker
	logger     observability.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the underlying HTTP client.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = timeout
		c.httpClient = &hc
	}
}

// WithBaseURL sets the URL that relative request targets are resolved
// against. An unparsable URL is ignored; use NewClientFromConfig to get a
// validation error instead.
func WithBaseURL(raw string) ClientOption {
	return func(c *Client) {
		if u, err := url.Parse(raw); err == nil && raw != "" {
			c.baseURL = u
		}
	}
}

// WithDefaultHeaders sets headers sent with every request. They do not
// contribute to cache keys.
func WithDefaultHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.headers.Set(k, v)
		}
	}
}

// WithCache sets the response cache. Without one every call goes upstream.
func WithCache(ch cache.Cache) ClientOption {
	return func(c *Client) {
		c.cache = ch
	}
}

// WithBreaker guards upstream calls with b.
func WithBreaker(b *Breaker) ClientOption {
	return func(c *Client) {
		c.breaker = b
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a fetch client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: config.DefaultUpstreamTimeout},
		headers:    make(http.Header),
		logger:     observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConfig creates a client for the configured upstream.
func NewClientFromConfig(
	cfg config.UpstreamConfig,
	ch cache.Cache,
	logger observability.Logger,
	opts ...ClientOption,
) (*Client, error) {
	if cfg.BaseURL != "" {
		if _, err := url.Parse(cfg.BaseURL); err != nil {
			return nil, fmt.Errorf("invalid upstream base URL: %w", err)
		}
	}

	base := []ClientOption{
		WithBaseURL(cfg.BaseURL),
		WithDefaultHeaders(cfg.Headers),
		WithCache(ch),
		WithLogger(logger),
	}
	if cfg.Timeout > 0 {
		base = append(base, WithTimeout(cfg.Timeout.Duration()))
	}
	if b := NewBreakerFromConfig("upstream", cfg.CircuitBreaker, WithBreakerLogger(logger)); b != nil {
		base = append(base, WithBreaker(b))
	}

	return NewClient(append(base, opts...)...), nil
}

// Breaker returns the circuit breaker guarding upstream calls, or nil.
func (c *Client) Breaker() *Breaker {
	return c.breaker
}

// ResolveKey returns the cache key the client uses for req.
func (c *Client) ResolveKey(req *Request, opts ...Option) (string, error) {
	o := applyOptions(opts)
	if o.key != "" {
		return o.key, nil
	}
	resolved, err := c.resolve(req)
	if err != nil {
		return "", err
	}
	return Key(resolved), nil
}

// Do performs a cached fetch and returns the payload.
func (c *Client) Do(ctx context.Context, req *Request, opts ...Option) ([]byte, error) {
	res, err := c.Fetch(ctx, req, opts...)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

// Fetch performs a cached fetch.
//
// A valid cache entry under the request key is returned without a network
// call. Otherwise the request is sent; a 2xx response with a JSON body is
// stored under the key with the resolved TTL and returned. Failures are
// returned to the caller and leave the cache untouched.
func (c *Client) Fetch(ctx context.Context, req *Request, opts ...Option) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}

	o := applyOptions(opts)

	resolved, err := c.resolve(req)
	if err != nil {
		return nil, err
	}

	key := o.key
	if key == "" {
		key = Key(resolved)
	}

	ctx, span := otel.Tracer(fetchTracerName).Start(ctx, "fetch.Fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", resolved.method()),
			attribute.String("url.full", resolved.URL),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	if body, ok := c.lookup(ctx, key); ok {
		GetMetrics().cacheOutcomes.WithLabelValues(outcomeHit).Inc()
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return &Result{Key: key, Body: body, Cached: true}, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	body, err := c.send(ctx, resolved)
	if err != nil {
		GetMetrics().cacheOutcomes.WithLabelValues(outcomeError).Inc()
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		c.logger.Warn("upstream fetch failed",
			observability.String("key", key),
			observability.Error(err))
		return nil, err
	}

	GetMetrics().cacheOutcomes.WithLabelValues(outcomeMiss).Inc()
	c.store(ctx, key, body, o.ttl)

	return &Result{Key: key, Body: body}, nil
}

// lookup reads key from the cache. Backend failures are logged and treated
// as a miss so the fetch can still go upstream.
func (c *Client) lookup(ctx context.Context, key string) ([]byte, bool) {
	if c.cache == nil {
		return nil, false
	}

	body, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		c.logger.Debug("fetch served from cache", observability.String("key", key))
		return body, true
	case errors.Is(err, cache.ErrCacheMiss), errors.Is(err, cache.ErrCacheDisabled):
		return nil, false
	default:
		c.logger.Warn("cache lookup failed",
			observability.String("key", key),
			observability.Error(err))
		return nil, false
	}
}

func (c *Client) store(ctx context.Context, key string, body []byte, ttl time.Duration) {
	if c.cache == nil {
		return
	}
	err := c.cache.Set(ctx, key, body, ttl)
	if err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		c.logger.Warn("cache store failed",
			observability.String("key", key),
			observability.Error(err))
	}
}

// send performs the HTTP round trip, through the breaker when configured.
func (c *Client) send(ctx context.Context, req *Request) ([]byte, error) {
	if c.breaker == nil {
		return c.roundTrip(ctx, req)
	}

	out, err := c.breaker.Execute(func() (any, error) {
		return c.roundTrip(ctx, req)
	})
	if err != nil {
		if isBreakerOpen(err) {
			return nil, &NetworkError{Method: req.method(), URL: req.URL, Err: err}
		}
		return nil, err
	}
	return out.([]byte), nil
}

func (c *Client) roundTrip(ctx context.Context, req *Request) ([]byte, error) {
	method := req.method()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	for k, vs := range c.headers {
		httpReq.Header[k] = append([]string(nil), vs...)
	}
	for k, vs := range req.Header {
		httpReq.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	GetMetrics().requestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		GetMetrics().requestsTotal.WithLabelValues(method, "error").Inc()
		return nil, &NetworkError{Method: method, URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	GetMetrics().requestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &NetworkError{Method: method, URL: req.URL, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			Method:     method,
			URL:        req.URL,
			StatusCode: resp.StatusCode,
			Body:       truncateBody(payload),
		}
	}

	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: %s %s returned non-JSON payload", ErrInvalidBody, method, req.URL)
	}

	c.logger.Debug("upstream fetch completed",
		observability.String("method", method),
		observability.String("url", req.URL),
		observability.Int("status", resp.StatusCode),
		observability.Int("size", len(payload)),
		observability.Duration("duration", time.Since(start)))

	return payload, nil
}

// resolve returns a copy of req with its URL resolved against the base URL.
func (c *Client) resolve(req *Request) (*Request, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("%w: empty URL", ErrInvalidRequest)
	}
	target, err := resolveURL(c.baseURL, req.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	out := *req
	out.Method = req.method()
	out.URL = target
	return &out, nil
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
