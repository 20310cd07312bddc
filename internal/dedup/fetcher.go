package dedup

import (
	"bytes"
	"context"

	"github.com/vyrodovalexey/reride-fetch/internal/fetch"
	"github.com/vyrodovalexey/reride-fetch/internal/observability"
)

// Fetcher performs deduplicated cached fetches: concurrent fetches with the
// same cache key share one fetch.Client call. When callers sharing a call
// pass different TTLs, the TTL of the caller that started it applies.
type Fetcher struct {
	client *fetch.Client
	group  *Group[*fetch.Result]
	logger observability.Logger
}

// NewFetcher creates a Fetcher over client.
func NewFetcher(client *fetch.Client, opts ...Option) *Fetcher {
	o := groupOptions{logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = "fetch"
	}

	return &Fetcher{
		client: client,
		group:  NewGroup[*fetch.Result](WithName(o.name), WithLogger(o.logger)),
		logger: o.logger,
	}
}

// Fetch performs a deduplicated cached fetch. shared reports whether the
// result was delivered to other concurrent callers too.
func (f *Fetcher) Fetch(ctx context.Context, req *fetch.Request, opts ...fetch.Option) (*fetch.Result, bool, error) {
	key, err := f.client.ResolveKey(req, opts...)
	if err != nil {
		return nil, false, err
	}

	callOpts := append(append([]fetch.Option(nil), opts...), fetch.WithKey(key))

	res, shared, err := f.group.Do(ctx, key, func(ctx context.Context) (*fetch.Result, error) {
		return f.client.Fetch(ctx, req, callOpts...)
	})
	if err != nil {
		return nil, shared, err
	}

	if shared {
		f.logger.Debug("fetch result shared", observability.String("key", key))
		// Each waiter gets its own copy of the payload.
		out := *res
		out.Body = bytes.Clone(res.Body)
		return &out, true, nil
	}
	return res, false, nil
}

// Do performs a deduplicated cached fetch and returns the payload. It
// satisfies fetch.Doer.
func (f *Fetcher) Do(ctx context.Context, req *fetch.Request, opts ...fetch.Option) ([]byte, error) {
	res, _, err := f.Fetch(ctx, req, opts...)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

// InFlight returns the number of keys with a pending fetch.
func (f *Fetcher) InFlight() int {
	return f.group.InFlight()
}
