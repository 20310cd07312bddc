package dedup

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/vyrodovalexey/reride-fetch/internal/observability"
)

// ErrPanic is returned to every waiter when the shared call panics.
var ErrPanic = errors.New("deduplicated call panicked")

// Group deduplicates concurrent calls by key.
type Group[T any] struct {
	name     string
	sf       singleflight.Group
	logger   observability.Logger
	inFlight atomic.Int64
}

// Option configures a Group.
type Option func(*groupOptions)

type groupOptions struct {
	name   string
	logger observability.Logger
}

// WithName sets the name used in metrics labels.
func WithName(name string) Option {
	return func(o *groupOptions) {
		o.name = name
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(o *groupOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewGroup creates a Group.
func NewGroup[T any](opts ...Option) *Group[T] {
	o := groupOptions{name: "default", logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Group[T]{name: o.name, logger: o.logger}
}

// Do runs fn for key unless a call for key is already in flight, in which
// case it waits for that call. shared reports whether the result was
// delivered to more than one caller.
func (g *Group[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, bool, error) {
	detached := context.WithoutCancel(ctx)

	ch := g.sf.DoChan(key, func() (any, error) {
		g.inFlight.Add(1)
		GetMetrics().inFlight.WithLabelValues(g.name).Inc()
		defer func() {
			g.inFlight.Add(-1)
			GetMetrics().inFlight.WithLabelValues(g.name).Dec()
		}()

		return g.call(detached, key, fn)
	})

	select {
	case res := <-ch:
		if res.Shared {
			GetMetrics().callsTotal.WithLabelValues(g.name, "shared").Inc()
		} else {
			GetMetrics().callsTotal.WithLabelValues(g.name, "executed").Inc()
		}
		if res.Err != nil {
			var zero T
			return zero, res.Shared, res.Err
		}
		return res.Val.(T), res.Shared, nil
	case <-ctx.Done():
		GetMetrics().callsTotal.WithLabelValues(g.name, "abandoned").Inc()
		g.logger.Debug("caller stopped waiting for shared call",
			observability.String("key", key),
			observability.Error(ctx.Err()))
		var zero T
		return zero, false, ctx.Err()
	}
}

// InFlight returns the number of keys with a pending call.
func (g *Group[T]) InFlight() int {
	return int(g.inFlight.Load())
}

// call runs fn, converting a panic into an error so that every waiter is
// released.
func (g *Group[T]) call(ctx context.Context, key string, fn func(context.Context) (T, error)) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			GetMetrics().panicsTotal.WithLabelValues(g.name).Inc()
			g.logger.Error("deduplicated call panicked",
				observability.String("key", key),
				observability.Any("panic", r),
				observability.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	return fn(ctx)
}
