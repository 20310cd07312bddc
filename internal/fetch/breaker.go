package fetch

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/reride-fetch/internal/config"
	"github.com/vyrodovalexey/reride-fetch/internal/observability"
)

// BreakerStateFunc is called when the breaker changes state.
// state is 0 for closed, 1 for half-open, and 2 for open.
type BreakerStateFunc func(name string, state int)

// Breaker guards the upstream with a gobreaker circuit breaker. Transport
// errors and temporary statuses count as failures; other non-2xx statuses
// do not, since they reflect the request rather than upstream health.
type Breaker struct {
	cb            *gobreaker.CircuitBreaker
	logger        observability.Logger
	stateCallback BreakerStateFunc
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithBreakerLogger sets the logger for the breaker.
func WithBreakerLogger(logger observability.Logger) BreakerOption {
	return func(b *Breaker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithBreakerStateCallback sets a callback for breaker state changes.
func WithBreakerStateCallback(fn BreakerStateFunc) BreakerOption {
	return func(b *Breaker) {
		b.stateCallback = fn
	}
}

// NewBreaker creates a breaker that trips once at least threshold requests
// were seen in the current interval and half of them failed. It stays open
// for timeout.
func NewBreaker(name string, threshold int, timeout time.Duration, opts ...BreakerOption) *Breaker {
	b := &Breaker{logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(b)
	}

	thresholdU32 := safeIntToUint32(threshold)

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    timeout,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= thresholdU32 && failureRatio >= 0.5
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.logger.Info("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()))

			GetMetrics().breakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()

			_, span := otel.Tracer(fetchTracerName).Start(context.Background(),
				"circuitbreaker.state_change",
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			span.AddEvent("state_change", trace.WithAttributes(
				attribute.String("circuitbreaker.name", name),
				attribute.String("circuitbreaker.from", from.String()),
				attribute.String("circuitbreaker.to", to.String()),
			))
			span.End()

			if b.stateCallback != nil {
				b.stateCallback(name, int(to))
			}
		},
	}

	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

// NewBreakerFromConfig returns nil when the breaker is disabled.
func NewBreakerFromConfig(name string, cfg *config.CircuitBreakerConfig, opts ...BreakerOption) *Breaker {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return NewBreaker(name, cfg.Threshold, cfg.Timeout.Duration(), opts...)
}

// Execute runs fn under breaker protection. An open breaker is reported as
// gobreaker.ErrOpenState or gobreaker.ErrTooManyRequests.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	return b.cb.Execute(fn)
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.cb.Name()
}

func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return !statusErr.Temporary()
	}
	return errors.Is(err, ErrInvalidBody)
}

// IsCircuitOpen reports whether err was caused by the breaker rejecting
// the call.
func IsCircuitOpen(err error) bool {
	return isBreakerOpen(err)
}

// isBreakerOpen reports whether err was produced by a rejecting breaker.
func isBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}
