package health

import (
	"context"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/reride-fetch/internal/cache"
	"github.com/vyrodovalexey/reride-fetch/internal/fetch"
)

// CacheCheck reports the cache backend as unhealthy when it cannot be
// reached. Backends without a Ping are always healthy.
func CacheCheck(c cache.Cache) CheckFunc {
	return func(ctx context.Context) Check {
		pinger, ok := c.(cache.Pinger)
		if !ok {
			return Check{Status: StatusHealthy}
		}
		if err := pinger.Ping(ctx); err != nil {
			return Check{Status: StatusUnhealthy, Message: err.Error()}
		}
		return Check{Status: StatusHealthy}
	}
}

// BreakerCheck reports the upstream as degraded while its circuit breaker
// is not closed. Cached responses are still served in that state.
func BreakerCheck(b *fetch.Breaker) CheckFunc {
	return func(context.Context) Check {
		if b == nil {
			return Check{Status: StatusHealthy}
		}
		switch state := b.State(); state {
		case gobreaker.StateClosed:
			return Check{Status: StatusHealthy}
		default:
			return Check{Status: StatusDegraded, Message: "circuit breaker " + state.String()}
		}
	}
}
