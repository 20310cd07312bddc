// Package retry runs an operation with capped exponential backoff.
//
// It is used for cache backend calls (Redis) where a transient connection
// error should not surface as a failure. Upstream API fetches are never
// retried here: a failed fetch is reported to the caller unchanged.
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return client.Set(ctx, key, value, ttl).Err()
//	}, &retry.Options{ShouldRetry: isTransient})
package retry
