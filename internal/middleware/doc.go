// Package middleware provides gin middleware for the ReRide fetch proxy.
//
// # Middleware Components
//
//   - RequestID: unique request identifier injection
//   - Logging: structured access logging
//   - Recovery: panic recovery with stack trace logging
//   - RateLimit: per-client token bucket rate limiter
//   - Metrics: HTTP request metrics
//
// # Usage
//
//	engine := gin.New()
//	engine.Use(
//	    middleware.RequestID(),
//	    middleware.Logging(logger),
//	    middleware.Recovery(logger),
//	    middleware.Metrics(metrics),
//	)
package middleware
