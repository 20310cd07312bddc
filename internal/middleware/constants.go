package middleware

// HTTP header constants.
const (
	// RequestIDHeader is the header name for request ID.
	RequestIDHeader = "X-Request-ID"

	// HeaderRetryAfter is the Retry-After header name.
	HeaderRetryAfter = "Retry-After"
)

// requestIDKey is the gin context key holding the request ID.
const requestIDKey = "requestID"

// unmatchedRoute is the route label used when no route matched.
const unmatchedRoute = "unmatched"

// isHealthCheckPath checks if the path is a health check endpoint.
func isHealthCheckPath(path string) bool {
	return path == "/health" || path == "/healthz" || path == "/ready" || path == "/readyz"
}
