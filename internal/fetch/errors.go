package fetch

import (
	"errors"
	"fmt"
)

// maxErrorBody bounds the upstream body kept on a StatusError.
const maxErrorBody = 512

var (
	// ErrNetworkFailure matches every failure to obtain a successful
	// response from the upstream: transport errors, an open circuit, and
	// non-2xx statuses.
	ErrNetworkFailure = errors.New("network failure")

	// ErrInvalidBody indicates a 2xx response whose body is not valid JSON.
	ErrInvalidBody = errors.New("invalid response body")

	// ErrInvalidRequest indicates a request that cannot be sent.
	ErrInvalidRequest = errors.New("invalid request")
)

// StatusError is returned when the upstream answers with a non-2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	// Body holds the beginning of the upstream response body.
	Body []byte
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// Is reports whether target is ErrNetworkFailure.
func (e *StatusError) Is(target error) bool {
	return target == ErrNetworkFailure
}

// Temporary reports whether the status suggests the upstream itself is
// failing rather than rejecting the request.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// NetworkError wraps a transport-level failure.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrNetworkFailure.
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetworkFailure
}

func truncateBody(body []byte) []byte {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out
}
