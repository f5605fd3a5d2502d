package api

import (
	"errors"
	"fmt"
)

// Error categories returned by Client. Concrete errors wrap one of these, so
// callers can classify failures with errors.Is.
var (
	// ErrRequestFailed means the backend answered with a non-2xx status.
	ErrRequestFailed = errors.New("request failed")
	// ErrTransport means the request never produced an HTTP response
	// (DNS, connection refused, timeout, cancellation).
	ErrTransport = errors.New("transport error")
	// ErrStreamUnavailable means the response carried no readable body stream.
	ErrStreamUnavailable = errors.New("stream reader not available")
	// ErrMalformedResponse means the response body was not valid JSON.
	ErrMalformedResponse = errors.New("malformed response")
)

// RequestError describes a non-2xx response.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s failed: status %d", e.Method, e.Path, e.StatusCode)
}

// Unwrap lets errors.Is(err, ErrRequestFailed) match.
func (e *RequestError) Unwrap() error {
	return ErrRequestFailed
}

func transportError(method, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
}

func malformedError(method, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrMalformedResponse, method, path, err)
}
