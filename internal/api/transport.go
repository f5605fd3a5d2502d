package api

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"asasense/internal/logger"
)

// loggingTransport logs every round trip at debug level.
type loggingTransport struct {
	base http.RoundTripper
	log  *log.Logger
}

// NewLoggingTransport wraps base (http.DefaultTransport when nil) with
// request logging.
func NewLoggingTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &loggingTransport{
		base: base,
		log:  logger.NewStyledLogger("HTTP"),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	t.log.Debug("request", "method", req.Method, "url", req.URL.String())

	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start)
	if err != nil {
		t.log.Debug("request error", "method", req.Method, "url", req.URL.String(), "duration", elapsed, "error", err)
		return resp, err
	}

	t.log.Debug("response", "method", req.Method, "url", req.URL.String(), "status", resp.StatusCode, "duration", elapsed)
	return resp, nil
}
