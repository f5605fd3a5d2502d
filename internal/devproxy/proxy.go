// Package devproxy serves a local development proxy: requests under a path
// prefix go to a secondary service and everything else to an optional
// fallback, typically the agent API.
package devproxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"asasense/internal/logger"
)

// Defaults for the secondary service route.
const (
	DefaultPrefix = "/asasense"
	DefaultTarget = "http://0.0.0.0:8001"
)

// Options configures the proxy handler.
type Options struct {
	Prefix   string
	Target   string
	Fallback string
}

// New returns a router forwarding Prefix and everything below it to Target.
// The Host header is rewritten to the target's host. Other paths go to
// Fallback when set and get 404 otherwise.
func New(opts Options) (http.Handler, error) {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Target == "" {
		opts.Target = DefaultTarget
	}
	prefix := "/" + strings.Trim(opts.Prefix, "/")

	target, err := parseTarget(opts.Target)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy target: %w", err)
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(requestLogger)

	forward := newReverseProxy(target)
	r.Handle(prefix, forward)
	r.Handle(prefix+"/*", forward)

	if opts.Fallback != "" {
		fallback, err := parseTarget(opts.Fallback)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy fallback: %w", err)
		}
		r.NotFound(newReverseProxy(fallback).ServeHTTP)
	}

	logger.Debug("Dev proxy routes configured", "prefix", prefix, "target", target.String(), "fallback", opts.Fallback)
	return r, nil
}

func parseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%q: missing host", raw)
	}
	return u, nil
}

func newReverseProxy(target *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("Proxy upstream failed", "target", target.Host, "path", r.URL.Path, "error", err)
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
		},
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Info("Proxied request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chiMiddleware.GetReqID(r.Context()))
	})
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Dev proxy listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("dev proxy shutdown: %w", err)
	}
	logger.Info("Dev proxy stopped")
	return nil
}
