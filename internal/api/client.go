// Package api is the HTTP client for the agent backend. A single Client holds
// the base URL and is shared by every component that talks to the backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"asasense/internal/logger"
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues requests against a fixed base URL.
type Client struct {
	baseURL   string
	doer      Doer
	timeout   time.Duration
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithDoer replaces the HTTP client used to send requests.
func WithDoer(doer Doer) Option {
	return func(c *Client) {
		if doer != nil {
			c.doer = doer
		}
	}
}

// WithTimeout bounds Get and Post calls. Streaming calls are bounded only by
// the caller's context. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// New creates a Client for baseURL. The default HTTP client logs every
// round trip at debug level.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		doer:    &http.Client{Transport: NewLoggingTransport(nil)},
		timeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	logger.Debug("API client created", "base_url", c.baseURL, "timeout", c.timeout.String())
	return c
}

// BaseURL returns the base every path is resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get issues GET base+path and decodes the JSON body into out. A nil out
// discards the body without parsing it.
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decodeBody(resp, http.MethodGet, path, out)
}

// Post issues POST base+path with body encoded as JSON and decodes the JSON
// response into out.
func (c *Client) Post(ctx context.Context, path string, body interface{}, out interface{}) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.send(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	return decodeBody(resp, http.MethodPost, path, out)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// send performs one round trip and returns the response only for 2xx
// statuses. The caller owns the returned body.
func (c *Client) send(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s %s body: %w", method, path, err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, transportError(method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reqErr := &RequestError{Method: method, Path: path, StatusCode: resp.StatusCode}
		if resp.Body != nil {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			reqErr.Body = string(snippet)
			_ = resp.Body.Close()
		}
		logger.Debug("Request failed", "method", method, "path", path, "status", resp.StatusCode)
		return nil, reqErr
	}

	return resp, nil
}

func decodeBody(resp *http.Response, method, path string, out interface{}) error {
	if resp.Body == nil {
		return nil
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(method, path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return malformedError(method, path, err)
	}
	return nil
}
