// Package httpclient provides the JSON-over-HTTP transport used to talk to the search engine
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum allowed response size (100MB)
	MaxResponseSize = 100 * 1024 * 1024

	// UserAgent is the user agent string for HTTP requests
	UserAgent = "indexsync/1.0"
)

// Request is a request relative to the client's base URL. Path segments must
// already be escaped.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// Response carries the status and body of any completed exchange. Non-2xx
// statuses are not errors at this layer.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client is an interface for HTTP operations
//
//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client
type Client interface {
	// Do sends req and returns the response of any completed exchange
	Do(ctx context.Context, req *Request) (*Response, error)
}

// DefaultClient is the default HTTP client implementation
type DefaultClient struct {
	client   *http.Client
	baseURL  *url.URL
	username string
	password string
}

// Option configures a DefaultClient
type Option func(*DefaultClient)

// WithBasicAuth sends credentials with every request
func WithBasicAuth(username, password string) Option {
	return func(c *DefaultClient) {
		c.username = username
		c.password = password
	}
}

// NewDefaultClient creates a client for baseURL with the specified timeout.
// If timeout is 0, uses DefaultTimeout
func NewDefaultClient(baseURL string, timeout time.Duration, opts ...Option) (*DefaultClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", baseURL)
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	c := &DefaultClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: u,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Do performs the request
func (c *DefaultClient) Do(ctx context.Context, r *Request) (*Response, error) {
	target := *c.baseURL
	rawPath := strings.TrimRight(c.baseURL.EscapedPath(), "/") + "/" + strings.TrimLeft(r.Path, "/")
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", r.Path, err)
	}
	target.Path, target.RawPath = path, rawPath
	if len(r.Query) > 0 {
		target.RawQuery = r.Query.Encode()
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("response size %d bytes exceeds maximum allowed size of %d bytes (%.2f MB)",
			resp.ContentLength, MaxResponseSize, float64(MaxResponseSize)/(1024*1024))
	}

	// +1 to detect if limit exceeded
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > MaxResponseSize {
		return nil, fmt.Errorf("response size exceeds maximum allowed size of %d bytes (%.2f MB)",
			MaxResponseSize, float64(MaxResponseSize)/(1024*1024))
	}

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}
