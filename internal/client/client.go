// Package client provides a small JSON REST client shared by the external
// service integrations (Supabase, the finance API and UAZAPI).
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultTimeout bounds a single request when no timeout option is given.
const DefaultTimeout = 30 * time.Second

var (
	// ErrNotConfigured is returned when the client has no base URL.
	ErrNotConfigured = errors.New("client not configured")

	// ErrInvalidResponse is returned when a response body is not JSON.
	ErrInvalidResponse = errors.New("invalid JSON response")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("server error: status %d: %s", e.StatusCode, e.Message)
}

// Client sends JSON requests to a single base URL.
type Client struct {
	baseURL    string
	headers    http.Header
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Set(key, value) }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for baseURL. A trailing slash is ignored.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		headers:    http.Header{},
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Configured reports whether the client has somewhere to send requests.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// Get sends a GET request with query parameters.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (gjson.Result, error) {
	return c.Do(ctx, http.MethodGet, path, query, nil)
}

// Post sends body encoded as JSON.
func (c *Client) Post(ctx context.Context, path string, body any) (gjson.Result, error) {
	return c.Do(ctx, http.MethodPost, path, nil, body)
}

// Do executes a request and returns the parsed JSON body. Non-2xx responses
// return a *StatusError carrying the server's "error" or "message" field when present.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (gjson.Result, error) {
	if !c.Configured() {
		return gjson.Result{}, ErrNotConfigured
	}

	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return gjson.Result{}, &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return gjson.Result{}, nil
	}
	if !gjson.ValidBytes(respBody) {
		return gjson.Result{}, fmt.Errorf("%w: %s", ErrInvalidResponse, truncate(string(respBody), 120))
	}
	return gjson.ParseBytes(respBody), nil
}

func errorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, field := range []string{"error", "message", "details"} {
			if v := gjson.GetBytes(body, field); v.Exists() && v.String() != "" {
				return v.String()
			}
		}
	}
	return truncate(strings.TrimSpace(string(body)), 200)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
