// Package httpclient is the JSON REST client shared by upstream service
// clients. It never retries: every failure is returned to the caller with the
// method and path that failed.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pesio-ai/be-freight-documents/internal/common/auth"
	"github.com/pesio-ai/be-freight-documents/internal/common/errors"
)

// maxErrorBody bounds how much of a failed response body is kept
const maxErrorBody = 4 << 10

// Observer is notified after every completed round trip (status 0 on
// transport failure).
type Observer func(method, path string, status int, elapsed time.Duration)

// Client is a JSON REST client bound to one base URL
type Client struct {
	baseURL  string
	http     *http.Client
	observer Observer
}

// Option configures a Client
type Option func(*Client)

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithObserver installs a round-trip observer (metrics)
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient creates a new client for baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is a non-2xx upstream response
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// StatusOf returns the upstream status carried by err, or 0
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// Get issues a GET request
func (c *Client) Get(ctx context.Context, s auth.Session, path string, query url.Values, out interface{}) error {
	if len(query) > 0 {
		path = path + "?" + query.Encode()
	}
	return c.Do(ctx, s, http.MethodGet, path, nil, out)
}

// Post issues a POST request
func (c *Client) Post(ctx context.Context, s auth.Session, path string, body, out interface{}) error {
	return c.Do(ctx, s, http.MethodPost, path, body, out)
}

// Put issues a PUT request
func (c *Client) Put(ctx context.Context, s auth.Session, path string, body, out interface{}) error {
	return c.Do(ctx, s, http.MethodPut, path, body, out)
}

// Delete issues a DELETE request; the upstream API expects a JSON body on
// deletes (deletedById).
func (c *Client) Delete(ctx context.Context, s auth.Session, path string, body, out interface{}) error {
	return c.Do(ctx, s, http.MethodDelete, path, body, out)
}

// Do performs one request. Non-2xx responses return an UPSTREAM_ERROR wrapping
// *StatusError; network failures return TRANSPORT_ERROR.
func (c *Client) Do(ctx context.Context, s auth.Session, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to encode request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h := s.AuthorizationHeader(); h != "" {
		req.Header.Set("Authorization", h)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(method, path, 0, time.Since(start))
		return errors.Transport(method+" "+path, err)
	}
	defer resp.Body.Close()
	c.observe(method, path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		se := &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
		return errors.Wrap(se, errors.ErrCodeUpstream, "upstream request failed").
			WithDetail("status", resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Transport("reading "+method+" "+path+" response", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, errors.ErrCodeUpstream, "failed to decode "+method+" "+path+" response")
	}
	return nil
}

func (c *Client) observe(method, path string, status int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer(method, path, status, elapsed)
	}
}
