// Package fetch performs outbound HTTP requests for the content pipeline.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultMaxBytes caps response bodies.
const DefaultMaxBytes = 5 << 20

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	URL  string
	Code int
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
}

// Response is a fully read upstream response.
type Response struct {
	Body        []byte
	ContentType string
	URL         string
}

// Client wraps an http.Client with a user agent, a per-host limiter and a
// body size cap. A zero Limiter disables per-host limiting.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	Limiter   *HostLimiter
	MaxBytes  int64
}

// NewClient returns a client with the given request timeout.
func NewClient(timeout time.Duration, userAgent string, limiter *HostLimiter) *Client {
	return &Client{
		HTTP: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     60 * time.Second,
				TLSHandshakeTimeout: 15 * time.Second,
			},
		},
		UserAgent: userAgent,
		Limiter:   limiter,
		MaxBytes:  DefaultMaxBytes,
	}
}

// Get fetches rawURL and reads the body. accept sets the Accept header when
// non-empty.
func (c *Client) Get(ctx context.Context, rawURL, accept string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return c.do(req)
}

// PostJSON sends payload as a JSON body and reads the response.
func (c *Client) PostJSON(ctx context.Context, rawURL string, payload any, headers map[string]string) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*Response, error) {
	rawURL := req.URL.String()
	if c.Limiter != nil {
		host := HostOf(rawURL)
		if err := c.Limiter.Acquire(req.Context(), host); err != nil {
			return nil, fmt.Errorf("wait for %s: %w", host, err)
		}
		defer c.Limiter.Release(host)
	}

	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if req.Header.Get("Accept-Language") == "" {
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	}

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}

	limit := c.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	return &Response{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		URL:         resp.Request.URL.String(),
	}, nil
}
