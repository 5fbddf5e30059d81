package offq

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Client sends queued actions to the REST backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenProvider
}

// ClientConfig holds client configuration.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	Tokens     TokenProvider
	HTTPClient *http.Client
}

// NewClient creates a backend client. A zero Timeout defaults to 30s.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Tokens == nil {
		cfg.Tokens = StaticToken("")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        16,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: hc,
		tokens:     cfg.Tokens,
	}
}

// Send issues a single action and returns the response status. The response
// body is discarded. A non-nil error means no status was received.
func (c *Client) Send(ctx context.Context, a QueuedAction) (int, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return 0, err
	}

	var body io.Reader
	if len(a.Body) > 0 {
		body = bytes.NewReader(a.Body)
	}
	req, err := http.NewRequestWithContext(ctx, string(a.Method), c.baseURL+a.Endpoint, body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}
	if len(a.Body) > 0 && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	sendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", a.Method, a.Endpoint, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return resp.StatusCode, nil
}

// Ping checks whether the backend answers on path. It reports whether the
// request reached the server and whether the server answered 2xx.
func (c *Client) Ping(ctx context.Context, path string) (reached bool, healthy bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	return true, resp.StatusCode >= 200 && resp.StatusCode < 300
}

var _ Sender = (*Client)(nil)
