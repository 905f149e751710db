package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client provides access to the relay HTTP API.
type Client struct {
	baseURL    string
	header     http.Header
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new API client. baseURL may use ws/wss, which map
// to http/https.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: httpBase(baseURL),
		header:  http.Header{},
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithHeader adds headers to every request, e.g. the same Authorization
// header the WebSocket handshake uses.
func WithHeader(h http.Header) ClientOption {
	return func(c *Client) {
		for k, vs := range h {
			for _, v := range vs {
				c.header.Add(k, v)
			}
		}
	}
}

// httpBase strips a trailing slash and maps ws(s) to http(s).
func httpBase(raw string) string {
	raw = strings.TrimRight(raw, "/")
	switch {
	case strings.HasPrefix(raw, "ws://"):
		return "http://" + strings.TrimPrefix(raw, "ws://")
	case strings.HasPrefix(raw, "wss://"):
		return "https://" + strings.TrimPrefix(raw, "wss://")
	}
	return raw
}
