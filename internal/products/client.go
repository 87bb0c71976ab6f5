// Package products fetches the recommendation list for a finished conversation.
package products

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hummingbird-labs/hummingbird/internal/logging"
	"github.com/hummingbird-labs/hummingbird/internal/metrics"
)

// maxBodySize bounds the recommendation payload.
const maxBodySize = 1 << 20

// DefaultTimeout bounds one recommendation fetch.
const DefaultTimeout = 30 * time.Second

// URLResolver builds the recommendation URL for a session.
// *endpoint.Resolver satisfies it.
type URLResolver interface {
	ProductsURL(sessionID string) string
}

// Client fetches recommendations. It is safe for concurrent use.
type Client struct {
	resolver   URLResolver
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. It is used as is unless
// WithTimeout is also given, in which case a copy carries the timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		client.timeout = d
	}
}

// WithLogger sets the logger. Default is logging.Products().
func WithLogger(l *slog.Logger) Option {
	return func(client *Client) {
		client.logger = l
	}
}

// WithMetrics enables instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(client *Client) {
		client.metrics = m
	}
}

// New creates a recommendation client.
func New(resolver URLResolver, opts ...Option) *Client {
	c := &Client{resolver: resolver}
	for _, opt := range opts {
		opt(c)
	}
	switch {
	case c.httpClient == nil:
		timeout := c.timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.httpClient = &http.Client{Timeout: timeout}
	case c.timeout > 0:
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	if c.logger == nil {
		c.logger = logging.Products()
	}
	return c
}

// List performs GET /api/v1/products/{sessionId} and returns the sanitized
// items. Any transport, status or decoding problem is returned as an error.
func (c *Client) List(ctx context.Context, sessionID string) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolver.ProductsURL(sessionID), nil)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("list products: status %d: %s", resp.StatusCode, string(body))
	}

	var payload Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("list products: decode: %w", err)
	}
	if payload.Products == nil {
		return nil, fmt.Errorf("list products: decode: missing products field")
	}

	items := make([]Item, 0, len(payload.Products))
	for _, it := range payload.Products {
		items = append(items, Sanitize(it))
	}
	return items, nil
}

// Fetch is List for display: it never fails. On any error the result is a
// single ErrorItem, so callers always have something to render. The result
// replaces any previous list wholesale.
func (c *Client) Fetch(ctx context.Context, sessionID string) []Item {
	logger := logging.WithSession(c.logger, sessionID)
	start := time.Now()

	items, err := c.List(ctx, sessionID)
	if err != nil {
		c.metrics.ProductFetch("error", time.Since(start))
		logger.Error("Failed to fetch recommendations", "error", err)
		return []Item{ErrorItem()}
	}

	c.metrics.ProductFetch("ok", time.Since(start))
	logger.Info("Fetched recommendations", "count", len(items))
	return items
}
