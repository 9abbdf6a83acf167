// Package fetch retrieves remote audio assets. Upstream hosts are uneven:
// some reject bare clients, some serve error pages with a 200 status. The
// client therefore walks an ordered list of request variants and applies a
// uniform "did this attempt yield a usable non-trivial payload" predicate,
// stopping at the first success.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Static errors for fetch operations.
var (
	// ErrUnavailable is returned when every strategy has been exhausted
	// without yielding a usable payload. Distinct from decode errors so the
	// caller can tell "bad network" from "bad audio".
	ErrUnavailable = errors.New("fetch: asset unavailable")
	// ErrTooLarge is returned when the payload exceeds the configured cap.
	ErrTooLarge = errors.New("fetch: asset too large")
)

// minUsableBytes is the threshold below which a response body is considered
// trivial (an error page or an empty stub rather than audio).
const minUsableBytes = 256

// Strategy is one request variant in the ordered fallback list.
type Strategy struct {
	// Name identifies the variant in logs.
	Name string
	// Headers are added to the request.
	Headers map[string]string
}

// DefaultStrategies returns the standard variant list: a plain request
// first, then a browser-like one for hosts that reject unknown clients.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "plain"},
		{
			Name: "browser",
			Headers: map[string]string{
				"User-Agent": "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
				"Accept":     "audio/*,*/*;q=0.8",
			},
		},
	}
}

// Client fetches remote assets with bounded attempts.
type Client struct {
	httpClient *http.Client
	strategies []Strategy
	timeout    time.Duration
	maxBytes   int64
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithStrategies replaces the variant list.
func WithStrategies(strategies []Strategy) ClientOption {
	return func(cl *Client) {
		if len(strategies) > 0 {
			cl.strategies = strategies
		}
	}
}

// WithTimeout bounds each individual attempt. Expiry is a hard failure for
// that attempt, never a silent retry of the same variant.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithMaxBytes caps the accepted payload size.
func WithMaxBytes(n int64) ClientOption {
	return func(cl *Client) {
		if n > 0 {
			cl.maxBytes = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// NewClient creates a fetch client with the default strategy list, a 30 s
// per-attempt timeout and a 100 MiB payload cap.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{},
		strategies: DefaultStrategies(),
		timeout:    30 * time.Second,
		maxBytes:   100 << 20,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves the asset at url, trying each strategy in order until one
// yields a usable non-trivial payload. Returns ErrUnavailable (wrapping the
// last attempt's failure) when all strategies are exhausted.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for _, strategy := range c.strategies {
		data, err := c.attempt(ctx, url, strategy)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, ErrTooLarge) || ctx.Err() != nil {
			return nil, err
		}
		c.logger.Warn("fetch attempt failed",
			slog.String("strategy", strategy.Name),
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, url, lastErr)
}

func (c *Client) attempt(ctx context.Context, url string, strategy Strategy) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range strategy.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrTooLarge, c.maxBytes)
	}
	if len(data) < minUsableBytes {
		return nil, fmt.Errorf("trivial payload: %d bytes", len(data))
	}
	return data, nil
}
