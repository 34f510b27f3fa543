// Package upstream provides the HTTP client for the dsebd.org market pages.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/guttosm/dsepulse/internal/domain/models"
	"github.com/guttosm/dsepulse/internal/logger"
)

const (
	DefaultBaseURL    = "https://www.dsebd.org"
	DefaultTimeout    = 5 * time.Second
	DefaultMaxRetries = 3
	DefaultRateLimit  = 4 // requests per second

	pathLatest     = "/latest_share_price_scroll_l.php"
	pathDsex       = "/dseX_share.php"
	pathTop30      = "/top_30_share.php"
	pathHistorical = "/day_end_archive.php"
)

// Fetcher retrieves the raw payload for one source key. Implemented by
// *Client; faked in tests.
type Fetcher interface {
	Fetch(ctx context.Context, key models.SourceKey, params url.Values) ([]byte, error)
}

// Client fetches raw market pages from dsebd.org.
//
// The client is stateless beyond its rate limiter and safe for concurrent
// use. Every call carries the caller's context plus a per-attempt timeout;
// transient failures (5xx, connection errors) are retried with exponential
// backoff, 4xx responses fail immediately.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// Option configures the client.
type Option func(*Client)

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithMaxRetries sets how many times a transient failure is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithRateLimit caps requests per second against the upstream site.
func WithRateLimit(requestsPerSecond int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client for the given base URL (scheme+host, no
// trailing slash). An empty baseURL falls back to DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// pathFor maps a source key to its upstream page.
func pathFor(key models.SourceKey) (string, error) {
	switch key {
	case models.SourceLatest:
		return pathLatest, nil
	case models.SourceDsex:
		return pathDsex, nil
	case models.SourceTop30:
		return pathTop30, nil
	case models.SourceHistorical:
		return pathHistorical, nil
	default:
		return "", fmt.Errorf("unknown source key %q", key)
	}
}

// Fetch retrieves the raw page body for the given source key.
//
// Behavior:
//   - Waits on the rate limiter before each attempt.
//   - Retries transient failures (5xx, connection errors, per-attempt
//     timeouts) up to the configured retry budget with exponential backoff.
//   - Fails immediately on 4xx responses.
//
// Errors are always *Error with a Kind the caller can map to a response:
// Timeout when ctx's deadline expired, UpstreamRejected for 4xx,
// Unreachable for a connection failure with no retries left to spend,
// TooManyRetries when the budget is exhausted.
func (c *Client) Fetch(ctx context.Context, key models.SourceKey, params url.Values) ([]byte, error) {
	path, err := pathFor(key)
	if err != nil {
		return nil, &Error{Kind: KindUpstreamRejected, Endpoint: string(key), Err: err}
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	attempts := 0
	operation := func() ([]byte, error) {
		attempts++
		return c.get(ctx, path, reqURL)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(newExponentialBackOff(), uint64(c.maxRetries)),
		ctx,
	)

	body, err := backoff.RetryWithData(operation, b)
	if err == nil {
		return body, nil
	}

	return nil, c.classify(ctx, path, err, attempts)
}

// Ping checks upstream reachability; used by the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("upstream returned %d", resp.StatusCode)
	}
	return nil
}

// get performs one rate-limited attempt. Non-retryable failures are wrapped
// in backoff.Permanent so the retry loop stops immediately.
func (c *Client) get(ctx context.Context, path, reqURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("rate limit wait: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, backoff.Permanent(&Error{Kind: KindUpstreamRejected, Endpoint: path, Err: err})
	}
	req.Header.Set("User-Agent", "dsepulse/1.0")

	logger.L().Debug().Str("endpoint", path).Msg("upstream request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// Caller's deadline or cancellation: nothing left to retry against.
			return nil, backoff.Permanent(err)
		}
		// Per-attempt timeout or connection failure: transient.
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		// Drain so the connection can be reused across retries.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, backoff.Permanent(&Error{Kind: KindUpstreamRejected, Endpoint: path, StatusCode: resp.StatusCode})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// classify turns the terminal retry-loop error into a typed *Error.
func (c *Client) classify(ctx context.Context, path string, err error, attempts int) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Endpoint: path, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() && attempts <= 1 {
		return &Error{Kind: KindTimeout, Endpoint: path, Err: err}
	}
	if attempts <= 1 {
		return &Error{Kind: KindUnreachable, Endpoint: path, Err: err}
	}
	return &Error{Kind: KindTooManyRetries, Endpoint: path, Err: err}
}

func newExponentialBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0 // bounded by retry count and ctx deadline, not wall clock
	return b
}
