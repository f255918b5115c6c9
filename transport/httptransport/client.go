// Package httptransport implements transport.Transport over net/http.
package httptransport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	trackErrors "github.com/c0deZ3R0/go-track-kit/errors"
	"github.com/c0deZ3R0/go-track-kit/logging"
	"github.com/c0deZ3R0/go-track-kit/transport"
)

// errResponseTooLarge is returned when a response body exceeds Limits.MaxResponseBytes.
var errResponseTooLarge = errors.New("response body exceeds maximum size limit")

// Limits bounds each HTTP exchange.
type Limits struct {
	MaxResponseBytes int64         // Maximum response body size in bytes
	RequestTimeout   time.Duration // Per-request deadline; 0 disables it
}

// DefaultLimits returns the limits used by NewClient.
func DefaultLimits() Limits {
	return Limits{
		MaxResponseBytes: 1 << 20, // 1MB, discovery scripts are a few KB
		RequestTimeout:   30 * time.Second,
	}
}

// Client is a transport.Transport backed by an *http.Client.
type Client struct {
	http        *http.Client
	limits      Limits
	limiter     *rate.Limiter
	userAgent   string
	compression bool
	logger      *logging.Logger
}

var _ transport.Transport = (*Client)(nil)

// ClientOption configures a Client using the functional options pattern
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(cl *http.Client) ClientOption {
	return func(c *Client) {
		c.http = cl
	}
}

// WithLimits sets the size and timeout limits
func WithLimits(l Limits) ClientOption {
	return func(c *Client) {
		c.limits = l
	}
}

// WithRateLimit caps outgoing requests per second with the given burst. A zero
// rps disables limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCompression asks servers for gzip and inflates responses within
// Limits.MaxResponseBytes.
func WithCompression(enabled bool) ClientOption {
	return func(c *Client) {
		c.compression = enabled
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a new HTTP transport client with functional options.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http:      &http.Client{},
		limits:    DefaultLimits(),
		userAgent: "go-track-kit",
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("transport")
	return c
}

// HTTPClient returns the underlying HTTP client
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Limits returns the current limits configuration
func (c *Client) Limits() Limits {
	return c.limits
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string) (*transport.Response, error) {
	return c.do(ctx, http.MethodGet, url)
}

// Post performs a POST request with an empty body.
func (c *Client) Post(ctx context.Context, url string) (*transport.Response, error) {
	return c.do(ctx, http.MethodPost, url)
}

func (c *Client) do(ctx context.Context, method, url string) (*transport.Response, error) {
	if c.limits.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.limits.RequestTimeout)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, trackErrors.NewTransportError(trackErrors.OpSend, fmt.Errorf("rate limiter: %w", err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, http.NoBody)
	if err != nil {
		return nil, trackErrors.NewTransportError(trackErrors.OpSend, fmt.Errorf("failed to create request: %w", err))
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.compression {
		// Setting the header ourselves turns off net/http's transparent decoding.
		req.Header.Set("Accept-Encoding", "gzip")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			slog.String("method", method),
			slog.String("error", err.Error()))
		return nil, trackErrors.NewTransportError(trackErrors.OpSend, fmt.Errorf("network error: %w", err))
	}
	defer resp.Body.Close()

	body, err := readBody(resp, c.limits.MaxResponseBytes)
	if err != nil {
		return nil, trackErrors.NewTransportError(trackErrors.OpSend, fmt.Errorf("failed to read response: %w", err))
	}

	c.logger.Debug("request completed",
		slog.String("method", method),
		slog.Int("status_code", resp.StatusCode),
		slog.Int("body_bytes", len(body)))

	return &transport.Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// readLimited reads r fully, failing if it holds more than limit bytes. A
// non-positive limit reads without bound.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, errResponseTooLarge
	}
	return body, nil
}
