// Package client provides the HTTP client used against the metadata and
// pricing services: per-host rate limiting, timeouts, and bounded retries
// with exponential backoff for transient failures.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Limiter gates outgoing requests to one host.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Penalizer is implemented by limiters that accept Retry-After cooldowns.
type Penalizer interface {
	Penalize(ctx context.Context, d time.Duration)
}

// Request describes one logical request. It is rebuilt for every attempt,
// so Body must be the complete payload.
type Request struct {
	// Target labels the request in logs and metrics (e.g. "gamma:/markets").
	Target string
	Method string
	URL    string
	Body   []byte
}

// Response is a successful (2xx) response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// Config holds the client configuration.
type Config struct {
	// User-Agent header sent with every request.
	UserAgent string

	// Timeouts
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// Retry
	Retry RetryConfig
}

// DefaultConfig returns a conservative default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent:      userAgent,
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    9 * time.Second,
		Retry:          DefaultRetryConfig(),
	}
}

// Client executes requests through a Limiter with retries.
type Client struct {
	httpClient *http.Client
	limiter    Limiter
	config     Config
	observer   Observer
	logger     zerolog.Logger

	wait   waitFunc
	jitter func() float64
}

// New creates a client whose every attempt first acquires limiter.
func New(cfg Config, limiter Limiter) (*Client, error) {
	if limiter == nil {
		return nil, fmt.Errorf("limiter is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.ConnectTimeout <= 0 || cfg.ReadTimeout <= 0 {
		return nil, fmt.Errorf("timeouts must be positive (connect %v, read %v)", cfg.ConnectTimeout, cfg.ReadTimeout)
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}

	logger := log.With().Str("component", "http-client").Logger()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout
	transport.ResponseHeaderTimeout = cfg.ReadTimeout

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
		},
		limiter:  limiter,
		config:   cfg,
		observer: NewMetricsObserver(logger),
		logger:   logger,
	}, nil
}

// Do executes req. Transient failures (429, 5xx, network) are retried up to
// Retry.MaxAttempts; any other non-2xx status is returned immediately as an
// *HTTPError. Exhaustion returns an error wrapping ErrRetryExhausted and the
// last failure.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	var resp *Response

	attempts, err := retryWithBackoff(ctx, c.config.Retry, c.wait, c.jitter, func(attempt int) attemptResult {
		r, result := c.attempt(ctx, req, attempt)
		resp = r
		return result
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Target, err)
	}

	resp.Attempts = attempts
	return resp, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, target, url string) (*Response, error) {
	return c.Do(ctx, Request{Target: target, Method: http.MethodGet, URL: url})
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, target, url string, body []byte) (*Response, error) {
	return c.Do(ctx, Request{Target: target, Method: http.MethodPost, URL: url, Body: body})
}

// attempt performs a single request and classifies its outcome.
func (c *Client) attempt(ctx context.Context, req Request, attempt int) (*Response, attemptResult) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, attemptResult{err: fmt.Errorf("%w: %v", ErrContextCancelled, err)}
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, attemptResult{err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	obs := Observation{Target: req.Target, Method: req.Method, Attempt: attempt}
	start := time.Now()

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		obs.Latency = time.Since(start)
		obs.ErrorClass, obs.Err = ErrorClassNetwork, err
		c.observer.Observe(obs)
		if ctx.Err() != nil {
			return nil, attemptResult{err: fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())}
		}
		return nil, attemptResult{err: err, class: ErrorClassNetwork}
	}

	data, err := io.ReadAll(httpResp.Body)
	httpResp.Body.Close()
	obs.Latency = time.Since(start)
	obs.StatusCode = httpResp.StatusCode
	obs.Bytes = len(data)
	if err != nil {
		obs.ErrorClass, obs.Err = ErrorClassNetwork, err
		c.observer.Observe(obs)
		if ctx.Err() != nil {
			return nil, attemptResult{err: fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())}
		}
		return nil, attemptResult{err: fmt.Errorf("read response body: %w", err), class: ErrorClassNetwork}
	}

	class := classifyStatus(httpResp.StatusCode)
	if class == "" {
		c.observer.Observe(obs)
		return &Response{
			StatusCode: httpResp.StatusCode,
			Header:     httpResp.Header,
			Body:       data,
		}, attemptResult{}
	}

	httpErr := &HTTPError{
		StatusCode: httpResp.StatusCode,
		ErrorClass: class,
		Message:    httpResp.Status,
	}
	obs.ErrorClass, obs.Err = class, httpErr
	c.observer.Observe(obs)

	if class == ErrorClassRateLimit {
		if d, ok := ParseRetryAfter(httpResp.Header.Get("Retry-After"), time.Now()); ok {
			if p, ok := c.limiter.(Penalizer); ok {
				p.Penalize(ctx, d)
			}
		}
	}

	return nil, attemptResult{err: httpErr, class: class}
}

// ParseRetryAfter parses a Retry-After header given as delay-seconds or an HTTP date.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	if at, err := http.ParseTime(value); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetObserver replaces the attempt observer.
func (c *Client) SetObserver(o Observer) {
	if o != nil {
		c.observer = o
	}
}
