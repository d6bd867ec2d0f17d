// Package api implements the HTTP client for the backend community API.
// It owns authentication, per-request timeouts, retry with exponential
// backoff on transient failures, and the typed error taxonomy consumed
// by the service layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// Config configures a Client.
type Config struct {
	// BaseURL of the backend API, e.g. "https://api.smarter.dev".
	BaseURL string
	// Token placed in the Authorization header as a bearer token.
	Token string

	// Retry policy for transient failures (network errors and 5xx).
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64

	// Per-request timeouts when the caller doesn't supply one.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxConns bounds idle connections to the API host.
	MaxConns int
}

func (c *Config) applyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.BackoffFactor == 0 {
		c.BackoffFactor = 2
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 15 * time.Second
	}
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
}

// Request carries the optional parts of an API call.
type Request struct {
	Query   url.Values
	Body    interface{}
	Headers map[string]string
	// Timeout overrides the client's default for this call.
	Timeout time.Duration
}

// Response is a completed 2xx API response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Decode unmarshals the JSON response body into out.
func (r *Response) Decode(out interface{}) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("failed to decode API response: %w", err)
	}
	return nil
}

// Stats is a point-in-time snapshot of a client's counters.
type Stats struct {
	Requests     int64
	Errors       int64
	TotalLatency time.Duration
}

// Client issues authenticated JSON requests to the backend API.
// It is safe for concurrent use.
type Client struct {
	cfg  Config
	base *url.URL
	http *http.Client

	requests     atomic.Int64
	errors       atomic.Int64
	latencyNanos atomic.Int64
}

// NewClient builds a Client for the configured base URL.
func NewClient(cfg Config) (*Client, error) {
	cfg.applyDefaults()

	var base, err = url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q: missing scheme or host", cfg.BaseURL)
	}

	var transport = &http.Transport{
		MaxIdleConns:        cfg.MaxConns,
		MaxIdleConnsPerHost: cfg.MaxConns,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		cfg:  cfg,
		base: base,
		http: &http.Client{Transport: transport},
	}, nil
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, req *Request) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, req, c.cfg.ReadTimeout)
}

// Post issues a POST request.
func (c *Client) Post(ctx context.Context, path string, req *Request) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, req, c.cfg.WriteTimeout)
}

// Put issues a PUT request.
func (c *Client) Put(ctx context.Context, path string, req *Request) (*Response, error) {
	return c.do(ctx, http.MethodPut, path, req, c.cfg.WriteTimeout)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, req *Request) (*Response, error) {
	return c.do(ctx, http.MethodDelete, path, req, c.cfg.WriteTimeout)
}

func (c *Client) do(ctx context.Context, method, path string, req *Request, defaultTimeout time.Duration) (*Response, error) {
	if req == nil {
		req = &Request{}
	}
	var timeout = req.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	var reqBytes []byte
	if req.Body != nil {
		var err error
		if reqBytes, err = json.Marshal(req.Body); err != nil {
			return nil, fmt.Errorf("failed to encode %s %s request body: %w", method, path, err)
		}
	}

	var u = *c.base
	u.Path = c.base.Path + path
	if len(req.Query) != 0 {
		u.RawQuery = req.Query.Encode()
	}

	c.requests.Add(1)
	var started = time.Now()
	defer func() {
		var elapsed = time.Since(started)
		c.latencyNanos.Add(int64(elapsed))
		requestLatency.Observe(elapsed.Seconds())
	}()

	var bo = backoff{base: c.cfg.BaseDelay, max: c.cfg.MaxDelay, factor: c.cfg.BackoffFactor}
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			requestRetriesTotal.Inc()
			select {
			case <-time.After(bo.next()):
			case <-ctx.Done():
				c.errors.Add(1)
				requestErrorsTotal.WithLabelValues(method, "canceled").Inc()
				return nil, &NetworkError{Err: ctx.Err()}
			}
		}

		var resp, retriable, err = c.attempt(ctx, method, u.String(), reqBytes, req.Headers, timeout)
		if err == nil {
			requestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
			return resp, nil
		}
		lastErr = err
		if !retriable {
			break
		}
		log.WithFields(log.Fields{
			"method":  method,
			"path":    path,
			"attempt": attempt,
			"err":     err,
		}).Warn("API request failed (will retry)")
	}

	c.errors.Add(1)
	requestErrorsTotal.WithLabelValues(method, errorKind(lastErr)).Inc()
	return nil, lastErr
}

// attempt runs a single HTTP exchange and classifies the outcome.
// The second return reports whether the failure is retriable.
func (c *Client) attempt(ctx context.Context, method, u string, body []byte, headers map[string]string, timeout time.Duration) (*Response, bool, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, method, u, reader)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build %s request: %w", method, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		// Don't retry past the caller's own deadline.
		if ctx.Err() != nil {
			return nil, false, &NetworkError{Err: ctx.Err()}
		}
		return nil, true, &NetworkError{Err: err}
	}
	respBody, err := io.ReadAll(httpResp.Body)
	httpResp.Body.Close()
	if err != nil {
		return nil, true, &NetworkError{Err: err}
	}

	switch sc := httpResp.StatusCode; {
	case sc >= 200 && sc < 300:
		return &Response{StatusCode: sc, Body: respBody}, false, nil
	case sc == http.StatusUnauthorized:
		return nil, false, &AuthenticationError{Body: respBody}
	case sc == http.StatusTooManyRequests:
		return nil, false, &RateLimitError{
			RetryAfter: retryAfterSeconds(httpResp.Header.Get("Retry-After")),
			Body:       respBody,
		}
	case sc >= 500:
		return nil, true, &APIError{StatusCode: sc, Body: respBody}
	default:
		return nil, false, &APIError{StatusCode: sc, Body: respBody}
	}
}

// HealthCheck round-trips the API's health endpoint.
func (c *Client) HealthCheck(ctx context.Context) (healthy bool, latency time.Duration, err error) {
	var started = time.Now()
	_, err = c.Get(ctx, "/health", &Request{Timeout: 5 * time.Second})
	return err == nil, time.Since(started), err
}

// Stats snapshots the client's cumulative counters.
func (c *Client) Stats() Stats {
	return Stats{
		Requests:     c.requests.Load(),
		Errors:       c.errors.Load(),
		TotalLatency: time.Duration(c.latencyNanos.Load()),
	}
}

// Close releases idle transport connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func retryAfterSeconds(header string) float64 {
	if header == "" {
		return 0
	}
	var secs, err = strconv.ParseFloat(header, 64)
	if err != nil {
		return 0
	}
	return secs
}

func errorKind(err error) string {
	switch err.(type) {
	case *NetworkError:
		return "network"
	case *RateLimitError:
		return "rate_limit"
	case *AuthenticationError:
		return "auth"
	case *APIError:
		return "api"
	default:
		return "other"
	}
}
