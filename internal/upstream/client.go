package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/voicesop/internal/config"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultRateLimit   = 10
	defaultBurst       = 5
	defaultMaxRetries  = 2
	defaultBaseBackoff = 500 * time.Millisecond
	maxResponseBytes   = 4 << 20
	maxErrorBody       = 512
)

// Client sends JSON requests to one upstream service.
type Client struct {
	service    string
	baseURL    string
	header     http.Header
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBearer sets the Authorization header.
func WithBearer(token config.Secret) Option {
	return func(c *Client) {
		if token.IsSet() {
			c.header.Set("Authorization", "Bearer "+token.Value())
		}
	}
}

// WithHeader sets a header on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Set(key, value) }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying client. Its timeout is kept.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimit sets requests per second and burst.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithRetries sets how often idempotent requests are retried on 429/5xx and
// transport errors. Zero disables retries.
func WithRetries(n int, backoff time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = n
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

// New creates a client for service rooted at baseURL.
func New(service, baseURL string, opts ...Option) *Client {
	c := &Client{
		service:    service,
		baseURL:    strings.TrimRight(baseURL, "/"),
		header:     http.Header{},
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries: defaultMaxRetries,
		backoff:    defaultBaseBackoff,
	}
	c.header.Set("Content-Type", "application/json")
	c.header.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Service returns the error prefix this client reports with.
func (c *Client) Service() string { return c.service }

// BaseURL returns the root all paths are resolved against.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Get(ctx context.Context, op, path string, out any) (int, error) {
	return c.Do(ctx, op, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, op, path string, in, out any) (int, error) {
	return c.Do(ctx, op, http.MethodPost, path, in, out)
}

func (c *Client) Put(ctx context.Context, op, path string, in, out any) (int, error) {
	return c.Do(ctx, op, http.MethodPut, path, in, out)
}

func (c *Client) Patch(ctx context.Context, op, path string, in, out any) (int, error) {
	return c.Do(ctx, op, http.MethodPatch, path, in, out)
}

func (c *Client) Delete(ctx context.Context, op, path string) (int, error) {
	return c.Do(ctx, op, http.MethodDelete, path, nil, nil)
}

// Do sends in as JSON and decodes a 2xx response into out when out is not
// nil. path may be absolute, in which case the base URL is ignored. Failures
// are returned as *Error. GET, PUT and DELETE are retried on transient
// failures; POST and PATCH are sent once.
func (c *Client) Do(ctx context.Context, op, method, path string, in, out any) (int, error) {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return 0, &Error{Service: c.service, Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
	}

	attempts := 1
	if idempotent(method) {
		attempts += c.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := c.backoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return 0, &Error{Service: c.service, Op: op, Err: ctx.Err()}
			}
		}

		status, err := c.do(ctx, op, method, path, payload, out)
		if err == nil {
			return status, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return status, err
		}
	}
	return StatusCode(lastErr), lastErr
}

func (c *Client) do(ctx context.Context, op, method, path string, payload []byte, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, &Error{Service: c.service, Op: op, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return 0, &Error{Service: c.service, Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	for k, v := range c.header {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &Error{Service: c.service, Op: op, Err: err, retryable: ctx.Err() == nil}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, &Error{Service: c.service, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &Error{
			Service:    c.service,
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(data)), maxErrorBody),
			retryable:  retryableStatus(resp.StatusCode),
		}
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, &Error{Service: c.service, Op: op, Err: fmt.Errorf("failed to parse response: %w", err)}
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodHead:
		return true
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
