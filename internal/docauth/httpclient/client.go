// Package httpclient provides the shared HTTP layer for vendor adapters:
// per-request timeouts and a small bounded retry loop restricted to statuses
// that indicate a transient vendor-side problem.
package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"idv-gateway/internal/docauth"
)

// Doer is the minimal interface needed from an HTTP client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result is a fully read HTTP response.
type Result struct {
	StatusCode int
	Body       []byte
}

// Config configures a retrying vendor HTTP client.
type Config struct {
	Vendor  docauth.Vendor
	Timeout time.Duration

	// MaxRetries bounds additional attempts after the first (default 2).
	MaxRetries int

	// InitialBackoff is the delay before the first retry; it doubles per
	// attempt (default 100ms).
	InitialBackoff time.Duration

	// HTTPClient overrides the default client (tests).
	HTTPClient Doer
}

// Client issues vendor HTTP requests with bounded retries.
//
// Retries apply only to transport failures and to 404/500 responses, which
// the vendors document as transient processing states. Client-error statuses
// that indicate a permanent rejection are returned immediately.
type Client struct {
	vendor         docauth.Vendor
	client         Doer
	maxRetries     int
	initialBackoff time.Duration
}

// New creates a vendor HTTP client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		vendor:         cfg.Vendor,
		client:         client,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
	}
}

// retryableStatus reports whether a response status is worth retrying.
func retryableStatus(status int) bool {
	return status == http.StatusNotFound || status == http.StatusInternalServerError
}

// Do executes the request, retrying transport failures and transient statuses
// with exponential backoff. The request body must be provided separately so
// it can be replayed across attempts.
func (c *Client) Do(ctx context.Context, method, url string, body []byte, headers map[string]string) (*Result, error) {
	backoff := c.initialBackoff

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, docauth.NewVendorError(docauth.ErrorTimeout, c.vendor, "request cancelled during backoff", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		result, err := c.doOnce(ctx, method, url, body, headers)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, docauth.NewVendorError(docauth.ErrorTimeout, c.vendor, "request timeout", err)
			}
			continue
		}

		if retryableStatus(result.StatusCode) && attempt < c.maxRetries {
			lastErr = docauth.NewVendorError(docauth.ErrorVendorOutage, c.vendor,
				"transient vendor status "+http.StatusText(result.StatusCode), nil)
			continue
		}

		return result, nil
	}

	return nil, docauth.NewVendorError(docauth.ErrorVendorOutage, c.vendor, "request failed after retries", lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, url string, body []byte, headers map[string]string) (*Result, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Result{StatusCode: resp.StatusCode, Body: respBody}, nil
}
