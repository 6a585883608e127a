// Package socure implements the Socure DocV adapter. Capture happens on the
// vendor's side; this adapter exchanges a DocV transaction token for the
// verification result.
package socure

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"idv-gateway/internal/docauth"
	"idv-gateway/internal/docauth/httpclient"
	"idv-gateway/internal/docauth/metrics"
	"idv-gateway/internal/docauth/tracer"
)

// Config configures the Socure client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// HTTPClient overrides the transport (tests).
	HTTPClient httpclient.Doer
}

// Client is the DocV adapter.
type Client struct {
	http    *httpclient.Client
	baseURL string
	apiKey  string

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
}

// New creates a Socure verifier.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics, tr tracer.Tracer) *Client {
	if tr == nil {
		tr = tracer.NewNoop()
	}
	return &Client{
		http: httpclient.New(httpclient.Config{
			Vendor:     docauth.VendorSocure,
			Timeout:    cfg.Timeout,
			HTTPClient: cfg.HTTPClient,
		}),
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		logger:  logger,
		metrics: m,
		tracer:  tr,
	}
}

var _ docauth.Verifier = (*Client)(nil)

// Verify fetches the DocV result for the capture referenced by the
// transaction token. Transport failures become a stored network-failure
// result rather than an error: there is nothing upstream to retry on behalf
// of a webhook-driven capture.
func (c *Client) Verify(ctx context.Context, input docauth.CaptureInput) (resp *docauth.Response, err error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, tracer.SpanDocAuthCall,
		tracer.String(tracer.AttrVendor, string(docauth.VendorSocure)))
	defer func() {
		span.End(err)
		c.record(start, resp, err)
	}()

	if input.DocvTransactionToken == "" {
		err = docauth.NewVendorError(docauth.ErrorBadData, docauth.VendorSocure,
			"missing docv transaction token", nil)
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{
		"modules":              []string{"documentverification"},
		"docvTransactionToken": input.DocvTransactionToken,
	})
	if err != nil {
		return nil, err
	}

	result, httpErr := c.http.Do(ctx, http.MethodPost, c.baseURL+"/api/3.0/EmailAuthScore", payload, map[string]string{
		"Authorization": "SocureApiKey " + c.apiKey,
		"Content-Type":  "application/json",
	})
	if httpErr != nil {
		c.logger.Warn("docv result fetch failed",
			"vendor", string(docauth.VendorSocure),
			"category", string(docauth.Category(httpErr)))
		return docauth.NetworkFailureResponse(httpErr), nil
	}
	if result.StatusCode != http.StatusOK {
		resp = docauth.NetworkFailureResponse(nil)
		resp.Exception = fmt.Sprintf("unexpected status code %d", result.StatusCode)
		return resp, nil
	}

	return ParseResult(result.Body), nil
}

func (c *Client) record(start time.Time, resp *docauth.Response, err error) {
	if c.metrics == nil {
		return
	}
	if err != nil {
		c.metrics.RecordError(string(docauth.VendorSocure), string(docauth.Category(err)))
		c.metrics.RecordRequest(string(docauth.VendorSocure), "error", time.Since(start).Seconds())
		return
	}
	outcome := "failure"
	switch {
	case resp == nil:
	case resp.Success:
		outcome = "success"
	case resp.Exception != "":
		outcome = "network_failure"
	}
	c.metrics.RecordRequest(string(docauth.VendorSocure), outcome, time.Since(start).Seconds())
}
