// Package acuant implements the AssureID document-verification adapter:
// create a document instance, upload the captured images, then fetch and
// normalize the results.
package acuant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"idv-gateway/internal/docauth"
	"idv-gateway/internal/docauth/errorgen"
	"idv-gateway/internal/docauth/httpclient"
	"idv-gateway/internal/docauth/metrics"
	"idv-gateway/internal/docauth/tracer"
)

const (
	sideFront = 0
	sideBack  = 1

	// AssureID light values: 0 is white light. Infrared and UV captures are
	// not part of this pipeline.
	lightWhite = 0
)

// Config configures the Acuant client.
type Config struct {
	BaseURL        string
	APIKey         string
	SubscriptionID string
	Timeout        time.Duration

	LivenessEnabled bool

	// HTTPClient overrides the transport (tests).
	HTTPClient httpclient.Doer
}

// Client is the AssureID adapter.
type Client struct {
	http            *httpclient.Client
	baseURL         string
	apiKey          string
	subscriptionID  string
	livenessEnabled bool

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
}

// New creates an Acuant verifier.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics, tr tracer.Tracer) *Client {
	if tr == nil {
		tr = tracer.NewNoop()
	}
	return &Client{
		http: httpclient.New(httpclient.Config{
			Vendor:     docauth.VendorAcuant,
			Timeout:    cfg.Timeout,
			HTTPClient: cfg.HTTPClient,
		}),
		baseURL:         cfg.BaseURL,
		apiKey:          cfg.APIKey,
		subscriptionID:  cfg.SubscriptionID,
		livenessEnabled: cfg.LivenessEnabled,
		logger:          logger,
		metrics:         m,
		tracer:          tr,
	}
}

var _ docauth.Verifier = (*Client)(nil)

// Verify runs the three-call AssureID exchange and normalizes the outcome.
func (c *Client) Verify(ctx context.Context, input docauth.CaptureInput) (resp *docauth.Response, err error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, tracer.SpanDocAuthCall,
		tracer.String(tracer.AttrVendor, string(docauth.VendorAcuant)))
	defer func() {
		span.End(err)
		c.record(start, resp, err)
	}()

	if len(input.FrontImage) == 0 && len(input.BackImage) == 0 {
		err = docauth.NewVendorError(docauth.ErrorBadData, docauth.VendorAcuant,
			"no document images provided", nil)
		return nil, err
	}

	instanceID, err := c.createInstance(ctx)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.String(tracer.AttrReference, instanceID))

	if len(input.FrontImage) > 0 {
		if err = c.uploadImage(ctx, instanceID, sideFront, input.FrontImage); err != nil {
			return nil, err
		}
	}
	if len(input.BackImage) > 0 {
		if err = c.uploadImage(ctx, instanceID, sideBack, input.BackImage); err != nil {
			return nil, err
		}
	}

	body, err := c.getResults(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	resp, err = ParseResults(body, ResponseConfig{
		LivenessEnabled: c.livenessEnabled && len(input.Selfie) > 0,
		ErrorGen: errorgen.Config{
			WarnNotifier: c.warnNotifier(instanceID),
		},
	})
	return resp, err
}

func (c *Client) createInstance(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"SubscriptionId":            c.subscriptionID,
		"AuthenticationSensitivity": 0,
		"ClassificationMode":        0,
		"Device": map[string]any{
			"HasContactlessChipReader": false,
			"HasMagneticStripeReader":  false,
			"SerialNumber":             "idv-gateway",
			"Type": map[string]any{
				"Manufacturer": "idv-gateway",
				"SensorType":   3,
			},
		},
	})
	if err != nil {
		return "", err
	}

	result, err := c.http.Do(ctx, http.MethodPost,
		c.baseURL+"/AssureIDService/Document/Instance", payload, c.headers("application/json"))
	if err != nil {
		return "", err
	}
	if result.StatusCode != http.StatusOK {
		return "", unexpectedStatus(result.StatusCode)
	}
	return parseInstanceID(result.Body)
}

func (c *Client) uploadImage(ctx context.Context, instanceID string, side int, image []byte) error {
	url := fmt.Sprintf("%s/AssureIDService/Document/%s/Image?side=%d&light=%d",
		c.baseURL, instanceID, side, lightWhite)

	result, err := c.http.Do(ctx, http.MethodPost, url, image, c.headers("application/octet-stream"))
	if err != nil {
		return err
	}
	if result.StatusCode != http.StatusOK {
		return unexpectedStatus(result.StatusCode)
	}
	return nil
}

func (c *Client) getResults(ctx context.Context, instanceID string) ([]byte, error) {
	url := fmt.Sprintf("%s/AssureIDService/Document/%s", c.baseURL, instanceID)

	result, err := c.http.Do(ctx, http.MethodGet, url, nil, c.headers("application/json"))
	if err != nil {
		return nil, err
	}
	if result.StatusCode != http.StatusOK {
		return nil, unexpectedStatus(result.StatusCode)
	}
	return result.Body, nil
}

func (c *Client) headers(contentType string) map[string]string {
	return map[string]string{
		"Authorization": "Basic " + c.apiKey,
		"Accept":        "application/json",
		"Content-Type":  contentType,
	}
}

// warnNotifier forwards unknown-alert warnings to the structured log. Details
// carry alert names only, never document fields.
func (c *Client) warnNotifier(instanceID string) func(string, map[string]any) {
	return func(message string, details map[string]any) {
		if c.logger == nil {
			return
		}
		attrs := []any{"vendor", string(docauth.VendorAcuant), "reference", instanceID}
		for k, v := range details {
			attrs = append(attrs, k, v)
		}
		c.logger.Warn(message, attrs...)
	}
}

func (c *Client) record(start time.Time, resp *docauth.Response, err error) {
	if c.metrics == nil {
		return
	}
	if err != nil {
		c.metrics.RecordError(string(docauth.VendorAcuant), string(docauth.Category(err)))
		c.metrics.RecordRequest(string(docauth.VendorAcuant), "error", time.Since(start).Seconds())
		return
	}
	outcome := "failure"
	if resp != nil && resp.Success {
		outcome = "success"
	}
	c.metrics.RecordRequest(string(docauth.VendorAcuant), outcome, time.Since(start).Seconds())
}
