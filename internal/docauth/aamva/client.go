// Package aamva implements the DLDV (driver license data verification) state
// ID check against the AAMVA verification service. The exchange is SOAP over
// HTTPS: obtain a security token, then post the verification envelope and
// evaluate the match indicators it returns.
package aamva

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"idv-gateway/internal/docauth"
	"idv-gateway/internal/docauth/httpclient"
	"idv-gateway/internal/docauth/metrics"
	"idv-gateway/internal/docauth/tracer"
)

const soapContentType = "application/soap+xml;charset=UTF-8"

const verifySOAPAction = `"http://aamva.org/dldv/wsdl/2.1/IDLDVService21/VerifyDriverLicenseData"`

// Config configures the DLDV client.
type Config struct {
	VerificationURL string
	AuthURL         string

	// PrivateKey and PublicKey authenticate the token request.
	PrivateKey string
	PublicKey  string

	// CertMode routes requests to the CERT/test jurisdiction.
	CertMode bool

	Timeout time.Duration

	// HTTPClient overrides the transport (tests).
	HTTPClient httpclient.Doer
}

// Client verifies state-ID data against the DLDV service.
type Client struct {
	http *httpclient.Client
	cfg  Config

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
}

// New creates a DLDV client.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics, tr tracer.Tracer) *Client {
	if tr == nil {
		tr = tracer.NewNoop()
	}
	return &Client{
		http: httpclient.New(httpclient.Config{
			Vendor:     docauth.VendorAAMVA,
			Timeout:    cfg.Timeout,
			HTTPClient: cfg.HTTPClient,
		}),
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		tracer:  tr,
	}
}

// StateIDVerifier is the contract the proofing job depends on.
type StateIDVerifier interface {
	VerifyStateID(ctx context.Context, applicant *docauth.Applicant) (*Result, error)
}

var _ StateIDVerifier = (*Client)(nil)

// VerifyStateID runs the full DLDV exchange for one applicant.
func (c *Client) VerifyStateID(ctx context.Context, applicant *docauth.Applicant) (result *Result, err error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, tracer.SpanStateIDCall,
		tracer.String(tracer.AttrVendor, string(docauth.VendorAAMVA)))
	defer func() {
		span.End(err)
		c.record(start, result, err)
	}()

	token, err := c.authToken(ctx)
	if err != nil {
		return nil, err
	}

	transactionID := uuid.NewString()
	body, err := BuildVerificationRequest(applicant, transactionID, token, c.cfg.CertMode)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(ctx, http.MethodPost, c.cfg.VerificationURL, body, map[string]string{
		"Content-Type": soapContentType,
		"SOAPAction":   verifySOAPAction,
	})
	if err != nil {
		return nil, err
	}

	result, err = ParseVerificationResponse(resp.StatusCode, resp.Body)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		tracer.Bool(tracer.AttrSuccess, result.Success),
		tracer.String(tracer.AttrReference, transactionID),
	)
	return result, nil
}

// authToken obtains a DLDV security token. Token faults reuse the same
// sentinel classification as verification faults.
func (c *Client) authToken(ctx context.Context) (string, error) {
	body, err := buildAuthTokenRequest(c.cfg.PublicKey, c.cfg.PrivateKey)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(ctx, http.MethodPost, c.cfg.AuthURL, body, map[string]string{
		"Content-Type": soapContentType,
	})
	if err != nil {
		return "", err
	}
	if faultErr := checkFault(resp.Body); faultErr != nil {
		return "", faultErr
	}
	if resp.StatusCode != http.StatusOK {
		return "", docauth.NewVendorError(docauth.ErrorAuthentication, docauth.VendorAAMVA,
			"token request failed", nil)
	}

	values, err := extractElements(resp.Body)
	if err != nil {
		return "", docauth.NewVendorError(docauth.ErrorAuthentication, docauth.VendorAAMVA,
			"malformed token response", err)
	}
	token, ok := values["Token"]
	if !ok || token == "" {
		return "", docauth.NewVendorError(docauth.ErrorAuthentication, docauth.VendorAAMVA,
			"token response missing token", nil)
	}
	return token, nil
}

func (c *Client) record(start time.Time, result *Result, err error) {
	if c.metrics == nil {
		return
	}
	if err != nil {
		c.metrics.RecordError(string(docauth.VendorAAMVA), string(docauth.Category(err)))
		c.metrics.RecordRequest(string(docauth.VendorAAMVA), "error", time.Since(start).Seconds())
		return
	}
	outcome := "failure"
	if result != nil && result.Success {
		outcome = "success"
	}
	c.metrics.RecordRequest(string(docauth.VendorAAMVA), outcome, time.Since(start).Seconds())
}
