// Package docauth defines the normalized contract every identity-verification
// vendor adapter must satisfy: one Verify operation producing one Response,
// regardless of the vendor's wire format.
package docauth

import (
	"context"
	"time"
)

// Vendor identifies a verification vendor.
type Vendor string

const (
	VendorAcuant Vendor = "acuant"
	VendorSocure Vendor = "socure"
	VendorAAMVA  Vendor = "aamva"
)

// CaptureInput is the vendor-agnostic input to a verification attempt.
// Adapters must tolerate any field being absent (e.g. a missing selfie or a
// webhook-delivered payload carrying only a reference id).
type CaptureInput struct {
	FrontImage []byte
	BackImage  []byte
	Selfie     []byte

	// DocvTransactionToken references a capture performed on the vendor's
	// side (Socure DocV); set instead of image bytes for push-style flows.
	DocvTransactionToken string

	// Applicant carries the fields needed for state-ID verification (AAMVA).
	Applicant *Applicant

	LivenessEnabled bool
}

// Applicant is the PII set submitted for state-ID verification.
type Applicant struct {
	FirstName           string
	MiddleName          string
	LastName            string
	NameSuffix          string
	DOB                 string
	Address1            string
	Address2            string
	City                string
	State               string
	Zipcode             string
	StateIDNumber       string
	StateIDJurisdiction string
	IDDocType           string
	SSN                 string
}

// StateIDPII is the normalized identity-document field set. Adapters populate
// only what the vendor provided; absent fields stay at their zero value and
// are never defaulted. Dates are parsed defensively: an unparsable date is
// left nil, never an error.
type StateIDPII struct {
	FirstName  string `json:"first_name,omitempty"`
	MiddleName string `json:"middle_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`

	Address1 string `json:"address1,omitempty"`
	Address2 string `json:"address2,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	Zipcode  string `json:"zipcode,omitempty"`

	DOB *time.Time `json:"dob,omitempty"`

	StateIDNumber       string     `json:"state_id_number,omitempty"`
	IDDocType           string     `json:"id_doc_type,omitempty"`
	StateIDJurisdiction string     `json:"state_id_jurisdiction,omitempty"`
	IssuingCountryCode  string     `json:"issuing_country_code,omitempty"`
	StateIDIssued       *time.Time `json:"state_id_issued,omitempty"`
	StateIDExpiration   *time.Time `json:"state_id_expiration,omitempty"`
}

// Response is the immutable, normalized result of one vendor call.
//
// Invariants:
//   - Errors is empty iff Success is true.
//   - PII is populated only on plausible success. The sole exception is the
//     Acuant attention-with-barcode case, which is Success=true with
//     AttentionWithBarcode set so the upstream consumer can flag manual review.
//   - Extra never contains name, address, SSN, or DOB fields.
type Response struct {
	Success bool           `json:"success"`
	Errors  map[string]any `json:"errors,omitempty"`
	PII     *StateIDPII    `json:"pii,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`

	// Exception records an unexpected internal failure (transport error,
	// malformed payload), as distinct from a vendor-reported rejection.
	Exception string `json:"exception,omitempty"`

	// AttentionWithBarcode marks the tolerated "barcode could not be read"
	// attention outcome: verified, but needs manual review upstream.
	AttentionWithBarcode bool `json:"attention_with_barcode,omitempty"`
}

// Verifier is the single-operation contract all vendor adapters implement.
//
// Implementations must not touch the capture-session store (the proofing job
// owns that), must not log PII, and must represent vendor-reported rejections
// as a Response with Success=false rather than an error. Errors are reserved
// for exceptional conditions: transport failure after retries, malformed
// payloads, vendor-side timeout sentinels.
type Verifier interface {
	Verify(ctx context.Context, input CaptureInput) (*Response, error)
}

// NetworkFailureResponse is the stored result for a vendor call that failed at
// the transport or parse layer; the job writes it so the wait step never has
// to handle raw errors.
func NetworkFailureResponse(err error) *Response {
	resp := &Response{
		Success: false,
		Errors:  map[string]any{"network": true},
	}
	if err != nil {
		resp.Exception = err.Error()
	}
	return resp
}

// ParseDate parses a vendor date string against the given layouts, returning
// nil when the value is empty or unparsable. Vendor dates must never fail a
// verification on their own.
func ParseDate(value string, layouts ...string) *time.Time {
	if value == "" {
		return nil
	}
	if len(layouts) == 0 {
		layouts = []string{"2006-01-02"}
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}
