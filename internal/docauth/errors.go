package docauth

import (
	"errors"
	"fmt"
)

// ErrorCategory defines the normalized failure taxonomy for vendor errors.
//
// All adapters classify failures into these categories so the proofing job
// and the step flow can make consistent retry decisions regardless of the
// underlying vendor protocol.
type ErrorCategory string

const (
	// ErrorTimeout indicates the vendor (or its upstream MVA) took too long
	// to respond, including timeout sentinels embedded in 200 responses.
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData indicates the vendor returned a malformed or unexpected payload.
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorAuthentication indicates credential or security-token issues.
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorVendorOutage indicates the vendor is unavailable.
	ErrorVendorOutage ErrorCategory = "vendor_outage"

	// ErrorVerification indicates a hard verification protocol failure
	// (unexpected status code, SOAP fault without a timeout marker). Not a
	// rejection: rejections are normal Responses with Success=false.
	ErrorVerification ErrorCategory = "verification"

	// ErrorInternal indicates an unexpected internal error.
	ErrorInternal ErrorCategory = "internal"
)

// VendorError wraps vendor call failures with normalized categorization.
type VendorError struct {
	Category   ErrorCategory
	Vendor     Vendor
	Message    string
	Underlying error
	Retryable  bool
}

func (e *VendorError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("vendor %s [%s]: %s: %v", e.Vendor, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("vendor %s [%s]: %s", e.Vendor, e.Category, e.Message)
}

func (e *VendorError) Unwrap() error {
	return e.Underlying
}

// NewVendorError creates a normalized vendor error with automatic retry
// classification: timeouts and outages are retryable, everything else is not.
func NewVendorError(category ErrorCategory, vendor Vendor, message string, underlying error) *VendorError {
	return &VendorError{
		Category:   category,
		Vendor:     vendor,
		Message:    message,
		Underlying: underlying,
		Retryable:  category == ErrorTimeout || category == ErrorVendorOutage,
	}
}

// IsRetryable reports whether the user should be offered a plain "try again"
// rather than a verification failure.
func IsRetryable(err error) bool {
	var ve *VendorError
	if errors.As(err, &ve) {
		return ve.Retryable
	}
	return false
}

// Category extracts the error category from an error, defaulting to internal.
func Category(err error) ErrorCategory {
	var ve *VendorError
	if errors.As(err, &ve) {
		return ve.Category
	}
	return ErrorInternal
}
