package aamva

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"idv-gateway/internal/docauth"
)

// Indicator names the DLDV match-indicator element for one applicant
// attribute.
type Indicator struct {
	Attribute string
	Element   string
	Required  bool
}

// indicators lists every match indicator the DLDV response can carry. The
// required entries appear first, in the order failure reasons are reported.
var indicators = []Indicator{
	{Attribute: "state_id_number", Element: "DriverLicenseNumberMatchIndicator", Required: true},
	{Attribute: "dob", Element: "PersonBirthDateMatchIndicator", Required: true},
	{Attribute: "last_name", Element: "PersonLastNameExactMatchIndicator", Required: true},
	{Attribute: "first_name", Element: "PersonFirstNameExactMatchIndicator", Required: true},

	{Attribute: "middle_name", Element: "PersonMiddleNameExactMatchIndicator"},
	{Attribute: "name_suffix", Element: "PersonNameSuffixMatchIndicator"},
	{Attribute: "address1", Element: "AddressLine1MatchIndicator"},
	{Attribute: "address2", Element: "AddressLine2MatchIndicator"},
	{Attribute: "city", Element: "AddressCityMatchIndicator"},
	{Attribute: "state", Element: "AddressStateCodeMatchIndicator"},
	{Attribute: "zipcode", Element: "AddressZIP5MatchIndicator"},
	{Attribute: "state_id_issued", Element: "DriverLicenseIssueDateMatchIndicator"},
	{Attribute: "state_id_expiration", Element: "DriverLicenseExpirationDateMatchIndicator"},
}

// MVA exception sentinels embedded in DLDV SOAP faults.
const (
	mvaTimeoutExceptionText = "MVA did not respond in a timely fashion"
	mvaUnavailableText      = "MVA system is unavailable"
)

// Result is the evaluated DLDV verification outcome.
//
// Success and Reasons come from one pass over the required indicators, so
// they cannot drift: Success is true exactly when Reasons is empty.
type Result struct {
	// Matches holds the tri-state indicator outcomes keyed by attribute:
	// a missing key means the response omitted that indicator entirely.
	Matches map[string]bool

	Success bool
	Reasons []string

	TransactionLocatorID string
}

// VerifiedAttributes lists the attributes whose indicator came back true.
func (r *Result) VerifiedAttributes() []string {
	verified := make([]string, 0, len(r.Matches))
	for _, ind := range indicators {
		if matched, ok := r.Matches[ind.Attribute]; ok && matched {
			verified = append(verified, ind.Attribute)
		}
	}
	return verified
}

// ParseVerificationResponse evaluates a DLDV response body.
//
// A SOAP fault is an error, never a failed Result: the MVA-timeout sentinel
// becomes a retryable timeout, other faults a hard verification error.
// Malformed XML is a verification error.
func ParseVerificationResponse(status int, body []byte) (*Result, error) {
	if err := checkFault(body); err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, docauth.NewVendorError(docauth.ErrorVerification, docauth.VendorAAMVA,
			fmt.Sprintf("Unexpected status code in response: %d", status), nil)
	}

	values, err := extractElements(body)
	if err != nil {
		return nil, docauth.NewVendorError(docauth.ErrorVerification, docauth.VendorAAMVA,
			"malformed verification response", err)
	}

	result := &Result{
		Matches:              make(map[string]bool),
		TransactionLocatorID: values["TransactionLocatorId"],
	}
	for _, ind := range indicators {
		raw, ok := values[ind.Element]
		if ok {
			result.Matches[ind.Attribute] = raw == "true"
		}

		if !ind.Required {
			continue
		}
		// Single evaluation pass: success and reasons derive from the same
		// lookup, in declaration order.
		switch {
		case !ok:
			result.Reasons = append(result.Reasons, "Response was missing "+ind.Attribute)
		case raw != "true":
			result.Reasons = append(result.Reasons, "Failed to verify "+ind.Attribute)
		}
	}
	result.Success = len(result.Reasons) == 0

	return result, nil
}

// checkFault scans the body for a SOAP fault and classifies its MVA
// exception sentinels.
func checkFault(body []byte) error {
	if !bytes.Contains(body, []byte("Fault")) {
		return nil
	}

	values, err := extractElements(body)
	if err != nil {
		// A body that mentions a fault but cannot be parsed still fails hard.
		return docauth.NewVendorError(docauth.ErrorVerification, docauth.VendorAAMVA,
			"malformed fault response", err)
	}

	text, ok := values["ExceptionText"]
	if !ok {
		if _, faulted := values["Fault"]; !faulted {
			return nil
		}
		text = values["Text"]
	}

	id := values["ExceptionId"]
	message := fmt.Sprintf("DLDV VSS - ExceptionId: %s, ExceptionText: %s", id, text)

	switch {
	case strings.Contains(text, mvaTimeoutExceptionText):
		return docauth.NewVendorError(docauth.ErrorTimeout, docauth.VendorAAMVA, message, nil)
	case strings.Contains(text, mvaUnavailableText):
		return docauth.NewVendorError(docauth.ErrorVendorOutage, docauth.VendorAAMVA, message, nil)
	default:
		return docauth.NewVendorError(docauth.ErrorVerification, docauth.VendorAAMVA, message, nil)
	}
}

// extractElements walks the XML and indexes leaf text by element local name,
// ignoring namespaces. DLDV element names are unique enough within one
// response that a flat index is sufficient.
func extractElements(body []byte) (map[string]string, error) {
	values := make(map[string]string)
	decoder := xml.NewDecoder(bytes.NewReader(body))

	var current string
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := token.(type) {
		case xml.StartElement:
			current = t.Name.Local
			if _, ok := values[current]; !ok {
				values[current] = ""
			}
		case xml.CharData:
			if current != "" {
				if text := strings.TrimSpace(string(t)); text != "" {
					values[current] = text
				}
			}
		case xml.EndElement:
			current = ""
		}
	}
	return values, nil
}
