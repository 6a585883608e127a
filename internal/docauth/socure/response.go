package socure

import (
	"encoding/json"

	"idv-gateway/internal/docauth"
)

// acceptDecision is the only decision value that verifies a document.
const acceptDecision = "accept"

// docvPayload mirrors the IDPlus response carrying a documentverification
// module result.
type docvPayload struct {
	ReferenceID string `json:"referenceId"`
	Status      string `json:"status"`
	Msg         string `json:"msg"`

	DocumentVerification *documentVerification `json:"documentVerification"`
	CustomerProfile      *customerProfile      `json:"customerProfile"`
}

type documentVerification struct {
	Decision struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"decision"`
	ReasonCodes  []string `json:"reasonCodes"`
	DocumentType struct {
		Type    string `json:"type"`
		Country string `json:"country"`
		State   string `json:"state"`
	} `json:"documentType"`
	DocumentData documentData `json:"documentData"`
}

type documentData struct {
	FirstName      string `json:"firstName"`
	MiddleName     string `json:"middleName"`
	SurName        string `json:"surName"`
	DocumentNumber string `json:"documentNumber"`
	DOB            string `json:"dob"`
	IssueDate      string `json:"issueDate"`
	ExpirationDate string `json:"expirationDate"`
	ParsedAddress  struct {
		PhysicalAddress  string `json:"physicalAddress"`
		PhysicalAddress2 string `json:"physicalAddress2"`
		City             string `json:"city"`
		State            string `json:"state"`
		Zip              string `json:"zip"`
	} `json:"parsedAddress"`
}

type customerProfile struct {
	CustomerUserID string `json:"customerUserId"`
}

// ParseResult normalizes a DocV result payload. Unlike the Acuant path, parse
// problems never surface as errors here: the webhook-driven flow has no caller
// positioned to handle them, so they become a stored network-failure result.
func ParseResult(body []byte) *docauth.Response {
	var payload docvPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return docauth.NetworkFailureResponse(err)
	}
	if payload.DocumentVerification == nil {
		resp := docauth.NetworkFailureResponse(nil)
		resp.Exception = "response missing documentVerification"
		resp.Extra = payload.extra()
		return resp
	}

	dv := payload.DocumentVerification
	resp := &docauth.Response{
		Success: dv.Decision.Value == acceptDecision,
		Extra:   payload.extra(),
	}

	if !resp.Success {
		reasonCodes := dv.ReasonCodes
		if reasonCodes == nil {
			reasonCodes = []string{}
		}
		resp.Errors = map[string]any{
			"socure": map[string]any{"reason_codes": reasonCodes},
		}
		return resp
	}

	resp.PII = dv.pii()
	return resp
}

func (dv *documentVerification) pii() *docauth.StateIDPII {
	data := dv.DocumentData
	return &docauth.StateIDPII{
		FirstName:  data.FirstName,
		MiddleName: data.MiddleName,
		LastName:   data.SurName,

		Address1: data.ParsedAddress.PhysicalAddress,
		Address2: data.ParsedAddress.PhysicalAddress2,
		City:     data.ParsedAddress.City,
		State:    data.ParsedAddress.State,
		Zipcode:  data.ParsedAddress.Zip,

		DOB: docauth.ParseDate(data.DOB),

		StateIDNumber:       data.DocumentNumber,
		IDDocType:           dv.DocumentType.Type,
		StateIDJurisdiction: dv.DocumentType.State,
		IssuingCountryCode:  dv.DocumentType.Country,
		StateIDIssued:       docauth.ParseDate(data.IssueDate),
		StateIDExpiration:   docauth.ParseDate(data.ExpirationDate),
	}
}

// extra carries decision and routing diagnostics; document fields never land
// here.
func (p *docvPayload) extra() map[string]any {
	extra := map[string]any{
		"vendor":       string(docauth.VendorSocure),
		"reference_id": p.ReferenceID,
	}
	if p.Status != "" {
		extra["vendor_status"] = p.Status
	}
	if p.Msg != "" {
		extra["vendor_status_message"] = p.Msg
	}
	if dv := p.DocumentVerification; dv != nil {
		extra["decision"] = map[string]any{
			"name":  dv.Decision.Name,
			"value": dv.Decision.Value,
		}
		extra["reason_codes"] = dv.ReasonCodes
		extra["document_type"] = dv.DocumentType.Type
	}
	if p.CustomerProfile != nil {
		extra["customer_user_id"] = p.CustomerProfile.CustomerUserID
	}
	return extra
}
