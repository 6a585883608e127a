package acuant

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"idv-gateway/internal/docauth"
	"idv-gateway/internal/docauth/errorgen"
)

// barcodeReadAlertKey is the sole Attention alert tolerated on an overall
// Attention result. It is a literal wire contract with the vendor; if Acuant
// renames the alert this predicate silently stops matching, so the key is
// pinned by tests.
const barcodeReadAlertKey = "2D Barcode Read"

// getResultsPayload mirrors the AssureID get-results JSON document.
type getResultsPayload struct {
	Result  int            `json:"Result"`
	Alerts  []alertPayload `json:"Alerts"`
	Regions []struct {
		ID             int    `json:"Id"`
		Key            string `json:"Key"`
		ImageReference int    `json:"ImageReference"`
	} `json:"Regions"`
	Images []struct {
		ID                   int    `json:"Id"`
		Side                 int    `json:"Side"`
		HorizontalResolution int    `json:"HorizontalResolution"`
		VerticalResolution   int    `json:"VerticalResolution"`
		SharpnessMetric      *int   `json:"SharpnessMetric"`
		GlareMetric          *int   `json:"GlareMetric"`
		MimeType             string `json:"MimeType"`
	} `json:"Images"`
	Fields []struct {
		Name  string          `json:"Name"`
		Value json.RawMessage `json:"Value"`
	} `json:"Fields"`
	InstanceID string `json:"InstanceId"`
}

type alertPayload struct {
	Key              string `json:"Key"`
	Result           int    `json:"Result"`
	Disposition      string `json:"Disposition"`
	RegionReferences []int  `json:"RegionReferences"`
}

// ResponseConfig tunes result interpretation.
type ResponseConfig struct {
	LivenessEnabled bool
	ErrorGen        errorgen.Config
}

// ParseResults normalizes an AssureID get-results payload.
//
// Vendor-reported rejections become Success=false with translated errors; a
// payload that cannot be decoded at all is an error for the caller to record
// as an exception.
func ParseResults(body []byte, cfg ResponseConfig) (*docauth.Response, error) {
	var payload getResultsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, docauth.NewVendorError(docauth.ErrorBadData, docauth.VendorAcuant,
			"malformed results payload", err)
	}

	overall := ResultCodeFromCode(payload.Result)
	alerts, regions, images := payload.errorgenInputs()
	processed := errorgen.Process(alerts, regions, images)

	success, withBarcode := successFrom(overall, payload.Alerts)

	resp := &docauth.Response{
		Success:              success,
		AttentionWithBarcode: withBarcode,
		Extra:                payload.extra(overall, processed),
	}

	if success {
		resp.PII = payload.pii()
		return resp, nil
	}

	generated := errorgen.Generate(errorgen.Input{
		DocAuthResult:     overall.Name,
		Alerts:            processed,
		AlertFailureCount: len(processed.Failed),
		Images:            images,
		LivenessEnabled:   cfg.LivenessEnabled,
		PortraitMatchOK:   true,
	}, cfg.ErrorGen)

	resp.Errors = make(map[string]any, len(generated))
	for group, keys := range generated {
		resp.Errors[string(group)] = keys
	}
	return resp, nil
}

// successFrom applies the result predicate: Passed succeeds outright;
// Attention succeeds only when every non-passed alert is exactly the
// barcode-read Attention alert.
func successFrom(overall ResultCode, alerts []alertPayload) (success, withBarcode bool) {
	switch overall.Code {
	case ResultPassed.Code:
		return true, false
	case ResultAttention.Code:
		sawBarcode := false
		for _, alert := range alerts {
			switch alert.Result {
			case ResultPassed.Code:
			case ResultAttention.Code:
				if alert.Key != barcodeReadAlertKey {
					return false, false
				}
				sawBarcode = true
			default:
				return false, false
			}
		}
		return sawBarcode, sawBarcode
	default:
		return false, false
	}
}

func (p *getResultsPayload) errorgenInputs() ([]errorgen.RawAlert, []errorgen.Region, []errorgen.Image) {
	alerts := make([]errorgen.RawAlert, 0, len(p.Alerts))
	for _, a := range p.Alerts {
		alerts = append(alerts, errorgen.RawAlert{
			Key:        a.Key,
			Result:     ResultCodeFromCode(a.Result).Name,
			RegionRefs: a.RegionReferences,
		})
	}

	regions := make([]errorgen.Region, 0, len(p.Regions))
	for _, r := range p.Regions {
		regions = append(regions, errorgen.Region{ID: r.ID, Key: r.Key, ImageRef: r.ImageReference})
	}

	images := make([]errorgen.Image, 0, len(p.Images))
	for _, img := range p.Images {
		images = append(images, errorgen.Image{
			ID:                   img.ID,
			Side:                 img.Side,
			HorizontalResolution: img.HorizontalResolution,
			VerticalResolution:   img.VerticalResolution,
			SharpnessMetric:      img.SharpnessMetric,
			GlareMetric:          img.GlareMetric,
		})
	}

	return alerts, regions, images
}

// extra builds the diagnostics map. It carries result codes, alert outcomes
// and image metrics only; document fields never land here.
func (p *getResultsPayload) extra(overall ResultCode, processed errorgen.ProcessedAlerts) map[string]any {
	alertSummaries := func(alerts []errorgen.ProcessedAlert) []map[string]any {
		out := make([]map[string]any, 0, len(alerts))
		for _, a := range alerts {
			entry := map[string]any{"name": a.Name, "result": a.Result}
			if a.Region != "" {
				entry["region"] = a.Region
			}
			if a.Side != "" {
				entry["side"] = string(a.Side)
			}
			out = append(out, entry)
		}
		return out
	}

	metrics := make(map[string]map[string]any, len(p.Images))
	for _, img := range p.Images {
		side := "front"
		if img.Side == 1 {
			side = "back"
		}
		m := map[string]any{
			"horizontal_resolution": img.HorizontalResolution,
			"vertical_resolution":   img.VerticalResolution,
		}
		if img.SharpnessMetric != nil {
			m["sharpness"] = *img.SharpnessMetric
		}
		if img.GlareMetric != nil {
			m["glare"] = *img.GlareMetric
		}
		metrics[side] = m
	}

	return map[string]any{
		"vendor":              string(docauth.VendorAcuant),
		"doc_auth_result":     overall.Name,
		"billed":              overall.Billed,
		"alert_failure_count": len(processed.Failed),
		"processed_alerts": map[string]any{
			"passed": alertSummaries(processed.Passed),
			"failed": alertSummaries(processed.Failed),
		},
		"image_metrics": metrics,
		"reference":     p.InstanceID,
	}
}

// Document field names as they appear in AssureID results.
var fieldMapping = map[string]func(*docauth.StateIDPII, string){
	"First Name":          func(p *docauth.StateIDPII, v string) { p.FirstName = v },
	"Middle Name":         func(p *docauth.StateIDPII, v string) { p.MiddleName = v },
	"Surname":             func(p *docauth.StateIDPII, v string) { p.LastName = v },
	"Address Line 1":      func(p *docauth.StateIDPII, v string) { p.Address1 = v },
	"Address Line 2":      func(p *docauth.StateIDPII, v string) { p.Address2 = v },
	"Address City":        func(p *docauth.StateIDPII, v string) { p.City = v },
	"Address State":       func(p *docauth.StateIDPII, v string) { p.State = v },
	"Address Postal Code": func(p *docauth.StateIDPII, v string) { p.Zipcode = v },
	"Document Number":     func(p *docauth.StateIDPII, v string) { p.StateIDNumber = v },
	"Document Class Name": func(p *docauth.StateIDPII, v string) { p.IDDocType = v },
	"Issuing State Code":  func(p *docauth.StateIDPII, v string) { p.StateIDJurisdiction = v },
	"Country Code":        func(p *docauth.StateIDPII, v string) { p.IssuingCountryCode = v },
	"Birth Date":          func(p *docauth.StateIDPII, v string) { p.DOB = parseFieldDate(v) },
	"Issue Date":          func(p *docauth.StateIDPII, v string) { p.StateIDIssued = parseFieldDate(v) },
	"Expiration Date":     func(p *docauth.StateIDPII, v string) { p.StateIDExpiration = parseFieldDate(v) },
}

func (p *getResultsPayload) pii() *docauth.StateIDPII {
	pii := &docauth.StateIDPII{}
	for _, field := range p.Fields {
		setter, ok := fieldMapping[field.Name]
		if !ok {
			continue
		}
		var value string
		if err := json.Unmarshal(field.Value, &value); err != nil || value == "" {
			continue
		}
		setter(pii, value)
	}
	return pii
}

// dotNetDateRe matches the legacy /Date(milliseconds)/ encoding AssureID uses
// for document dates.
var dotNetDateRe = regexp.MustCompile(`^/Date\((-?\d+)(?:[+-]\d{4})?\)/$`)

// parseFieldDate handles both the /Date(ms)/ encoding and plain date strings.
func parseFieldDate(value string) *time.Time {
	if m := dotNetDateRe.FindStringSubmatch(value); m != nil {
		ms, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil
		}
		t := time.UnixMilli(ms).UTC()
		return &t
	}
	return docauth.ParseDate(value, "2006-01-02", "2006-01-02T15:04:05")
}

// instancePayload is the create-instance response.
type instancePayload struct {
	InstanceID string `json:"InstanceId"`
}

func parseInstanceID(body []byte) (string, error) {
	// Some deployments return a bare JSON string instead of an object.
	var bare string
	if err := json.Unmarshal(body, &bare); err == nil && bare != "" {
		return bare, nil
	}

	var payload instancePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", docauth.NewVendorError(docauth.ErrorBadData, docauth.VendorAcuant,
			"malformed instance payload", err)
	}
	if payload.InstanceID == "" {
		return "", docauth.NewVendorError(docauth.ErrorBadData, docauth.VendorAcuant,
			"instance payload missing id", nil)
	}
	return payload.InstanceID, nil
}

// unexpectedStatus builds the error for a non-200 vendor reply.
func unexpectedStatus(status int) error {
	category := docauth.ErrorVendorOutage
	if status == 401 || status == 403 {
		category = docauth.ErrorAuthentication
	}
	return docauth.NewVendorError(category, docauth.VendorAcuant,
		fmt.Sprintf("unexpected status code %d", status), nil)
}
