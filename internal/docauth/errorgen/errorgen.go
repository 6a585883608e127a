// Package errorgen translates raw vendor alert payloads into the stable
// internal error vocabulary surfaced to users. It is a pure function of the
// adapter's raw payload: no side effects beyond the optional warn notifier,
// and deterministic for identical input.
package errorgen

// Side identifies a document side referenced by an alert region.
type Side string

const (
	SideFront Side = "front"
	SideBack  Side = "back"
)

// Group is the key under which user-facing errors are reported.
type Group string

const (
	GroupID      Group = "id"
	GroupFront   Group = "front"
	GroupBack    Group = "back"
	GroupSelfie  Group = "selfie"
	GroupGeneral Group = "general"
)

// Stable internal error keys. These are the only values that ever reach the
// user-facing layer; vendor alert names never do.
const (
	ErrBarcodeContentCheck    = "barcode_content_check"
	ErrBarcodeReadCheck       = "barcode_read_check"
	ErrBirthDateChecks        = "birth_date_checks"
	ErrControlNumberCheck     = "control_number_check"
	ErrDocCrosscheck          = "doc_crosscheck"
	ErrDocNumberChecks        = "doc_number_checks"
	ErrDocTypeCheck           = "doc_type_check"
	ErrDocumentExpiredCheck   = "document_expired_check"
	ErrExpirationChecks       = "expiration_checks"
	ErrFullNameCheck          = "full_name_check"
	ErrGeneralError           = "general_error"
	ErrIDNotRecognized        = "id_not_recognized"
	ErrIDNotVerified          = "id_not_verified"
	ErrIssueDateChecks        = "issue_date_checks"
	ErrMultipleBackIDFailures = "multiple_back_id_failures"
	ErrMultipleFrontIDFails   = "multiple_front_id_failures"
	ErrRefControlNumberCheck  = "ref_control_number_check"
	ErrSexCheck               = "sex_check"
	ErrVisibleColorCheck      = "visible_color_check"
	ErrVisiblePhotoCheck      = "visible_photo_check"
	ErrDPILow                 = "dpi_low"
	ErrSharpnessLow           = "sharpness_low"
	ErrGlareLow               = "glare_low"
	ErrSelfieFailure          = "selfie_failure"
	ErrSelfieNotLiveOrQuality = "selfie_not_live_or_poor_quality"
)

// alertMessage maps a vendor alert name to the group it reports under and the
// internal error key it translates to.
type alertMessage struct {
	group Group
	key   string
}

// alertMessages is the alert dictionary. Alerts not listed here are unknown:
// counted, reported through the warn notifier, and excluded from translation.
var alertMessages = map[string]alertMessage{
	"1D Control Number Valid":         {GroupBack, ErrRefControlNumberCheck},
	"2D Barcode Content":              {GroupBack, ErrBarcodeContentCheck},
	"2D Barcode Read":                 {GroupBack, ErrBarcodeReadCheck},
	"Birth Date Crosscheck":           {GroupID, ErrBirthDateChecks},
	"Birth Date Valid":                {GroupID, ErrBirthDateChecks},
	"Control Number Crosscheck":       {GroupBack, ErrControlNumberCheck},
	"Document Classification":         {GroupID, ErrIDNotRecognized},
	"Document Crosscheck Aggregation": {GroupID, ErrDocCrosscheck},
	"Document Expired":                {GroupID, ErrDocumentExpiredCheck},
	"Document Number Crosscheck":      {GroupID, ErrDocNumberChecks},
	"Expiration Date Crosscheck":      {GroupID, ErrExpirationChecks},
	"Expiration Date Valid":           {GroupID, ErrExpirationChecks},
	"Full Name Crosscheck":            {GroupID, ErrFullNameCheck},
	"Issue Date Crosscheck":           {GroupID, ErrIssueDateChecks},
	"Issue Date Valid":                {GroupID, ErrIssueDateChecks},
	"Layout Valid":                    {GroupID, ErrIDNotVerified},
	"Near-Infrared Response":          {GroupID, ErrIDNotVerified},
	"Photo Printing":                  {GroupFront, ErrVisiblePhotoCheck},
	"Physical Document Presence":      {GroupID, ErrIDNotVerified},
	"Sex Crosscheck":                  {GroupID, ErrSexCheck},
	"Visible Color Response":          {GroupID, ErrVisibleColorCheck},
	"Visible Pattern":                 {GroupID, ErrIDNotVerified},
	"Visible Photo Characteristics":   {GroupFront, ErrVisiblePhotoCheck},
}

// RawAlert is one per-check record from the vendor payload.
type RawAlert struct {
	Key        string
	Result     string // "Passed", "Failed", "Attention", ...
	RegionRefs []int
}

// Region resolves an alert's region reference to a named region on one image.
type Region struct {
	ID       int
	Key      string
	ImageRef int
}

// Image carries the document side and quality metrics for one captured image.
type Image struct {
	ID                   int
	Side                 int // 0 = front, 1 = back
	HorizontalResolution int
	VerticalResolution   int
	SharpnessMetric      *int
	GlareMetric          *int
}

// ProcessedAlert is a raw alert with its region resolved to a side descriptor.
type ProcessedAlert struct {
	Name   string
	Result string
	Region string
	Side   Side
}

// ProcessedAlerts partitions alerts into passed and failed by result code.
type ProcessedAlerts struct {
	Passed []ProcessedAlert
	Failed []ProcessedAlert
}

const passedResultName = "Passed"

// Process partitions raw alerts by result code and attaches {region, side}
// descriptors resolved through the regions and images indexes.
func Process(alerts []RawAlert, regions []Region, images []Image) ProcessedAlerts {
	regionsByID := make(map[int]Region, len(regions))
	for _, r := range regions {
		regionsByID[r.ID] = r
	}
	sidesByImageID := make(map[int]Side, len(images))
	for _, img := range images {
		sidesByImageID[img.ID] = sideFromIndex(img.Side)
	}

	var out ProcessedAlerts
	for _, alert := range alerts {
		processed := ProcessedAlert{Name: alert.Key, Result: alert.Result}
		for _, ref := range alert.RegionRefs {
			region, ok := regionsByID[ref]
			if !ok {
				continue
			}
			processed.Region = region.Key
			if side, ok := sidesByImageID[region.ImageRef]; ok {
				processed.Side = side
			}
			break
		}

		if alert.Result == passedResultName {
			out.Passed = append(out.Passed, processed)
		} else {
			out.Failed = append(out.Failed, processed)
		}
	}
	return out
}

func sideFromIndex(idx int) Side {
	if idx == 1 {
		return SideBack
	}
	return SideFront
}

// Config tunes image-metric thresholds and the unknown-alert notifier.
type Config struct {
	DPIThreshold       int
	SharpnessThreshold int
	GlareThreshold     int

	// WarnNotifier is invoked when the payload contains alerts outside the
	// dictionary or a failure escapes without a translatable error. The
	// details map never contains PII.
	WarnNotifier func(message string, details map[string]any)
}

func (c Config) dpiThreshold() int {
	if c.DPIThreshold > 0 {
		return c.DPIThreshold
	}
	return 290
}

func (c Config) sharpnessThreshold() int {
	if c.SharpnessThreshold > 0 {
		return c.SharpnessThreshold
	}
	return 40
}

func (c Config) glareThreshold() int {
	if c.GlareThreshold > 0 {
		return c.GlareThreshold
	}
	return 40
}

func (c Config) warn(message string, details map[string]any) {
	if c.WarnNotifier != nil {
		c.WarnNotifier(message, details)
	}
}

// Input is everything Generate needs from the adapter's raw payload.
type Input struct {
	DocAuthResult     string // overall result name: "Passed", "Failed", "Attention", ...
	Alerts            ProcessedAlerts
	AlertFailureCount int
	Images            []Image

	LivenessEnabled    bool
	PortraitMatchOK    bool
	PortraitMatchError string
}

// Generate maps a failed verification payload onto user-facing error groups.
//
// Precedence follows the check order: image quality first (a bad capture
// explains everything downstream), then translated document alerts, then the
// selfie, then a catch-all. Callers invoke Generate only when the overall
// verification already failed.
func Generate(in Input, cfg Config) map[Group][]string {
	unknownFailures := scanUnknownAlerts(in, cfg)

	if metricErrors := imageMetricErrors(in.Images, cfg); len(metricErrors) > 0 {
		return metricErrors
	}

	knownFailures := in.AlertFailureCount - unknownFailures
	if docErrors := docAuthErrors(in, knownFailures); len(docErrors) > 0 {
		return docErrors
	}

	if in.AlertFailureCount < 1 {
		if selfieErrors := selfieError(in); len(selfieErrors) > 0 {
			return selfieErrors
		}
	}

	// A failure escaped without a translatable error; should not happen.
	cfg.warn("doc auth failure escaped without useful errors", map[string]any{
		"doc_auth_result": in.DocAuthResult,
	})
	return map[Group][]string{GroupID: {ErrGeneralError}}
}

// scanUnknownAlerts counts failed alerts outside the dictionary and reports
// them once through the warn notifier.
func scanUnknownAlerts(in Input, cfg Config) int {
	var unknown []string
	unknownFailures := 0

	all := make([]ProcessedAlert, 0, len(in.Alerts.Failed)+len(in.Alerts.Passed))
	all = append(all, in.Alerts.Failed...)
	all = append(all, in.Alerts.Passed...)

	for _, alert := range all {
		if _, ok := alertMessages[alert.Name]; ok {
			continue
		}
		unknown = append(unknown, alert.Name)
		if alert.Result != passedResultName {
			unknownFailures++
		}
	}

	if len(unknown) > 0 {
		cfg.warn("vendor responded with alert names outside the dictionary", map[string]any{
			"unknown_alerts": unknown,
		})
	}

	return unknownFailures
}

// imageMetricErrors checks capture quality with fixed precedence:
// resolution, then sharpness, then glare. The first tier with a failure wins.
func imageMetricErrors(images []Image, cfg Config) map[Group][]string {
	var dpiSides, sharpSides, glareSides []Side

	for _, img := range images {
		side := sideFromIndex(img.Side)
		if img.HorizontalResolution < cfg.dpiThreshold() || img.VerticalResolution < cfg.dpiThreshold() {
			dpiSides = append(dpiSides, side)
		}
		if img.SharpnessMetric != nil && *img.SharpnessMetric < cfg.sharpnessThreshold() {
			sharpSides = append(sharpSides, side)
		}
		if img.GlareMetric != nil && *img.GlareMetric < cfg.glareThreshold() {
			glareSides = append(glareSides, side)
		}
	}

	switch {
	case len(dpiSides) > 0:
		return metricResult(ErrDPILow, dpiSides)
	case len(sharpSides) > 0:
		return metricResult(ErrSharpnessLow, sharpSides)
	case len(glareSides) > 0:
		return metricResult(ErrGlareLow, glareSides)
	}
	return nil
}

func metricResult(key string, sides []Side) map[Group][]string {
	out := map[Group][]string{GroupGeneral: {key}}
	for _, side := range sides {
		out[Group(side)] = []string{key}
	}
	return out
}

// docAuthErrors translates failed alerts through the dictionary. A single
// known failure surfaces its specific error; multiple failures consolidate
// into one generic error so the user is not shown a wall of checks.
func docAuthErrors(in Input, knownFailures int) map[Group][]string {
	if knownFailures < 1 {
		return nil
	}

	// group -> unique error keys, insertion-ordered for determinism
	grouped := make(map[Group][]string)
	seen := make(map[Group]map[string]bool)
	if in.DocAuthResult != passedResultName {
		for _, alert := range in.Alerts.Failed {
			msg, ok := alertMessages[alert.Name]
			if !ok {
				continue
			}
			group := msg.group
			if alert.Side != "" {
				group = Group(alert.Side)
			}
			if seen[group] == nil {
				seen[group] = make(map[string]bool)
			}
			if !seen[group][msg.key] {
				seen[group][msg.key] = true
				grouped[group] = append(grouped[group], msg.key)
			}
		}
	}

	if len(grouped) == 0 {
		return nil
	}

	if knownFailures == 1 {
		for group, keys := range grouped {
			return map[Group][]string{group: {keys[len(keys)-1]}}
		}
	}

	return consolidate(grouped)
}

// consolidate simplifies multiple failures into a single user-facing error.
func consolidate(grouped map[Group][]string) map[Group][]string {
	groups := make([]Group, 0, len(grouped))
	for g := range grouped {
		groups = append(groups, g)
	}
	if len(groups) == 1 {
		switch groups[0] {
		case GroupFront:
			return map[Group][]string{GroupFront: {ErrMultipleFrontIDFails}}
		case GroupBack:
			return map[Group][]string{GroupBack: {ErrMultipleBackIDFailures}}
		default:
			return map[Group][]string{GroupID: {ErrGeneralError}}
		}
	}
	return map[Group][]string{GroupID: {ErrGeneralError}}
}

// selfieError reports facial-match failures when liveness checking is on.
func selfieError(in Input) map[Group][]string {
	if !in.LivenessEnabled || in.PortraitMatchOK {
		return nil
	}

	if poorQualityError(in.PortraitMatchError) {
		return map[Group][]string{GroupSelfie: {ErrSelfieNotLiveOrQuality}}
	}

	// Generic facial-match failure: ask for the whole capture again.
	return map[Group][]string{
		GroupGeneral: {ErrSelfieFailure},
		GroupFront:   {ErrMultipleFrontIDFails},
		GroupBack:    {ErrMultipleBackIDFailures},
		GroupSelfie:  {ErrSelfieFailure},
	}
}

func poorQualityError(message string) bool {
	switch message {
	case "Liveness: PoorQuality", "Liveness: NotLive":
		return true
	}
	return false
}
