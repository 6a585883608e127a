package errorgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func goodImages() []Image {
	return []Image{
		{ID: 1, Side: 0, HorizontalResolution: 600, VerticalResolution: 600, SharpnessMetric: intPtr(80), GlareMetric: intPtr(80)},
		{ID: 2, Side: 1, HorizontalResolution: 600, VerticalResolution: 600, SharpnessMetric: intPtr(80), GlareMetric: intPtr(80)},
	}
}

func TestProcess_PartitionsAndResolvesSides(t *testing.T) {
	alerts := []RawAlert{
		{Key: "2D Barcode Read", Result: "Attention", RegionRefs: []int{10}},
		{Key: "Birth Date Valid", Result: "Passed", RegionRefs: []int{11}},
		{Key: "Layout Valid", Result: "Failed"},
	}
	regions := []Region{
		{ID: 10, Key: "Barcodes.PDF417", ImageRef: 2},
		{ID: 11, Key: "DataVisual.BirthDate", ImageRef: 1},
	}

	processed := Process(alerts, regions, goodImages())

	require.Len(t, processed.Failed, 2)
	require.Len(t, processed.Passed, 1)

	assert.Equal(t, "2D Barcode Read", processed.Failed[0].Name)
	assert.Equal(t, SideBack, processed.Failed[0].Side)
	assert.Equal(t, "Barcodes.PDF417", processed.Failed[0].Region)

	assert.Equal(t, "Layout Valid", processed.Failed[1].Name)
	assert.Empty(t, processed.Failed[1].Side)

	assert.Equal(t, "Birth Date Valid", processed.Passed[0].Name)
	assert.Equal(t, SideFront, processed.Passed[0].Side)
}

func TestGenerate_SingleKnownFailure(t *testing.T) {
	in := Input{
		DocAuthResult: "Failed",
		Alerts: ProcessedAlerts{
			Failed: []ProcessedAlert{{Name: "Birth Date Valid", Result: "Failed"}},
		},
		AlertFailureCount: 1,
		Images:            goodImages(),
	}

	errs := Generate(in, Config{})

	assert.Equal(t, map[Group][]string{GroupID: {ErrBirthDateChecks}}, errs)
}

func TestGenerate_MultipleFailuresConsolidate(t *testing.T) {
	in := Input{
		DocAuthResult: "Failed",
		Alerts: ProcessedAlerts{
			Failed: []ProcessedAlert{
				{Name: "Birth Date Valid", Result: "Failed"},
				{Name: "Expiration Date Valid", Result: "Failed"},
			},
		},
		AlertFailureCount: 2,
		Images:            goodImages(),
	}

	errs := Generate(in, Config{})

	assert.Equal(t, map[Group][]string{GroupID: {ErrGeneralError}}, errs)
}

func TestGenerate_MultipleFrontFailures(t *testing.T) {
	in := Input{
		DocAuthResult: "Failed",
		Alerts: ProcessedAlerts{
			Failed: []ProcessedAlert{
				{Name: "Photo Printing", Result: "Failed", Side: SideFront},
				{Name: "Visible Photo Characteristics", Result: "Failed", Side: SideFront},
			},
		},
		AlertFailureCount: 2,
		Images:            goodImages(),
	}

	errs := Generate(in, Config{})

	assert.Equal(t, map[Group][]string{GroupFront: {ErrMultipleFrontIDFails}}, errs)
}

func TestGenerate_ImageMetricsPrecedeDocAlerts(t *testing.T) {
	images := goodImages()
	images[0].HorizontalResolution = 100

	in := Input{
		DocAuthResult: "Failed",
		Alerts: ProcessedAlerts{
			Failed: []ProcessedAlert{{Name: "Birth Date Valid", Result: "Failed"}},
		},
		AlertFailureCount: 1,
		Images:            images,
	}

	errs := Generate(in, Config{})

	assert.Equal(t, map[Group][]string{
		GroupGeneral: {ErrDPILow},
		GroupFront:   {ErrDPILow},
	}, errs)
}

func TestGenerate_MetricPrecedenceDPIThenSharpnessThenGlare(t *testing.T) {
	t.Run("sharpness beats glare", func(t *testing.T) {
		images := goodImages()
		images[1].SharpnessMetric = intPtr(10)
		images[0].GlareMetric = intPtr(10)

		errs := Generate(Input{DocAuthResult: "Failed", AlertFailureCount: 1, Images: images}, Config{})

		assert.Equal(t, map[Group][]string{
			GroupGeneral: {ErrSharpnessLow},
			GroupBack:    {ErrSharpnessLow},
		}, errs)
	})

	t.Run("glare alone", func(t *testing.T) {
		images := goodImages()
		images[0].GlareMetric = intPtr(10)

		errs := Generate(Input{DocAuthResult: "Failed", AlertFailureCount: 1, Images: images}, Config{})

		assert.Equal(t, map[Group][]string{
			GroupGeneral: {ErrGlareLow},
			GroupFront:   {ErrGlareLow},
		}, errs)
	})

	t.Run("missing metric is not a failure", func(t *testing.T) {
		images := goodImages()
		images[0].SharpnessMetric = nil
		images[0].GlareMetric = nil

		in := Input{
			DocAuthResult: "Failed",
			Alerts: ProcessedAlerts{
				Failed: []ProcessedAlert{{Name: "Layout Valid", Result: "Failed"}},
			},
			AlertFailureCount: 1,
			Images:            images,
		}

		errs := Generate(in, Config{})

		assert.Equal(t, map[Group][]string{GroupID: {ErrIDNotVerified}}, errs)
	})
}

func TestGenerate_UnknownAlertsWarnAndDoNotTranslate(t *testing.T) {
	var warned string
	var details map[string]any
	cfg := Config{WarnNotifier: func(msg string, d map[string]any) {
		warned = msg
		details = d
	}}

	in := Input{
		DocAuthResult: "Failed",
		Alerts: ProcessedAlerts{
			Failed: []ProcessedAlert{
				{Name: "Some Future Check", Result: "Failed"},
				{Name: "Birth Date Valid", Result: "Failed"},
			},
		},
		AlertFailureCount: 2,
		Images:            goodImages(),
	}

	errs := Generate(in, cfg)

	// Only one known failure remains, so the specific error surfaces.
	assert.Equal(t, map[Group][]string{GroupID: {ErrBirthDateChecks}}, errs)
	assert.NotEmpty(t, warned)
	assert.Equal(t, []string{"Some Future Check"}, details["unknown_alerts"])
}

func TestGenerate_SelfieFailure(t *testing.T) {
	t.Run("poor quality", func(t *testing.T) {
		in := Input{
			DocAuthResult:      "Passed",
			Images:             goodImages(),
			LivenessEnabled:    true,
			PortraitMatchOK:    false,
			PortraitMatchError: "Liveness: PoorQuality",
		}

		errs := Generate(in, Config{})

		assert.Equal(t, map[Group][]string{GroupSelfie: {ErrSelfieNotLiveOrQuality}}, errs)
	})

	t.Run("generic mismatch asks for full recapture", func(t *testing.T) {
		in := Input{
			DocAuthResult:   "Passed",
			Images:          goodImages(),
			LivenessEnabled: true,
			PortraitMatchOK: false,
		}

		errs := Generate(in, Config{})

		assert.Equal(t, []string{ErrSelfieFailure}, errs[GroupSelfie])
		assert.Equal(t, []string{ErrSelfieFailure}, errs[GroupGeneral])
		assert.Equal(t, []string{ErrMultipleFrontIDFails}, errs[GroupFront])
		assert.Equal(t, []string{ErrMultipleBackIDFailures}, errs[GroupBack])
	})
}

func TestGenerate_NoTranslatableErrorFallsBack(t *testing.T) {
	var warned string
	cfg := Config{WarnNotifier: func(msg string, _ map[string]any) { warned = msg }}

	in := Input{
		DocAuthResult: "Failed",
		Alerts: ProcessedAlerts{
			Failed: []ProcessedAlert{{Name: "Some Future Check", Result: "Failed"}},
		},
		AlertFailureCount: 1,
		Images:            goodImages(),
	}

	errs := Generate(in, cfg)

	assert.Equal(t, map[Group][]string{GroupID: {ErrGeneralError}}, errs)
	assert.NotEmpty(t, warned)
}
