package socure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const acceptedBody = `{
  "referenceId": "ref-abc",
  "documentVerification": {
    "decision": {"name": "lenient", "value": "accept"},
    "reasonCodes": ["I831"],
    "documentType": {"type": "Drivers License", "country": "USA", "state": "NY"},
    "documentData": {
      "firstName": "Dwayne",
      "surName": "Denver",
      "documentNumber": "GOODNUM0",
      "dob": "1986-10-13",
      "issueDate": "2020-01-01",
      "expirationDate": "2031-01-01",
      "parsedAddress": {
        "physicalAddress": "123 Example Street",
        "physicalAddress2": "Apt 4",
        "city": "New York City",
        "state": "NY",
        "zip": "10001"
      }
    }
  },
  "customerProfile": {"customerUserId": "user-1"}
}`

func TestParseResult_Accept(t *testing.T) {
	resp := ParseResult([]byte(acceptedBody))

	assert.True(t, resp.Success)
	assert.Empty(t, resp.Errors)
	assert.Empty(t, resp.Exception)

	require.NotNil(t, resp.PII)
	assert.Equal(t, "Dwayne", resp.PII.FirstName)
	assert.Equal(t, "Denver", resp.PII.LastName)
	assert.Equal(t, "123 Example Street", resp.PII.Address1)
	assert.Equal(t, "Apt 4", resp.PII.Address2)
	assert.Equal(t, "New York City", resp.PII.City)
	assert.Equal(t, "NY", resp.PII.State)
	assert.Equal(t, "10001", resp.PII.Zipcode)
	assert.Equal(t, "GOODNUM0", resp.PII.StateIDNumber)
	assert.Equal(t, "Drivers License", resp.PII.IDDocType)
	assert.Equal(t, "NY", resp.PII.StateIDJurisdiction)
	assert.Equal(t, "USA", resp.PII.IssuingCountryCode)
	require.NotNil(t, resp.PII.DOB)
	assert.Equal(t, time.Date(1986, time.October, 13, 0, 0, 0, 0, time.UTC), *resp.PII.DOB)

	assert.Equal(t, "ref-abc", resp.Extra["reference_id"])
}

func TestParseResult_Reject(t *testing.T) {
	body := `{
	  "referenceId": "ref-abc",
	  "documentVerification": {
	    "decision": {"name": "lenient", "value": "reject"},
	    "reasonCodes": ["R001"]
	  }
	}`

	resp := ParseResult([]byte(body))

	assert.False(t, resp.Success)
	assert.Nil(t, resp.PII)
	assert.Equal(t, map[string]any{
		"socure": map[string]any{"reason_codes": []string{"R001"}},
	}, resp.Errors)
}

func TestParseResult_AnyNonAcceptDecisionFails(t *testing.T) {
	for _, value := range []string{"refer", "Accept", "ACCEPT", ""} {
		body := `{"documentVerification": {"decision": {"value": "` + value + `"}}}`

		resp := ParseResult([]byte(body))

		assert.False(t, resp.Success, "decision %q must not verify", value)
		assert.Nil(t, resp.PII)
		require.Contains(t, resp.Errors, "socure")
	}
}

func TestParseResult_MissingReasonCodesYieldEmptySlice(t *testing.T) {
	body := `{"documentVerification": {"decision": {"value": "reject"}}}`

	resp := ParseResult([]byte(body))

	socureErrs, ok := resp.Errors["socure"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{}, socureErrs["reason_codes"])
}

func TestParseResult_MalformedBodyIsNetworkFailure(t *testing.T) {
	resp := ParseResult([]byte("<html>gateway error</html>"))

	assert.False(t, resp.Success)
	assert.Equal(t, map[string]any{"network": true}, resp.Errors)
	assert.NotEmpty(t, resp.Exception)
	assert.Nil(t, resp.PII)
}

func TestParseResult_MissingDocumentVerification(t *testing.T) {
	resp := ParseResult([]byte(`{"referenceId": "ref-abc", "status": "Error", "msg": "module failed"}`))

	assert.False(t, resp.Success)
	assert.Equal(t, map[string]any{"network": true}, resp.Errors)
	assert.NotEmpty(t, resp.Exception)
	assert.Equal(t, "Error", resp.Extra["vendor_status"])
}

func TestParseResult_ExtraNeverCarriesDocumentFields(t *testing.T) {
	resp := ParseResult([]byte(acceptedBody))

	for _, forbidden := range []string{"Dwayne", "Denver", "GOODNUM0", "1986-10-13", "123 Example Street"} {
		for _, v := range resp.Extra {
			assert.NotContains(t, toString(v), forbidden)
		}
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
