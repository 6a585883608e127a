package aamva

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idv-gateway/internal/docauth"
)

func testApplicant() *docauth.Applicant {
	return &docauth.Applicant{
		FirstName:           "Testy",
		LastName:            "McTesterson",
		DOB:                 "1986-10-13",
		Address1:            "123 Street St",
		City:                "Testville",
		State:               "NY",
		Zipcode:             "11111",
		StateIDNumber:       "123456789",
		StateIDJurisdiction: "NY",
		IDDocType:           "drivers_license",
	}
}

func TestBuildVerificationRequest(t *testing.T) {
	body, err := BuildVerificationRequest(testApplicant(), "tx-1", "token-1", false)

	require.NoError(t, err)
	xml := string(body)

	assert.Contains(t, xml, "<aa:MessageDestinationId>NY</aa:MessageDestinationId>")
	assert.Contains(t, xml, "<aa:TransactionLocatorId>tx-1</aa:TransactionLocatorId>")
	assert.Contains(t, xml, "<nc:IdentificationID>123456789</nc:IdentificationID>")
	assert.Contains(t, xml, "<aa:PersonBirthDate>1986-10-13</aa:PersonBirthDate>")
	assert.Contains(t, xml, "<nc:PersonGivenName>Testy</nc:PersonGivenName>")
	assert.Contains(t, xml, "<nc:PersonSurName>McTesterson</nc:PersonSurName>")
	assert.Contains(t, xml, "<aa:DocumentCategoryCode>1</aa:DocumentCategoryCode>")
	assert.Contains(t, xml, "<aa:SecurityToken")
	assert.Contains(t, xml, "token-1")
}

func TestBuildVerificationRequest_EscapesUserData(t *testing.T) {
	applicant := testApplicant()
	applicant.FirstName = `Testy<script>`

	body, err := BuildVerificationRequest(applicant, "tx-1", "token-1", false)

	require.NoError(t, err)
	assert.NotContains(t, string(body), "<script>")
	assert.Contains(t, string(body), "Testy&lt;script&gt;")
}

func TestBuildVerificationRequest_CertModeJurisdiction(t *testing.T) {
	body, err := BuildVerificationRequest(testApplicant(), "tx-1", "token-1", true)

	require.NoError(t, err)
	assert.Contains(t, string(body), "<aa:MessageDestinationId>P6</aa:MessageDestinationId>")
}

func TestBuildVerificationRequest_SouthCarolinaPadsIDNumber(t *testing.T) {
	applicant := testApplicant()
	applicant.StateIDJurisdiction = "SC"
	applicant.StateIDNumber = "12345"

	body, err := BuildVerificationRequest(applicant, "tx-1", "token-1", false)

	require.NoError(t, err)
	assert.Contains(t, string(body), "<nc:IdentificationID>00012345</nc:IdentificationID>")
}

func TestBuildVerificationRequest_SecondAddressLine(t *testing.T) {
	applicant := testApplicant()
	applicant.Address2 = "Apt 4"

	body, err := BuildVerificationRequest(applicant, "tx-1", "token-1", false)

	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(body), "<nc:AddressDeliveryPointText>"))
	assert.Contains(t, string(body), "<nc:AddressDeliveryPointText>Apt 4</nc:AddressDeliveryPointText>")
}

func TestBuildVerificationRequest_MissingRequiredField(t *testing.T) {
	applicant := testApplicant()
	applicant.DOB = ""

	_, err := BuildVerificationRequest(applicant, "tx-1", "token-1", false)

	require.Error(t, err)
	assert.Equal(t, docauth.ErrorBadData, docauth.Category(err))
	assert.Contains(t, err.Error(), "dob")

	_, err = BuildVerificationRequest(nil, "tx-1", "token-1", false)
	require.Error(t, err)
}

func TestBuildVerificationRequest_UnknownDocTypeOmitsCategory(t *testing.T) {
	applicant := testApplicant()
	applicant.IDDocType = "passport"

	body, err := BuildVerificationRequest(applicant, "tx-1", "token-1", false)

	require.NoError(t, err)
	assert.NotContains(t, string(body), "DocumentCategoryCode")
}
