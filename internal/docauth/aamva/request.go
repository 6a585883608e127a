package aamva

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"idv-gateway/internal/docauth"
)

// certJurisdiction routes requests in the AAMVA CERT/test environment; the
// real jurisdiction is only valid in production.
const certJurisdiction = "P6"

type soapEnvelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	XMLNSS  string   `xml:"xmlns:soap,attr"`
	Header  soapHeader
	Body    soapBody
}

type soapHeader struct {
	XMLName xml.Name `xml:"soap:Header"`
	Token   *securityToken
}

type securityToken struct {
	XMLName xml.Name `xml:"aa:SecurityToken"`
	XMLNSAA string   `xml:"xmlns:aa,attr"`
	Value   string   `xml:",chardata"`
}

type soapBody struct {
	XMLName      xml.Name `xml:"soap:Body"`
	Verify       *verifyRequest
	TokenRequest *authTokenRequest
}

type verifyRequest struct {
	XMLName xml.Name `xml:"dldv:verifyDriverLicenseDataRequest"`
	XMLNS   string   `xml:"xmlns:dldv,attr"`
	XMLNSAA string   `xml:"xmlns:aa,attr"`
	XMLNSNC string   `xml:"xmlns:nc,attr"`

	MessageDestinationID string `xml:"aa:MessageDestinationId"`
	TransactionLocatorID string `xml:"aa:TransactionLocatorId"`

	IdentificationID string `xml:"nc:IdentificationID"`
	BirthDate        string `xml:"aa:PersonBirthDate"`

	Name    personName `xml:"nc:PersonName"`
	Address address    `xml:"aa:Address"`

	DocumentCategoryCode string `xml:"aa:DocumentCategoryCode,omitempty"`
	IssueDate            string `xml:"aa:DriverLicenseIssueDate,omitempty"`
	ExpirationDate       string `xml:"aa:DriverLicenseExpirationDate,omitempty"`
}

type personName struct {
	GivenName      string `xml:"nc:PersonGivenName"`
	MiddleName     string `xml:"nc:PersonMiddleName,omitempty"`
	SurName        string `xml:"nc:PersonSurName"`
	NameSuffixText string `xml:"nc:PersonNameSuffixText,omitempty"`
}

type address struct {
	// Repeated element: line one, then optionally line two.
	DeliveryPoints []string `xml:"nc:AddressDeliveryPointText"`
	City           string   `xml:"nc:LocationCityName"`
	State          string   `xml:"nc:LocationStateUsPostalServiceCode"`
	PostalCode     string   `xml:"nc:LocationPostalCode"`
}

// documentCategoryCodes maps the normalized document type to the DLDV code.
var documentCategoryCodes = map[string]string{
	"drivers_license": "1",
	"drivers_permit":  "2",
	"state_id_card":   "3",
}

// BuildVerificationRequest renders the DLDV verify envelope for an applicant.
// transactionID correlates the exchange in AAMVA's logs and carries no PII.
func BuildVerificationRequest(applicant *docauth.Applicant, transactionID, authToken string, certMode bool) ([]byte, error) {
	if applicant == nil {
		return nil, docauth.NewVendorError(docauth.ErrorBadData, docauth.VendorAAMVA,
			"missing applicant", nil)
	}
	for field, value := range map[string]string{
		"first_name":            applicant.FirstName,
		"last_name":             applicant.LastName,
		"dob":                   applicant.DOB,
		"state_id_number":       applicant.StateIDNumber,
		"state_id_jurisdiction": applicant.StateIDJurisdiction,
	} {
		if value == "" {
			return nil, docauth.NewVendorError(docauth.ErrorBadData, docauth.VendorAAMVA,
				fmt.Sprintf("applicant missing required field %s", field), nil)
		}
	}

	jurisdiction := applicant.StateIDJurisdiction
	if certMode {
		jurisdiction = certJurisdiction
	}

	envelope := soapEnvelope{
		XMLNSS: "http://www.w3.org/2003/05/soap-envelope",
		Header: soapHeader{
			Token: &securityToken{
				XMLNSAA: "http://aamva.org/dldv/2.1",
				Value:   authToken,
			},
		},
		Body: soapBody{
			Verify: &verifyRequest{
				XMLNS:   "http://aamva.org/dldv/wsdl/2.1",
				XMLNSAA: "http://aamva.org/dldv/2.1",
				XMLNSNC: "http://niem.gov/niem/niem-core/2.0",

				MessageDestinationID: jurisdiction,
				TransactionLocatorID: transactionID,

				IdentificationID: stateIDNumber(applicant),
				BirthDate:        applicant.DOB,

				Name: personName{
					GivenName:      applicant.FirstName,
					MiddleName:     applicant.MiddleName,
					SurName:        applicant.LastName,
					NameSuffixText: applicant.NameSuffix,
				},
				Address: address{
					DeliveryPoints: addressLines(applicant),
					City:           applicant.City,
					State:          applicant.State,
					PostalCode:     applicant.Zipcode,
				},

				DocumentCategoryCode: documentCategoryCodes[applicant.IDDocType],
			},
		},
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(envelope); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type authTokenRequest struct {
	XMLName xml.Name `xml:"aa:GetTokenRequest"`
	XMLNSAA string   `xml:"xmlns:aa,attr"`

	PublicKey  string `xml:"aa:PublicKey"`
	PrivateKey string `xml:"aa:PrivateKey"`
}

// buildAuthTokenRequest renders the security-token envelope.
func buildAuthTokenRequest(publicKey, privateKey string) ([]byte, error) {
	envelope := soapEnvelope{
		XMLNSS: "http://www.w3.org/2003/05/soap-envelope",
		Body: soapBody{
			TokenRequest: &authTokenRequest{
				XMLNSAA:    "http://aamva.org/authentication",
				PublicKey:  publicKey,
				PrivateKey: privateKey,
			},
		},
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(envelope); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func addressLines(applicant *docauth.Applicant) []string {
	lines := []string{applicant.Address1}
	if applicant.Address2 != "" {
		lines = append(lines, applicant.Address2)
	}
	return lines
}

// stateIDNumber applies per-jurisdiction quirks. South Carolina requires
// license numbers zero-padded to eight digits.
func stateIDNumber(applicant *docauth.Applicant) string {
	number := applicant.StateIDNumber
	if applicant.StateIDJurisdiction == "SC" && len(number) < 8 {
		return fmt.Sprintf("%08s", number)
	}
	return number
}
