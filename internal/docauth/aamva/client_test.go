package aamva

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"idv-gateway/internal/docauth"
	"idv-gateway/internal/docauth/httpclient/mocks"
	"idv-gateway/internal/platform/logger"
)

const tokenBody = `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body>
  <aa:GetTokenResponse xmlns:aa="http://aamva.org/authentication">
    <aa:Token>security-token-1</aa:Token>
  </aa:GetTokenResponse>
</soap:Body></soap:Envelope>`

func newTestClient(doer *mocks.MockDoer) *Client {
	return New(Config{
		VerificationURL: "https://dldv.example.com/dldv/2.1/online",
		AuthURL:         "https://dldv.example.com/auth",
		PrivateKey:      "private",
		PublicKey:       "public",
		HTTPClient:      doer,
	}, logger.New(), nil, nil)
}

func soapResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

func TestVerifyStateID_HappyPath(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockDoer(ctrl)

	gomock.InOrder(
		doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "/auth", req.URL.Path)
			body, _ := io.ReadAll(req.Body)
			assert.Contains(t, string(body), "<aa:PublicKey>public</aa:PublicKey>")
			return soapResponse(200, tokenBody), nil
		}),
		doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "/dldv/2.1/online", req.URL.Path)
			assert.Equal(t, verifySOAPAction, req.Header.Get("SOAPAction"))
			body, _ := io.ReadAll(req.Body)
			assert.Contains(t, string(body), "security-token-1")
			assert.Contains(t, string(body), "<nc:PersonGivenName>Testy</nc:PersonGivenName>")
			return soapResponse(200, verificationBody(nil)), nil
		}),
	)

	client := newTestClient(doer)
	result, err := client.VerifyStateID(context.Background(), testApplicant())

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.Reasons)
}

func TestVerifyStateID_TokenFaultSurfaces(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockDoer(ctrl)

	doer.EXPECT().Do(gomock.Any()).Return(soapResponse(200, faultBody), nil)

	client := newTestClient(doer)
	_, err := client.VerifyStateID(context.Background(), testApplicant())

	require.Error(t, err)
	assert.Equal(t, docauth.ErrorTimeout, docauth.Category(err))
	assert.True(t, docauth.IsRetryable(err))
}

func TestVerifyStateID_MissingToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockDoer(ctrl)

	doer.EXPECT().Do(gomock.Any()).Return(soapResponse(200, `<Envelope><Body></Body></Envelope>`), nil)

	client := newTestClient(doer)
	_, err := client.VerifyStateID(context.Background(), testApplicant())

	require.Error(t, err)
	assert.Equal(t, docauth.ErrorAuthentication, docauth.Category(err))
}
