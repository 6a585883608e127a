package socure

import (
	"bytes"
	"context"
	"errors"
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

func newTestClient(doer *mocks.MockDoer) *Client {
	return New(Config{
		BaseURL:    "https://sandbox.socure.example.com",
		APIKey:     "test-key",
		HTTPClient: doer,
	}, logger.New(), nil, nil)
}

func TestVerify_FetchesResultByToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockDoer(ctrl)

	doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "/api/3.0/EmailAuthScore", req.URL.Path)
		assert.Equal(t, "SocureApiKey test-key", req.Header.Get("Authorization"))

		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"docvTransactionToken":"token-1"`)
		assert.Contains(t, string(body), `"documentverification"`)

		return &http.Response{
			StatusCode: 200,
			Body:       io.NopCloser(bytes.NewReader([]byte(acceptedBody))),
		}, nil
	})

	client := newTestClient(doer)
	resp, err := client.Verify(context.Background(), docauth.CaptureInput{DocvTransactionToken: "token-1"})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.PII)
	assert.Equal(t, "Dwayne", resp.PII.FirstName)
}

func TestVerify_MissingTokenIsBadData(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := newTestClient(mocks.NewMockDoer(ctrl))

	resp, err := client.Verify(context.Background(), docauth.CaptureInput{})

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, docauth.ErrorBadData, docauth.Category(err))
}

func TestVerify_TransportFailureBecomesNetworkResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockDoer(ctrl)

	doer.EXPECT().Do(gomock.Any()).Return(nil, errors.New("connection refused")).AnyTimes()

	client := newTestClient(doer)
	resp, err := client.Verify(context.Background(), docauth.CaptureInput{DocvTransactionToken: "token-1"})

	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, map[string]any{"network": true}, resp.Errors)
	assert.NotEmpty(t, resp.Exception)
}

func TestVerify_UnexpectedStatusBecomesNetworkResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockDoer(ctrl)

	doer.EXPECT().Do(gomock.Any()).Return(&http.Response{
		StatusCode: 403,
		Body:       io.NopCloser(bytes.NewReader(nil)),
	}, nil)

	client := newTestClient(doer)
	resp, err := client.Verify(context.Background(), docauth.CaptureInput{DocvTransactionToken: "token-1"})

	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "unexpected status code 403", resp.Exception)
}
