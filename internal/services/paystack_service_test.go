package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"meterbill/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type PaystackServiceTestSuite struct {
	suite.Suite
	secretKey string
}

func (suite *PaystackServiceTestSuite) SetupTest() {
	suite.secretKey = "sk_test_0123456789abcdef"
}

func TestPaystackServiceTestSuite(t *testing.T) {
	suite.Run(t, new(PaystackServiceTestSuite))
}

// stubGateway returns a service pointed at a stub HTTP server.
func (suite *PaystackServiceTestSuite) stubGateway(handler http.HandlerFunc) (PaystackService, *httptest.Server) {
	server := httptest.NewServer(handler)
	suite.T().Cleanup(server.Close)
	return NewPaystackService(suite.secretKey, server.URL), server
}

func (suite *PaystackServiceTestSuite) TestConfigured() {
	assert.True(suite.T(), NewPaystackService("sk_test_x", "").Configured())
	assert.False(suite.T(), NewPaystackService("", "").Configured())
}

func (suite *PaystackServiceTestSuite) TestInitializeTransaction_Success() {
	var gotAuth, gotPath string
	var gotReq InitializeTransactionRequest
	service, _ := suite.stubGateway(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(suite.T(), json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]string{
				"authorization_url": "https://checkout.paystack.com/abc123",
				"access_code":       "abc123",
				"reference":         "mtb_test_ref",
			},
		})
	})

	init, err := service.InitializeTransaction(context.Background(), &InitializeTransactionRequest{
		Email:     "user@example.com",
		Amount:    "500000",
		Currency:  "NGN",
		Reference: "mtb_test_ref",
	})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "https://checkout.paystack.com/abc123", init.AuthorizationURL)
	assert.Equal(suite.T(), "abc123", init.AccessCode)
	assert.Equal(suite.T(), "mtb_test_ref", init.Reference)

	assert.Equal(suite.T(), "Bearer "+suite.secretKey, gotAuth)
	assert.Equal(suite.T(), "/transaction/initialize", gotPath)
	assert.Equal(suite.T(), "500000", gotReq.Amount)
	assert.Equal(suite.T(), "user@example.com", gotReq.Email)
}

func (suite *PaystackServiceTestSuite) TestInitializeTransaction_GatewayRejected() {
	service, _ := suite.stubGateway(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  false,
			"message": "Invalid key",
		})
	})

	_, err := service.InitializeTransaction(context.Background(), &InitializeTransactionRequest{})
	assert.ErrorIs(suite.T(), err, common.ErrGatewayRejected)
	assert.Contains(suite.T(), err.Error(), "Invalid key")
}

func (suite *PaystackServiceTestSuite) TestInitializeTransaction_MalformedBody() {
	service, _ := suite.stubGateway(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway maintenance</html>"))
	})

	_, err := service.InitializeTransaction(context.Background(), &InitializeTransactionRequest{})
	assert.ErrorIs(suite.T(), err, common.ErrMalformedResponse)
}

func (suite *PaystackServiceTestSuite) TestInitializeTransaction_MissingData() {
	service, _ := suite.stubGateway(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  true,
			"message": "ok",
		})
	})

	_, err := service.InitializeTransaction(context.Background(), &InitializeTransactionRequest{})
	assert.ErrorIs(suite.T(), err, common.ErrMalformedResponse)
}

func (suite *PaystackServiceTestSuite) TestInitializeTransaction_ServerError() {
	service, _ := suite.stubGateway(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := service.InitializeTransaction(context.Background(), &InitializeTransactionRequest{})
	assert.ErrorIs(suite.T(), err, common.ErrTransport)
	assert.Contains(suite.T(), err.Error(), "502")
}

func (suite *PaystackServiceTestSuite) TestVerifyTransaction_Success() {
	var gotPath string
	service, _ := suite.stubGateway(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  true,
			"message": "Verification successful",
			"data": map[string]interface{}{
				"id":        302961,
				"status":    "success",
				"reference": "mtb_test_ref",
				"amount":    500000,
				"channel":   "card",
				"currency":  "NGN",
				"paid_at":   "2025-06-15T12:30:00.000Z",
				"customer":  map[string]string{"email": "user@example.com"},
			},
		})
	})

	details, err := service.VerifyTransaction(context.Background(), "mtb_test_ref")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "/transaction/verify/mtb_test_ref", gotPath)
	assert.Equal(suite.T(), "success", details.Status)
	assert.Equal(suite.T(), int64(500000), details.Amount)
	assert.Equal(suite.T(), "card", details.Channel)
	assert.Equal(suite.T(), int64(302961), details.ID)
}

func (suite *PaystackServiceTestSuite) TestVerifyWebhookSignature() {
	service := NewPaystackService(suite.secretKey, "")
	payload := []byte(`{"event":"charge.success","data":{"reference":"mtb_test_ref"}}`)

	mac := hmac.New(sha512.New, []byte(suite.secretKey))
	mac.Write(payload)
	signature := hex.EncodeToString(mac.Sum(nil))

	assert.True(suite.T(), service.VerifyWebhookSignature(payload, signature))

	// Any mutation of the payload or signature must fail verification.
	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-2] = 'x'
	assert.False(suite.T(), service.VerifyWebhookSignature(tampered, signature))
	assert.False(suite.T(), service.VerifyWebhookSignature(payload, signature[:len(signature)-1]+"0"))
	assert.False(suite.T(), service.VerifyWebhookSignature(payload, ""))
}

func (suite *PaystackServiceTestSuite) TestVerifyWebhookSignature_Unconfigured() {
	service := NewPaystackService("", "")
	assert.False(suite.T(), service.VerifyWebhookSignature([]byte("{}"), "deadbeef"))
}

func (suite *PaystackServiceTestSuite) TestParseWebhookEvent_ChargeSuccess() {
	service := NewPaystackService(suite.secretKey, "")
	payload := []byte(`{"event":"charge.success","data":{"id":42,"status":"success","reference":"mtb_test_ref","amount":500000}}`)

	event, err := service.ParseWebhookEvent(payload)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), EventChargeSuccess, event.Kind)
	assert.Equal(suite.T(), "charge.success", event.Name)
	assert.Equal(suite.T(), "mtb_test_ref", event.Data.Reference)
	assert.Equal(suite.T(), int64(500000), event.Data.Amount)
}

func (suite *PaystackServiceTestSuite) TestParseWebhookEvent_ChargeFailed() {
	service := NewPaystackService(suite.secretKey, "")
	payload := []byte(`{"event":"charge.failed","data":{"status":"failed","reference":"mtb_test_ref"}}`)

	event, err := service.ParseWebhookEvent(payload)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), EventChargeFailed, event.Kind)
}

func (suite *PaystackServiceTestSuite) TestParseWebhookEvent_UnknownKind() {
	service := NewPaystackService(suite.secretKey, "")
	payload := []byte(`{"event":"transfer.success","data":{"reference":"other"}}`)

	event, err := service.ParseWebhookEvent(payload)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), EventUnknown, event.Kind)
	assert.Equal(suite.T(), "transfer.success", event.Name)
}

func (suite *PaystackServiceTestSuite) TestParseWebhookEvent_Malformed() {
	service := NewPaystackService(suite.secretKey, "")
	_, err := service.ParseWebhookEvent([]byte("not json"))
	assert.ErrorIs(suite.T(), err, common.ErrMalformedResponse)
}
