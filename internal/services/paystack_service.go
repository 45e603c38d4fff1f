package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"meterbill/internal/common"
)

// maxResponseBytes caps how much of a gateway response is read.
const maxResponseBytes = 1 << 20

// DefaultPaystackBaseURL is the production API endpoint.
const DefaultPaystackBaseURL = "https://api.paystack.co"

// PaystackService is the outbound protocol adapter for the payment gateway.
// It holds no local state beyond credentials.
type PaystackService interface {
	Configured() bool
	InitializeTransaction(ctx context.Context, req *InitializeTransactionRequest) (*TransactionInit, error)
	VerifyTransaction(ctx context.Context, reference string) (*TransactionDetails, error)
	VerifyWebhookSignature(payload []byte, signature string) bool
	ParseWebhookEvent(payload []byte) (*WebhookEvent, error)
}

type InitializeTransactionRequest struct {
	Email       string   `json:"email"`
	Amount      string   `json:"amount"` // smallest unit, as the gateway expects it
	Currency    string   `json:"currency"`
	Reference   string   `json:"reference"`
	CallbackURL string   `json:"callback_url,omitempty"`
	Channels    []string `json:"channels,omitempty"`
	Metadata    string   `json:"metadata,omitempty"` // opaque pass-through blob
}

type TransactionInit struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type TransactionCustomer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
}

type TransactionDetails struct {
	ID        int64               `json:"id"`
	Status    string              `json:"status"`
	Reference string              `json:"reference"`
	Amount    int64               `json:"amount"`
	Channel   string              `json:"channel"`
	Currency  string              `json:"currency"`
	PaidAt    string              `json:"paid_at,omitempty"`
	Customer  TransactionCustomer `json:"customer"`
	Fees      int64               `json:"fees,omitempty"`
}

// WebhookEventKind is the closed set of gateway events this system reacts
// to. Anything else is EventUnknown and acknowledged without effect so the
// gateway stops retrying.
type WebhookEventKind int

const (
	EventUnknown WebhookEventKind = iota
	EventChargeSuccess
	EventChargeFailed
)

// WebhookEvent is a verified, parsed gateway callback.
type WebhookEvent struct {
	Kind WebhookEventKind
	Name string
	Data TransactionDetails
}

type paystackService struct {
	secretKey string
	baseURL   string
	http      *http.Client
}

// NewPaystackService creates the gateway adapter. An empty secretKey yields
// an unconfigured service; callers must check Configured before use.
func NewPaystackService(secretKey, baseURL string) PaystackService {
	if baseURL == "" {
		baseURL = DefaultPaystackBaseURL
	}
	return &paystackService{
		secretKey: secretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *paystackService) Configured() bool {
	return s.secretKey != ""
}

// gatewayEnvelope is the common {status, message, data} response shape.
type gatewayEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *paystackService) InitializeTransaction(ctx context.Context, req *InitializeTransactionRequest) (*TransactionInit, error) {
	body, err := s.makeRequest(ctx, http.MethodPost, "/transaction/initialize", req)
	if err != nil {
		return nil, err
	}

	envelope, err := parseEnvelope(body)
	if err != nil {
		return nil, err
	}

	init := &TransactionInit{}
	if err := json.Unmarshal(envelope.Data, init); err != nil {
		return nil, fmt.Errorf("initialize data: %v: %w", err, common.ErrMalformedResponse)
	}
	return init, nil
}

func (s *paystackService) VerifyTransaction(ctx context.Context, reference string) (*TransactionDetails, error) {
	body, err := s.makeRequest(ctx, http.MethodGet, "/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, err
	}

	envelope, err := parseEnvelope(body)
	if err != nil {
		return nil, err
	}

	details := &TransactionDetails{}
	if err := json.Unmarshal(envelope.Data, details); err != nil {
		return nil, fmt.Errorf("verify data: %v: %w", err, common.ErrMalformedResponse)
	}
	return details, nil
}

// VerifyWebhookSignature recomputes the hex HMAC-SHA512 of the raw payload
// with the secret key and compares in constant time. The secret never
// appears in errors or logs.
func (s *paystackService) VerifyWebhookSignature(payload []byte, signature string) bool {
	if s.secretKey == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(s.secretKey))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

// ParseWebhookEvent decodes a signature-verified payload. The data blob is
// gateway-owned; fields we do not know are ignored.
func (s *paystackService) ParseWebhookEvent(payload []byte) (*WebhookEvent, error) {
	var raw struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("webhook payload: %v: %w", err, common.ErrMalformedResponse)
	}

	event := &WebhookEvent{Name: raw.Event}
	switch raw.Event {
	case "charge.success":
		event.Kind = EventChargeSuccess
	case "charge.failed":
		event.Kind = EventChargeFailed
	default:
		event.Kind = EventUnknown
		return event, nil
	}

	if err := json.Unmarshal(raw.Data, &event.Data); err != nil {
		return nil, fmt.Errorf("webhook data: %v: %w", err, common.ErrMalformedResponse)
	}
	return event, nil
}

// parseEnvelope distinguishes "gateway said no" (ErrGatewayRejected) from
// "gateway response was unparseable" (ErrMalformedResponse); only the
// latter is safe to retry blindly.
func parseEnvelope(body []byte) (*gatewayEnvelope, error) {
	envelope := &gatewayEnvelope{}
	if err := json.Unmarshal(body, envelope); err != nil {
		return nil, fmt.Errorf("%v: %w", err, common.ErrMalformedResponse)
	}
	if !envelope.Status {
		return nil, fmt.Errorf("%s: %w", envelope.Message, common.ErrGatewayRejected)
	}
	if len(envelope.Data) == 0 {
		return nil, fmt.Errorf("missing data in gateway response: %w", common.ErrMalformedResponse)
	}
	return envelope, nil
}

func (s *paystackService) makeRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewBuffer(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, common.ErrTransport)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading gateway response: %v: %w", err, common.ErrTransport)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("gateway returned HTTP %d: %s: %w", resp.StatusCode, truncateForDiagnostics(respBody), common.ErrTransport)
	}
	return respBody, nil
}

// truncateForDiagnostics keeps error messages bounded and quote-escaped.
func truncateForDiagnostics(body []byte) string {
	const maxLen = 512
	s := string(body)
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return strconv.Quote(s)
}
