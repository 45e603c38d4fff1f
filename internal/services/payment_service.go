package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"meterbill/internal/common"
	"meterbill/internal/models"
	"meterbill/internal/repositories"

	"github.com/google/uuid"
)

// PaymentService coordinates the upgrade lifecycle: initialize a gateway
// transaction, verify it (poll or webhook), and finalize by promoting the
// subscription and emitting an invoice. Finalization is idempotent; there is
// no cross-call lock spanning the gateway round-trip, so the record is
// always re-read after a remote call.
type PaymentService interface {
	Initialize(ctx context.Context, req *InitializePaymentRequest) (*PaymentInitResult, error)
	Verify(ctx context.Context, reference string) (*TransactionDetails, error)
	ProcessWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
	GetPayment(ctx context.Context, reference string) (*models.Payment, error)
	GetPaymentHistory(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.Payment, error)
}

type InitializePaymentRequest struct {
	AccountID     uuid.UUID
	Email         string
	Tier          models.Tier
	BillingPeriod models.BillingPeriod
	Currency      string
	CallbackURL   string
	Channels      []string
	CustomerName  string
	Phone         string
}

type PaymentInitResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
}

type paymentService struct {
	paystackSvc PaystackService
	paymentRepo repositories.PaymentRepository
	quotaSvc    QuotaService
	invoiceSvc  InvoiceService
	now         func() time.Time
}

// NewPaymentService creates the orchestrator. now is injectable for tests;
// pass nil for wall-clock time.
func NewPaymentService(
	paystackSvc PaystackService,
	paymentRepo repositories.PaymentRepository,
	quotaSvc QuotaService,
	invoiceSvc InvoiceService,
	now func() time.Time,
) PaymentService {
	if now == nil {
		now = time.Now
	}
	return &paymentService{
		paystackSvc: paystackSvc,
		paymentRepo: paymentRepo,
		quotaSvc:    quotaSvc,
		invoiceSvc:  invoiceSvc,
		now:         now,
	}
}

// newReference builds a gateway reference: deterministic prefix, account
// fragment, and 32 hex chars of fresh UUID entropy. Gateway-side uniqueness
// enforcement is the backstop, not the primary guarantee.
func newReference(accountID uuid.UUID) string {
	entropy := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("mtb_%s_%s", accountID.String()[:8], entropy)
}

func (s *paymentService) Initialize(ctx context.Context, req *InitializePaymentRequest) (*PaymentInitResult, error) {
	if !s.paystackSvc.Configured() {
		return nil, common.ErrNotConfigured
	}

	amount, err := PriceFor(req.Tier, req.BillingPeriod, req.Currency)
	if err != nil {
		return nil, err
	}

	reference := newReference(req.AccountID)

	// The metadata format belongs to the gateway; we only pass it through.
	metadataBytes, err := json.Marshal(map[string]string{
		"account_id":     req.AccountID.String(),
		"tier":           string(req.Tier),
		"billing_period": string(req.BillingPeriod),
		"customer_name":  req.CustomerName,
		"phone":          req.Phone,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build metadata: %w", err)
	}
	metadata := string(metadataBytes)

	init, err := s.paystackSvc.InitializeTransaction(ctx, &InitializeTransactionRequest{
		Email:       req.Email,
		Amount:      strconv.FormatInt(amount, 10),
		Currency:    req.Currency,
		Reference:   reference,
		CallbackURL: req.CallbackURL,
		Channels:    req.Channels,
		Metadata:    metadata,
	})
	if err != nil {
		// Gateway rejection or transport failure: no local record is
		// persisted for a transaction that never existed remotely.
		return nil, fmt.Errorf("failed to initialize transaction: %w", err)
	}

	payment := &models.Payment{
		ID:               uuid.New(),
		AccountID:        req.AccountID,
		Reference:        reference,
		Amount:           amount,
		Currency:         req.Currency,
		Email:            req.Email,
		Status:           models.PaymentStatusPending,
		AuthorizationURL: init.AuthorizationURL,
		AccessCode:       init.AccessCode,
		Tier:             req.Tier,
		BillingPeriod:    req.BillingPeriod,
		Metadata:         &metadata,
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to persist payment record: %w", err)
	}

	return &PaymentInitResult{
		AuthorizationURL: init.AuthorizationURL,
		AccessCode:       init.AccessCode,
		Reference:        reference,
		Amount:           amount,
		Currency:         req.Currency,
	}, nil
}

func (s *paymentService) Verify(ctx context.Context, reference string) (*TransactionDetails, error) {
	// Reject unknown references before spending a gateway call on them.
	if _, err := s.paymentRepo.GetByReference(ctx, reference); err != nil {
		return nil, err
	}

	details, err := s.paystackSvc.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to verify transaction: %w", err)
	}

	// Re-read after the remote round-trip: a webhook delivery may have
	// finalized this reference while we were suspended.
	payment, err := s.paymentRepo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	if err := s.applyGatewayStatus(ctx, payment, details); err != nil {
		return nil, err
	}
	return details, nil
}

func (s *paymentService) ProcessWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	if !s.paystackSvc.Configured() {
		return nil, common.ErrNotConfigured
	}
	if !s.paystackSvc.VerifyWebhookSignature(payload, signature) {
		return nil, common.ErrInvalidSignature
	}

	event, err := s.paystackSvc.ParseWebhookEvent(payload)
	if err != nil {
		return nil, err
	}
	if event.Kind == EventUnknown {
		// Acknowledged without effect so the gateway stops retrying.
		return event, nil
	}

	payment, err := s.paymentRepo.GetByReference(ctx, event.Data.Reference)
	if err != nil {
		return nil, err
	}

	if err := s.applyGatewayStatus(ctx, payment, &event.Data); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *paymentService) GetPayment(ctx context.Context, reference string) (*models.Payment, error) {
	return s.paymentRepo.GetByReference(ctx, reference)
}

func (s *paymentService) GetPaymentHistory(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.Payment, error) {
	return s.paymentRepo.ListByAccount(ctx, accountID, limit, offset)
}

// applyGatewayStatus transitions the local record to the gateway-reported
// state. Success triggers the finalize sequence; a record already settled
// as success is left untouched (idempotence).
func (s *paymentService) applyGatewayStatus(ctx context.Context, payment *models.Payment, details *TransactionDetails) error {
	if details.Status == string(models.PaymentStatusSuccess) {
		if payment.Status == models.PaymentStatusSuccess {
			return nil
		}
		return s.finalizeSuccess(ctx, payment, details)
	}

	status, ok := models.ParsePaymentStatus(details.Status)
	if !ok || status == payment.Status {
		// Unknown or unchanged gateway status; leave the record alone.
		return nil
	}
	payment.Status = status
	if details.Channel != "" {
		payment.Channel = &details.Channel
	}
	if err := s.paymentRepo.Update(ctx, payment); err != nil {
		return fmt.Errorf("failed to record %s status: %w", status, err)
	}
	return nil
}

// finalizeSuccess promotes the subscription, emits the invoice, and only
// then persists the success status. Ordering is the atomicity mechanism:
// no reader can observe a successful payment whose subscription upgrade has
// not been applied, and re-running the whole sequence is harmless.
func (s *paymentService) finalizeSuccess(ctx context.Context, payment *models.Payment, details *TransactionDetails) error {
	subscription, err := s.quotaSvc.UpgradeSubscription(ctx, payment.AccountID, payment.Tier, payment.BillingPeriod)
	if err != nil {
		return fmt.Errorf("failed to upgrade subscription: %w", err)
	}

	periodStart := *subscription.RenewedAt
	periodEnd := *subscription.ExpiresAt
	if _, err := s.invoiceSvc.IssueForPayment(ctx, payment, periodStart, periodEnd); err != nil {
		return fmt.Errorf("failed to issue invoice: %w", err)
	}

	paidAt := parseGatewayTime(details.PaidAt, s.now())
	txnID := strconv.FormatInt(details.ID, 10)
	payment.Status = models.PaymentStatusSuccess
	payment.GatewayTxnID = &txnID
	payment.PaidAt = &paidAt
	if details.Channel != "" {
		payment.Channel = &details.Channel
	}
	if err := s.paymentRepo.Update(ctx, payment); err != nil {
		return fmt.Errorf("failed to record success status: %w", err)
	}
	return nil
}

// parseGatewayTime parses the gateway's paid_at timestamp, falling back to
// the local clock when absent or unparseable.
func parseGatewayTime(value string, fallback time.Time) time.Time {
	if value == "" {
		return fallback
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000Z"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return fallback
}
