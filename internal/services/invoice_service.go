package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"meterbill/internal/models"
	"meterbill/internal/repositories"

	"github.com/google/uuid"
)

// receiptBucket is the object-storage bucket for archived receipts.
const receiptBucket = "meterbill-receipts"

// InvoiceService emits exactly one invoice per settled payment and serves
// invoice reads. Receipt archival to object storage is best-effort.
type InvoiceService interface {
	IssueForPayment(ctx context.Context, payment *models.Payment, periodStart, periodEnd time.Time) (*models.Invoice, error)
	GetByID(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.Invoice, error)
	ReceiptURL(ctx context.Context, invoice *models.Invoice) (string, error)
}

type invoiceService struct {
	invoiceRepo repositories.InvoiceRepository
	minioSvc    MinioService // nil disables receipt archival
}

func NewInvoiceService(invoiceRepo repositories.InvoiceRepository, minioSvc MinioService) InvoiceService {
	return &invoiceService{
		invoiceRepo: invoiceRepo,
		minioSvc:    minioSvc,
	}
}

// invoiceIDForPayment derives the invoice id deterministically from the
// payment id, so repeated finalization of the same payment overwrites the
// same row.
func invoiceIDForPayment(paymentID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, paymentID[:])
}

func (s *invoiceService) IssueForPayment(ctx context.Context, payment *models.Payment, periodStart, periodEnd time.Time) (*models.Invoice, error) {
	invoice := &models.Invoice{
		ID:            invoiceIDForPayment(payment.ID),
		AccountID:     payment.AccountID,
		PaymentID:     payment.ID,
		InvoiceNumber: invoiceNumber(payment, periodStart),
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
		Paid:          true,
	}

	if err := s.invoiceRepo.Upsert(ctx, invoice); err != nil {
		return nil, fmt.Errorf("failed to persist invoice: %w", err)
	}

	s.archiveReceipt(ctx, invoice)

	return invoice, nil
}

func (s *invoiceService) GetByID(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	return s.invoiceRepo.GetByID(ctx, invoiceID)
}

func (s *invoiceService) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.Invoice, error) {
	return s.invoiceRepo.ListByAccount(ctx, accountID, limit, offset)
}

func (s *invoiceService) ReceiptURL(ctx context.Context, invoice *models.Invoice) (string, error) {
	if s.minioSvc == nil {
		return "", fmt.Errorf("receipt archive is not configured")
	}
	return s.minioSvc.GetPresignedURL(receiptBucket, receiptObjectName(invoice.ID), 15*time.Minute)
}

// archiveReceipt uploads a JSON rendering of the invoice. Failures are
// logged, never surfaced: the invoice row is the source of truth and the
// archive can be rebuilt.
func (s *invoiceService) archiveReceipt(ctx context.Context, invoice *models.Invoice) {
	if s.minioSvc == nil {
		return
	}

	data, err := json.MarshalIndent(invoice, "", "  ")
	if err != nil {
		log.Printf("Failed to render receipt for invoice %s: %v", invoice.ID, err)
		return
	}

	if err := s.minioSvc.EnsureBucketExists(ctx, receiptBucket); err != nil {
		log.Printf("Failed to ensure receipt bucket: %v", err)
		return
	}

	objectName := receiptObjectName(invoice.ID)
	if err := s.minioSvc.UploadObject(ctx, receiptBucket, objectName, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		log.Printf("Failed to archive receipt %s: %v", objectName, err)
	}
}

func receiptObjectName(invoiceID uuid.UUID) string {
	return fmt.Sprintf("invoices/%s.json", invoiceID)
}

func invoiceNumber(payment *models.Payment, periodStart time.Time) string {
	fragment := payment.Reference
	if idx := strings.LastIndex(fragment, "_"); idx >= 0 {
		fragment = fragment[idx+1:]
	}
	if len(fragment) > 8 {
		fragment = fragment[:8]
	}
	return fmt.Sprintf("INV-%d-%s", periodStart.Year(), strings.ToUpper(fragment))
}
