package repositories

import (
	"context"
	"errors"
	"fmt"

	"meterbill/internal/common"
	"meterbill/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type InvoiceRepository interface {
	// Upsert overwrites the invoice row on conflict so that repeated
	// finalization of the same payment never duplicates an invoice.
	Upsert(ctx context.Context, invoice *models.Invoice) error
	GetByID(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.Invoice, error)
}

type invoiceRepo struct {
	db Database
}

func NewInvoiceRepo(db Database) InvoiceRepository {
	return &invoiceRepo{db: db}
}

func (r *invoiceRepo) Upsert(ctx context.Context, invoice *models.Invoice) error {
	query := `
		INSERT INTO invoices (id, account_id, payment_id, invoice_number, amount, currency, period_start, period_end, paid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE
		SET invoice_number = EXCLUDED.invoice_number, amount = EXCLUDED.amount, currency = EXCLUDED.currency,
			period_start = EXCLUDED.period_start, period_end = EXCLUDED.period_end, paid = EXCLUDED.paid
	`
	_, err := r.db.Exec(ctx, query,
		invoice.ID, invoice.AccountID, invoice.PaymentID, invoice.InvoiceNumber,
		invoice.Amount, invoice.Currency, invoice.PeriodStart, invoice.PeriodEnd, invoice.Paid)
	return err
}

func (r *invoiceRepo) GetByID(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	invoice := &models.Invoice{}
	query := `
		SELECT id, account_id, payment_id, invoice_number, amount, currency, period_start, period_end, paid, created_at
		FROM invoices
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, invoiceID).Scan(
		&invoice.ID, &invoice.AccountID, &invoice.PaymentID, &invoice.InvoiceNumber,
		&invoice.Amount, &invoice.Currency, &invoice.PeriodStart, &invoice.PeriodEnd,
		&invoice.Paid, &invoice.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("invoice %s: %w", invoiceID, common.ErrNotFound)
		}
		return nil, err
	}
	return invoice, nil
}

func (r *invoiceRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.Invoice, error) {
	query := `
		SELECT id, account_id, payment_id, invoice_number, amount, currency, period_start, period_end, paid, created_at
		FROM invoices
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		invoice := &models.Invoice{}
		if err := rows.Scan(
			&invoice.ID, &invoice.AccountID, &invoice.PaymentID, &invoice.InvoiceNumber,
			&invoice.Amount, &invoice.Currency, &invoice.PeriodStart, &invoice.PeriodEnd,
			&invoice.Paid, &invoice.CreatedAt); err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	return invoices, rows.Err()
}
