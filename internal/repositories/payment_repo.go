package repositories

import (
	"context"
	"errors"
	"fmt"

	"meterbill/internal/common"
	"meterbill/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Database is the subset of pgxpool.Pool the repositories use. pgxmock's
// pool satisfies it too.
type Database interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByReference(ctx context.Context, reference string) (*models.Payment, error)
	Update(ctx context.Context, payment *models.Payment) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.Payment, error)
}

type paymentRepo struct {
	db Database
}

func NewPaymentRepo(db Database) PaymentRepository {
	return &paymentRepo{db: db}
}

const paymentColumns = `id, account_id, reference, amount, currency, email, status, channel, authorization_url, access_code, tier, billing_period, gateway_txn_id, metadata, paid_at, created_at, updated_at`

func (r *paymentRepo) Create(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (id, account_id, reference, amount, currency, email, status, channel, authorization_url, access_code, tier, billing_period, gateway_txn_id, metadata, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query,
		payment.ID, payment.AccountID, payment.Reference, payment.Amount, payment.Currency,
		payment.Email, payment.Status, payment.Channel, payment.AuthorizationURL, payment.AccessCode,
		payment.Tier, payment.BillingPeriod, payment.GatewayTxnID, payment.Metadata, payment.PaidAt)
	return err
}

func (r *paymentRepo) GetByReference(ctx context.Context, reference string) (*models.Payment, error) {
	payment := &models.Payment{}
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE reference = $1
	`
	err := r.db.QueryRow(ctx, query, reference).Scan(
		&payment.ID, &payment.AccountID, &payment.Reference, &payment.Amount, &payment.Currency,
		&payment.Email, &payment.Status, &payment.Channel, &payment.AuthorizationURL, &payment.AccessCode,
		&payment.Tier, &payment.BillingPeriod, &payment.GatewayTxnID, &payment.Metadata, &payment.PaidAt,
		&payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("payment %s: %w", reference, common.ErrNotFound)
		}
		return nil, err
	}
	return payment, nil
}

func (r *paymentRepo) Update(ctx context.Context, payment *models.Payment) error {
	query := `
		UPDATE payments
		SET status = $1, channel = $2, gateway_txn_id = $3, paid_at = $4, updated_at = NOW()
		WHERE reference = $5
	`
	_, err := r.db.Exec(ctx, query, payment.Status, payment.Channel, payment.GatewayTxnID, payment.PaidAt, payment.Reference)
	return err
}

func (r *paymentRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		payment := &models.Payment{}
		if err := rows.Scan(
			&payment.ID, &payment.AccountID, &payment.Reference, &payment.Amount, &payment.Currency,
			&payment.Email, &payment.Status, &payment.Channel, &payment.AuthorizationURL, &payment.AccessCode,
			&payment.Tier, &payment.BillingPeriod, &payment.GatewayTxnID, &payment.Metadata, &payment.PaidAt,
			&payment.CreatedAt, &payment.UpdatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}
