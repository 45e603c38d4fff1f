package repositories

import (
	"context"
	"errors"

	"meterbill/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type SubscriptionRepository interface {
	GetByAccount(ctx context.Context, accountID uuid.UUID) (*models.Subscription, error)
	// Upsert inserts the subscription or updates the existing row for the
	// account, preserving the original started_at on conflict.
	Upsert(ctx context.Context, subscription *models.Subscription) error
	Update(ctx context.Context, subscription *models.Subscription) error
	ListExpired(ctx context.Context, limit int) ([]*models.Subscription, error)
}

type subscriptionRepo struct {
	db Database
}

func NewSubscriptionRepo(db Database) SubscriptionRepository {
	return &subscriptionRepo{db: db}
}

func (r *subscriptionRepo) GetByAccount(ctx context.Context, accountID uuid.UUID) (*models.Subscription, error) {
	subscription := &models.Subscription{}
	query := `
		SELECT id, account_id, tier, is_active, started_at, renewed_at, expires_at, created_at, updated_at
		FROM subscriptions
		WHERE account_id = $1
	`
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&subscription.ID, &subscription.AccountID, &subscription.Tier, &subscription.IsActive,
		&subscription.StartedAt, &subscription.RenewedAt, &subscription.ExpiresAt,
		&subscription.CreatedAt, &subscription.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // no subscription yet; account is implicitly free
		}
		return nil, err
	}
	return subscription, nil
}

func (r *subscriptionRepo) Upsert(ctx context.Context, subscription *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, account_id, tier, is_active, started_at, renewed_at, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (account_id) DO UPDATE
		SET tier = EXCLUDED.tier, is_active = EXCLUDED.is_active, renewed_at = EXCLUDED.renewed_at, expires_at = EXCLUDED.expires_at, updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query,
		subscription.ID, subscription.AccountID, subscription.Tier, subscription.IsActive,
		subscription.StartedAt, subscription.RenewedAt, subscription.ExpiresAt)
	return err
}

func (r *subscriptionRepo) Update(ctx context.Context, subscription *models.Subscription) error {
	query := `
		UPDATE subscriptions
		SET tier = $1, is_active = $2, renewed_at = $3, expires_at = $4, updated_at = NOW()
		WHERE account_id = $5
	`
	_, err := r.db.Exec(ctx, query,
		subscription.Tier, subscription.IsActive, subscription.RenewedAt, subscription.ExpiresAt, subscription.AccountID)
	return err
}

func (r *subscriptionRepo) ListExpired(ctx context.Context, limit int) ([]*models.Subscription, error) {
	query := `
		SELECT id, account_id, tier, is_active, started_at, renewed_at, expires_at, created_at, updated_at
		FROM subscriptions
		WHERE is_active = TRUE AND expires_at IS NOT NULL AND expires_at < NOW()
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subscriptions []*models.Subscription
	for rows.Next() {
		subscription := &models.Subscription{}
		if err := rows.Scan(
			&subscription.ID, &subscription.AccountID, &subscription.Tier, &subscription.IsActive,
			&subscription.StartedAt, &subscription.RenewedAt, &subscription.ExpiresAt,
			&subscription.CreatedAt, &subscription.UpdatedAt); err != nil {
			return nil, err
		}
		subscriptions = append(subscriptions, subscription)
	}
	return subscriptions, rows.Err()
}
