package services

import (
	"context"
	"fmt"
	"time"

	"meterbill/internal/caching"
	"meterbill/internal/common"
	"meterbill/internal/models"
	"meterbill/internal/repositories"

	"github.com/google/uuid"
)

// Fixed subscription terms. Deliberately duration-based, not calendar-aware:
// changing this changes billing semantics.
const (
	MonthlyTerm = 30 * 24 * time.Hour
	YearlyTerm  = 365 * 24 * time.Hour
)

// TermFor returns the subscription term purchased for a billing period.
func TermFor(period models.BillingPeriod) time.Duration {
	if period == models.BillingYearly {
		return YearlyTerm
	}
	return MonthlyTerm
}

// QuotaService answers "can this account make a request", records admitted
// requests against the daily bucket, and owns subscription tier changes.
type QuotaService interface {
	EffectiveTier(ctx context.Context, accountID uuid.UUID) (models.Tier, error)
	CanMakeRequest(ctx context.Context, accountID uuid.UUID) (bool, error)
	RecordRequest(ctx context.Context, accountID uuid.UUID) error
	UsageStats(ctx context.Context, accountID uuid.UUID) (*models.UsageSnapshot, error)
	GetSubscription(ctx context.Context, accountID uuid.UUID) (*models.Subscription, error)
	UpgradeSubscription(ctx context.Context, accountID uuid.UUID, tier models.Tier, period models.BillingPeriod) (*models.Subscription, error)
	SweepExpired(ctx context.Context) (int, error)
}

type quotaService struct {
	subscriptionRepo repositories.SubscriptionRepository
	cacheSvc         caching.CacheService
	now              func() time.Time
}

// NewQuotaService creates a QuotaService. now is injectable for tests; pass
// nil for wall-clock time.
func NewQuotaService(subscriptionRepo repositories.SubscriptionRepository, cacheSvc caching.CacheService, now func() time.Time) QuotaService {
	if now == nil {
		now = time.Now
	}
	return &quotaService{
		subscriptionRepo: subscriptionRepo,
		cacheSvc:         cacheSvc,
		now:              now,
	}
}

// EffectiveTier resolves the tier the account is entitled to right now.
// A stored pro subscription that is inactive or past its expiry counts as
// free (lazy expiry; the background sweep only persists what this already
// decides).
func (s *quotaService) EffectiveTier(ctx context.Context, accountID uuid.UUID) (models.Tier, error) {
	subscription, err := s.subscriptionRepo.GetByAccount(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("failed to load subscription: %w", err)
	}
	if subscription == nil || !subscription.IsActive || subscription.Expired(s.now()) {
		return models.TierFree, nil
	}
	return subscription.Tier, nil
}

func (s *quotaService) CanMakeRequest(ctx context.Context, accountID uuid.UUID) (bool, error) {
	tier, err := s.EffectiveTier(ctx, accountID)
	if err != nil {
		return false, err
	}

	quota := QuotaForTier(tier)
	if quota.Unlimited {
		return true, nil
	}

	count, err := s.cacheSvc.GetUsage(ctx, accountID, models.DayBucket(s.now()))
	if err != nil {
		return false, fmt.Errorf("failed to read usage counter: %w", err)
	}
	return count < quota.RequestsPerDay, nil
}

// RecordRequest admits and counts one request. The counter is re-read
// immediately before the increment; an earlier CanMakeRequest answer is
// never trusted across a suspension point. Pro accounts never touch the
// counter.
func (s *quotaService) RecordRequest(ctx context.Context, accountID uuid.UUID) error {
	tier, err := s.EffectiveTier(ctx, accountID)
	if err != nil {
		return err
	}

	quota := QuotaForTier(tier)
	if quota.Unlimited {
		return nil
	}

	bucket := models.DayBucket(s.now())
	count, err := s.cacheSvc.GetUsage(ctx, accountID, bucket)
	if err != nil {
		return fmt.Errorf("failed to read usage counter: %w", err)
	}
	if count >= quota.RequestsPerDay {
		return fmt.Errorf("account %s used %d of %d requests: %w", accountID, count, quota.RequestsPerDay, common.ErrQuotaExceeded)
	}

	if _, err := s.cacheSvc.IncrementUsage(ctx, accountID, bucket); err != nil {
		return fmt.Errorf("failed to increment usage counter: %w", err)
	}
	return nil
}

func (s *quotaService) UsageStats(ctx context.Context, accountID uuid.UUID) (*models.UsageSnapshot, error) {
	tier, err := s.EffectiveTier(ctx, accountID)
	if err != nil {
		return nil, err
	}

	bucket := models.DayBucket(s.now())
	count, err := s.cacheSvc.GetUsage(ctx, accountID, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage counter: %w", err)
	}

	snapshot := &models.UsageSnapshot{
		AccountID:    accountID,
		Tier:         tier,
		RequestsUsed: count,
		DayBucket:    bucket,
		ResetTime:    models.BucketRollover(bucket),
	}
	if quota := QuotaForTier(tier); !quota.Unlimited {
		limit := quota.RequestsPerDay
		snapshot.RequestsLimit = &limit
	}
	return snapshot, nil
}

func (s *quotaService) GetSubscription(ctx context.Context, accountID uuid.UUID) (*models.Subscription, error) {
	return s.subscriptionRepo.GetByAccount(ctx, accountID)
}

// UpgradeSubscription upserts the account's subscription to the given tier
// with a fresh term. started_at is preserved for existing subscribers.
func (s *quotaService) UpgradeSubscription(ctx context.Context, accountID uuid.UUID, tier models.Tier, period models.BillingPeriod) (*models.Subscription, error) {
	existing, err := s.subscriptionRepo.GetByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	now := s.now()
	expiresAt := now.Add(TermFor(period))

	subscription := &models.Subscription{
		ID:        uuid.New(),
		AccountID: accountID,
		Tier:      tier,
		IsActive:  true,
		StartedAt: now,
		RenewedAt: &now,
		ExpiresAt: &expiresAt,
	}
	if existing != nil {
		subscription.ID = existing.ID
		subscription.StartedAt = existing.StartedAt
	}

	if err := s.subscriptionRepo.Upsert(ctx, subscription); err != nil {
		return nil, fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return subscription, nil
}

// SweepExpired persists the free-tier demotion for lapsed subscriptions.
// Purely an optimization; EffectiveTier already treats them as free.
func (s *quotaService) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.subscriptionRepo.ListExpired(ctx, 1000)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired subscriptions: %w", err)
	}

	swept := 0
	for _, subscription := range expired {
		subscription.IsActive = false
		if err := s.subscriptionRepo.Update(ctx, subscription); err != nil {
			return swept, fmt.Errorf("failed to deactivate subscription %s: %w", subscription.ID, err)
		}
		swept++
	}
	return swept, nil
}
