package models

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the subscription level gating quota and payment eligibility.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// ParseTier maps a wire value to a known tier.
func ParseTier(s string) (Tier, bool) {
	switch Tier(s) {
	case TierFree:
		return TierFree, true
	case TierPro:
		return TierPro, true
	}
	return "", false
}

// Subscription holds the single subscription record for an account.
// A nil ExpiresAt means the subscription never expires while active.
type Subscription struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	AccountID uuid.UUID  `json:"account_id" db:"account_id"`
	Tier      Tier       `json:"tier" db:"tier"`
	IsActive  bool       `json:"is_active" db:"is_active"`
	StartedAt time.Time  `json:"started_at" db:"started_at"`
	RenewedAt *time.Time `json:"renewed_at" db:"renewed_at"`
	ExpiresAt *time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// Expired reports whether the subscription has lapsed at the given instant.
func (s *Subscription) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}
