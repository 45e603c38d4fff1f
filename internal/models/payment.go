package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the lifecycle state of a gateway transaction.
// Pending is entered only at initialization; every other status is terminal.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSuccess   PaymentStatus = "success"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusAbandoned PaymentStatus = "abandoned"
	PaymentStatusReversed  PaymentStatus = "reversed"
	PaymentStatusQueued    PaymentStatus = "queued"
)

// ParsePaymentStatus maps a gateway-reported status string to a local status.
func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	switch PaymentStatus(s) {
	case PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed,
		PaymentStatusAbandoned, PaymentStatusReversed, PaymentStatusQueued:
		return PaymentStatus(s), true
	}
	return "", false
}

// BillingPeriod is the subscription billing cadence.
type BillingPeriod string

const (
	BillingMonthly BillingPeriod = "monthly"
	BillingYearly  BillingPeriod = "yearly"
)

// ParseBillingPeriod maps a wire value to a known billing period.
func ParseBillingPeriod(s string) (BillingPeriod, bool) {
	switch BillingPeriod(s) {
	case BillingMonthly, BillingYearly:
		return BillingPeriod(s), true
	}
	return "", false
}

// Payment is one gateway transaction, keyed by its globally unique
// reference. Amounts are integers in the smallest currency unit (kobo,
// cents). Records are never deleted; they are the audit trail.
type Payment struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	AccountID        uuid.UUID     `json:"account_id" db:"account_id"`
	Reference        string        `json:"reference" db:"reference"`
	Amount           int64         `json:"amount" db:"amount"`
	Currency         string        `json:"currency" db:"currency"`
	Email            string        `json:"email" db:"email"`
	Status           PaymentStatus `json:"status" db:"status"`
	Channel          *string       `json:"channel" db:"channel"`
	AuthorizationURL string        `json:"authorization_url" db:"authorization_url"`
	AccessCode       string        `json:"access_code" db:"access_code"`
	Tier             Tier          `json:"tier" db:"tier"`
	BillingPeriod    BillingPeriod `json:"billing_period" db:"billing_period"`
	GatewayTxnID     *string       `json:"gateway_txn_id" db:"gateway_txn_id"`
	Metadata         *string       `json:"metadata" db:"metadata"`
	PaidAt           *time.Time    `json:"paid_at" db:"paid_at"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}
