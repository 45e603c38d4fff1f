package models

import (
	"time"

	"github.com/google/uuid"
)

// Invoice is emitted exactly once per settled payment. Its ID is derived
// deterministically from the payment ID so repeated finalization overwrites
// instead of duplicating.
type Invoice struct {
	ID            uuid.UUID `json:"id" db:"id"`
	AccountID     uuid.UUID `json:"account_id" db:"account_id"`
	PaymentID     uuid.UUID `json:"payment_id" db:"payment_id"`
	InvoiceNumber string    `json:"invoice_number" db:"invoice_number"`
	Amount        int64     `json:"amount" db:"amount"`
	Currency      string    `json:"currency" db:"currency"`
	PeriodStart   time.Time `json:"period_start" db:"period_start"`
	PeriodEnd     time.Time `json:"period_end" db:"period_end"`
	Paid          bool      `json:"paid" db:"paid"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
