package common

import "errors"

// Sentinel errors for the metering and payment flows. Callers branch with
// errors.Is; services wrap these with fmt.Errorf("...: %w", err) to add
// detail without losing the category.
var (
	// ErrQuotaExceeded is the expected, user-facing admission failure for
	// free-tier accounts that have exhausted today's bucket.
	ErrQuotaExceeded = errors.New("daily request quota exceeded")

	// ErrNotConfigured means the gateway has no credentials. Fatal for
	// payment flows until an operator supplies them.
	ErrNotConfigured = errors.New("payment gateway is not configured")

	// ErrInvalidPlan is a caller error: unknown (tier, period, currency)
	// pricing tuple.
	ErrInvalidPlan = errors.New("unknown subscription plan")

	// ErrGatewayRejected is a well-formed negative gateway response.
	// Retrying without changing input will not help.
	ErrGatewayRejected = errors.New("gateway rejected the request")

	// ErrMalformedResponse is a 2xx gateway response whose body could not
	// be parsed. Unlike ErrGatewayRejected this is safe to retry blindly.
	ErrMalformedResponse = errors.New("gateway response was unparseable")

	// ErrTransport covers network failures and non-2xx gateway statuses.
	// Retriable by the caller, never retried internally.
	ErrTransport = errors.New("gateway transport failure")

	// ErrInvalidSignature means a webhook payload failed signature
	// verification. No partial processing happens.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrNotFound means no local record exists for the given key.
	ErrNotFound = errors.New("record not found")
)
