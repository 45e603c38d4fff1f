package services

import (
	"fmt"

	"meterbill/internal/common"
	"meterbill/internal/models"
)

// TierQuota defines the daily request ceiling for a tier. Unlimited tiers
// carry an explicit flag instead of a sentinel integer so overflow semantics
// never leak into callers.
type TierQuota struct {
	RequestsPerDay int64
	Unlimited      bool
}

// FreeDailyLimit is the free-tier ceiling in the reference pricing.
const FreeDailyLimit int64 = 20

// tierQuotas maps tiers to their quota limits. Adding a tier is one entry.
var tierQuotas = map[models.Tier]TierQuota{
	models.TierFree: {RequestsPerDay: FreeDailyLimit},
	models.TierPro:  {Unlimited: true},
}

// QuotaForTier returns the quota for a tier, defaulting to free for unknown
// tiers.
func QuotaForTier(tier models.Tier) TierQuota {
	if quota, ok := tierQuotas[tier]; ok {
		return quota
	}
	return tierQuotas[models.TierFree]
}

type planKey struct {
	Tier     models.Tier
	Period   models.BillingPeriod
	Currency string
}

// PlanPrice is one purchasable plan entry. Amount is in the smallest
// currency unit (kobo, cents) and is never a float.
type PlanPrice struct {
	Tier     models.Tier          `json:"tier"`
	Period   models.BillingPeriod `json:"billing_period"`
	Currency string               `json:"currency"`
	Amount   int64                `json:"amount"`
}

// Reference pricing for the pro tier.
const (
	ProMonthlyNGN int64 = 500000  // ₦5,000 in kobo
	ProYearlyNGN  int64 = 5000000 // ₦50,000 in kobo
	ProMonthlyUSD int64 = 900     // $9 in cents
	ProYearlyUSD  int64 = 9000    // $90 in cents
)

var planPrices = map[planKey]int64{
	{models.TierPro, models.BillingMonthly, "NGN"}: ProMonthlyNGN,
	{models.TierPro, models.BillingYearly, "NGN"}:  ProYearlyNGN,
	{models.TierPro, models.BillingMonthly, "USD"}: ProMonthlyUSD,
	{models.TierPro, models.BillingYearly, "USD"}:  ProYearlyUSD,
}

// PriceFor resolves the fixed price for a (tier, period, currency) tuple.
// Unknown tuples are a configuration error, not a runtime secret.
func PriceFor(tier models.Tier, period models.BillingPeriod, currency string) (int64, error) {
	amount, ok := planPrices[planKey{tier, period, currency}]
	if !ok {
		return 0, fmt.Errorf("no price for %s/%s/%s: %w", tier, period, currency, common.ErrInvalidPlan)
	}
	return amount, nil
}

// AvailablePlans returns the purchasable plan catalog.
func AvailablePlans() []PlanPrice {
	plans := make([]PlanPrice, 0, len(planPrices))
	for key, amount := range planPrices {
		plans = append(plans, PlanPrice{Tier: key.Tier, Period: key.Period, Currency: key.Currency, Amount: amount})
	}
	return plans
}
