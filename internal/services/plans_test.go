package services

import (
	"testing"

	"meterbill/internal/common"
	"meterbill/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestQuotaForTier(t *testing.T) {
	assert.Equal(t, FreeDailyLimit, QuotaForTier(models.TierFree).RequestsPerDay)
	assert.False(t, QuotaForTier(models.TierFree).Unlimited)
	assert.True(t, QuotaForTier(models.TierPro).Unlimited)

	// Unknown tiers degrade to free, never to unlimited.
	unknown := QuotaForTier(models.Tier("enterprise"))
	assert.False(t, unknown.Unlimited)
	assert.Equal(t, FreeDailyLimit, unknown.RequestsPerDay)
}

func TestPriceFor(t *testing.T) {
	amount, err := PriceFor(models.TierPro, models.BillingMonthly, "NGN")
	assert.NoError(t, err)
	assert.Equal(t, ProMonthlyNGN, amount)

	amount, err = PriceFor(models.TierPro, models.BillingYearly, "USD")
	assert.NoError(t, err)
	assert.Equal(t, ProYearlyUSD, amount)

	_, err = PriceFor(models.TierFree, models.BillingMonthly, "NGN")
	assert.ErrorIs(t, err, common.ErrInvalidPlan)

	_, err = PriceFor(models.TierPro, models.BillingMonthly, "EUR")
	assert.ErrorIs(t, err, common.ErrInvalidPlan)
}

func TestAvailablePlans(t *testing.T) {
	plans := AvailablePlans()
	assert.Len(t, plans, 4)
	for _, plan := range plans {
		assert.Equal(t, models.TierPro, plan.Tier)
		assert.Greater(t, plan.Amount, int64(0))
	}
}
