package services

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"meterbill/internal/common"
	"meterbill/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type MockSubscriptionRepository struct {
	mock.Mock
}

func (m *MockSubscriptionRepository) GetByAccount(ctx context.Context, accountID uuid.UUID) (*models.Subscription, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) Upsert(ctx context.Context, subscription *models.Subscription) error {
	args := m.Called(ctx, subscription)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) Update(ctx context.Context, subscription *models.Subscription) error {
	args := m.Called(ctx, subscription)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) ListExpired(ctx context.Context, limit int) ([]*models.Subscription, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

// fakeCounterStore is an in-memory stand-in for the redis counter store so
// multi-request scenarios count for real.
type fakeCounterStore struct {
	mu       sync.Mutex
	counters map[string]int64
}

func newFakeCounterStore() *fakeCounterStore {
	return &fakeCounterStore{counters: make(map[string]int64)}
}

func (f *fakeCounterStore) key(accountID uuid.UUID, bucket int64) string {
	return accountID.String() + ":" + strconv.FormatInt(bucket, 10)
}

func (f *fakeCounterStore) GetUsage(ctx context.Context, accountID uuid.UUID, bucket int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters[f.key(accountID, bucket)], nil
}

func (f *fakeCounterStore) IncrementUsage(ctx context.Context, accountID uuid.UUID, bucket int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[f.key(accountID, bucket)]++
	return f.counters[f.key(accountID, bucket)], nil
}

func (f *fakeCounterStore) PruneStaleUsage(ctx context.Context, currentBucket int64) (int, error) {
	return 0, nil
}

func (f *fakeCounterStore) SetString(ctx context.Context, key string, value string, ttl time.Duration) error {
	return nil
}

func (f *fakeCounterStore) GetString(ctx context.Context, key string) (string, error) {
	return "", nil
}

func (f *fakeCounterStore) Delete(ctx context.Context, key string) error {
	return nil
}

type QuotaServiceTestSuite struct {
	suite.Suite
	mockRepo  *MockSubscriptionRepository
	counters  *fakeCounterStore
	clock     time.Time
	service   QuotaService
	accountID uuid.UUID
}

func (suite *QuotaServiceTestSuite) SetupTest() {
	suite.mockRepo = &MockSubscriptionRepository{}
	suite.counters = newFakeCounterStore()
	suite.clock = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	suite.service = NewQuotaService(suite.mockRepo, suite.counters, func() time.Time {
		return suite.clock
	})
	suite.accountID = uuid.New()

	suite.mockRepo.Test(suite.T())
}

func (suite *QuotaServiceTestSuite) TearDownTest() {
	suite.mockRepo.AssertExpectations(suite.T())
}

func TestQuotaServiceTestSuite(t *testing.T) {
	suite.Run(t, new(QuotaServiceTestSuite))
}

func (suite *QuotaServiceTestSuite) proSubscription(expiresAt *time.Time) *models.Subscription {
	started := suite.clock.Add(-24 * time.Hour)
	return &models.Subscription{
		ID:        uuid.New(),
		AccountID: suite.accountID,
		Tier:      models.TierPro,
		IsActive:  true,
		StartedAt: started,
		ExpiresAt: expiresAt,
	}
}

func (suite *QuotaServiceTestSuite) TestRecordRequest_FreeTierCeiling() {
	ctx := context.Background()
	suite.mockRepo.On("GetByAccount", ctx, suite.accountID).Return(nil, nil)

	for i := int64(0); i < FreeDailyLimit; i++ {
		err := suite.service.RecordRequest(ctx, suite.accountID)
		assert.NoError(suite.T(), err, "request %d should be admitted", i+1)
	}

	err := suite.service.RecordRequest(ctx, suite.accountID)
	assert.ErrorIs(suite.T(), err, common.ErrQuotaExceeded)

	// The saturated counter holds exactly the ceiling; denials never count.
	count, _ := suite.counters.GetUsage(ctx, suite.accountID, models.DayBucket(suite.clock))
	assert.Equal(suite.T(), FreeDailyLimit, count)
}

func (suite *QuotaServiceTestSuite) TestRecordRequest_ProNeverTouchesCounter() {
	ctx := context.Background()
	suite.mockRepo.On("GetByAccount", ctx, suite.accountID).Return(suite.proSubscription(nil), nil)

	for i := 0; i < 100; i++ {
		assert.NoError(suite.T(), suite.service.RecordRequest(ctx, suite.accountID))
	}

	count, _ := suite.counters.GetUsage(ctx, suite.accountID, models.DayBucket(suite.clock))
	assert.Zero(suite.T(), count)
}

func (suite *QuotaServiceTestSuite) TestRecordRequest_DayRolloverResetsAdmission() {
	ctx := context.Background()
	suite.mockRepo.On("GetByAccount", ctx, suite.accountID).Return(nil, nil)

	for i := int64(0); i < FreeDailyLimit; i++ {
		assert.NoError(suite.T(), suite.service.RecordRequest(ctx, suite.accountID))
	}
	assert.ErrorIs(suite.T(), suite.service.RecordRequest(ctx, suite.accountID), common.ErrQuotaExceeded)

	// Crossing midnight addresses a fresh zero-valued bucket.
	previousBucket := models.DayBucket(suite.clock)
	suite.clock = suite.clock.Add(24 * time.Hour)

	assert.NoError(suite.T(), suite.service.RecordRequest(ctx, suite.accountID))

	stats, err := suite.service.UsageStats(ctx, suite.accountID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), stats.RequestsUsed)

	// The saturated counter belongs to yesterday's bucket and stays there.
	count, _ := suite.counters.GetUsage(ctx, suite.accountID, previousBucket)
	assert.Equal(suite.T(), FreeDailyLimit, count)
}

func (suite *QuotaServiceTestSuite) TestCanMakeRequest_ExpiredProTreatedAsFree() {
	ctx := context.Background()
	expired := suite.clock.Add(-time.Hour)
	suite.mockRepo.On("GetByAccount", ctx, suite.accountID).Return(suite.proSubscription(&expired), nil)

	tier, err := suite.service.EffectiveTier(ctx, suite.accountID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.TierFree, tier)

	ok, err := suite.service.CanMakeRequest(ctx, suite.accountID)
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), ok, "expired pro still gets free-tier admission")
}

func (suite *QuotaServiceTestSuite) TestCanMakeRequest_ActiveProAlwaysTrue() {
	ctx := context.Background()
	future := suite.clock.Add(29 * 24 * time.Hour)
	suite.mockRepo.On("GetByAccount", ctx, suite.accountID).Return(suite.proSubscription(&future), nil)

	ok, err := suite.service.CanMakeRequest(ctx, suite.accountID)
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), ok)
}

func (suite *QuotaServiceTestSuite) TestUsageStats_NewAccountDefaults() {
	ctx := context.Background()
	suite.mockRepo.On("GetByAccount", ctx, suite.accountID).Return(nil, nil)

	stats, err := suite.service.UsageStats(ctx, suite.accountID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.TierFree, stats.Tier)
	assert.Equal(suite.T(), int64(0), stats.RequestsUsed)
	assert.NotNil(suite.T(), stats.RequestsLimit)
	assert.Equal(suite.T(), FreeDailyLimit, *stats.RequestsLimit)
	assert.Equal(suite.T(), models.DayBucket(suite.clock), stats.DayBucket)
	assert.True(suite.T(), stats.ResetTime.After(suite.clock))
	assert.True(suite.T(), stats.ResetTime.Sub(suite.clock) <= 24*time.Hour)
}

func (suite *QuotaServiceTestSuite) TestUsageStats_ProHasNoLimit() {
	ctx := context.Background()
	suite.mockRepo.On("GetByAccount", ctx, suite.accountID).Return(suite.proSubscription(nil), nil)

	stats, err := suite.service.UsageStats(ctx, suite.accountID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.TierPro, stats.Tier)
	assert.Nil(suite.T(), stats.RequestsLimit)
}

func (suite *QuotaServiceTestSuite) TestUpgradeSubscription_NewAccount() {
	ctx := context.Background()
	suite.mockRepo.On("GetByAccount", ctx, suite.accountID).Return(nil, nil)
	suite.mockRepo.On("Upsert", ctx, mock.AnythingOfType("*models.Subscription")).Return(nil).Run(func(args mock.Arguments) {
		subscription := args.Get(1).(*models.Subscription)
		assert.Equal(suite.T(), models.TierPro, subscription.Tier)
		assert.True(suite.T(), subscription.IsActive)
		assert.Equal(suite.T(), suite.clock, subscription.StartedAt)
		assert.Equal(suite.T(), suite.clock.Add(MonthlyTerm), *subscription.ExpiresAt)
	})

	subscription, err := suite.service.UpgradeSubscription(ctx, suite.accountID, models.TierPro, models.BillingMonthly)
	assert.NoError(suite.T(), err)
	assert.NotNil(suite.T(), subscription)
}

func (suite *QuotaServiceTestSuite) TestUpgradeSubscription_RenewalKeepsStartedAt() {
	ctx := context.Background()
	existing := suite.proSubscription(nil)
	suite.mockRepo.On("GetByAccount", ctx, suite.accountID).Return(existing, nil)
	suite.mockRepo.On("Upsert", ctx, mock.AnythingOfType("*models.Subscription")).Return(nil).Run(func(args mock.Arguments) {
		subscription := args.Get(1).(*models.Subscription)
		assert.Equal(suite.T(), existing.ID, subscription.ID)
		assert.Equal(suite.T(), existing.StartedAt, subscription.StartedAt)
		assert.Equal(suite.T(), suite.clock.Add(YearlyTerm), *subscription.ExpiresAt)
	})

	_, err := suite.service.UpgradeSubscription(ctx, suite.accountID, models.TierPro, models.BillingYearly)
	assert.NoError(suite.T(), err)
}

func (suite *QuotaServiceTestSuite) TestSweepExpired() {
	ctx := context.Background()
	expired := suite.clock.Add(-time.Hour)
	lapsed := suite.proSubscription(&expired)
	suite.mockRepo.On("ListExpired", ctx, 1000).Return([]*models.Subscription{lapsed}, nil)
	suite.mockRepo.On("Update", ctx, mock.AnythingOfType("*models.Subscription")).Return(nil).Run(func(args mock.Arguments) {
		subscription := args.Get(1).(*models.Subscription)
		assert.False(suite.T(), subscription.IsActive)
	})

	swept, err := suite.service.SweepExpired(ctx)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, swept)
}
