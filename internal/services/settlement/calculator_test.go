package settlement_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/kevin07696/settlement-service/internal/adapters/cache"
	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
	"github.com/kevin07696/settlement-service/internal/services/settlement"
	"github.com/kevin07696/settlement-service/internal/testutil/fakes"
	"github.com/kevin07696/settlement-service/internal/testutil/fixtures"
	"github.com/kevin07696/settlement-service/internal/testutil/harness"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wk = fixtures.Week2025W07

func setup(t *testing.T) *harness.Env {
	t.Helper()
	env := harness.New(nil, 0)
	env.SeedStandardWeek()
	return env
}

func money(t *testing.T, want string, got interface{ StringFixed(int32) string }, field string) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2), field)
}

func TestGetDriverWeekSettlement_Breakdown(t *testing.T) {
	env := setup(t)

	rec, err := env.Calculator.GetDriverWeekSettlement(context.Background(), "d1", wk, false)
	require.NoError(t, err)

	money(t, "1000.00", rec.GrossEarnings, "gross")
	money(t, "600.00", rec.EarningsByPlatform[models.PlatformEarningsA], "earnings_a")
	money(t, "60.00", rec.VAT, "vat")
	money(t, "940.00", rec.NetAfterVAT, "net after vat")
	money(t, "35.00", rec.AdminFee.Amount, "admin fee")
	assert.Equal(t, models.FeeSourceDefault, rec.AdminFee.Source)
	money(t, "29.75", rec.FuelCost, "fuel")
	money(t, "12.40", rec.TollCost, "tolls")
	money(t, "0.00", rec.RentalFee, "rental")
	money(t, "105.00", rec.FinancingCost, "financing")
	require.Len(t, rec.FinancingLines, 1)
	money(t, "757.85", rec.BaseNet, "base net")
	money(t, "757.85", rec.NetPayable, "net payable")
	assert.Equal(t, 60, rec.Trips)

	assert.Equal(t, models.PaymentPending, rec.PaymentStatus)
	assert.NotEmpty(t, rec.ID)
	assert.NotEmpty(t, rec.PolicyVersion)
	assert.Empty(t, rec.Diagnostics)

	stored := env.Store.Settlement("d1", wk)
	require.NotNil(t, stored)
	assert.True(t, stored.NetPayable.Equal(rec.NetPayable))
}

func TestGetDriverWeekSettlement_Deterministic(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	first, err := env.Calculator.GetDriverWeekSettlement(ctx, "d1", wk, true)
	require.NoError(t, err)
	second, err := env.Calculator.GetDriverWeekSettlement(ctx, "d1", wk, true)
	require.NoError(t, err)

	assert.True(t, first.NetPayable.Equal(second.NetPayable))
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.PolicyVersion, second.PolicyVersion)
	assert.Equal(t, int64(2), env.Store.Settlement("d1", wk).Version)
}

func TestGetDriverWeekSettlement_RecomputesWithNewData(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	_, err := env.Calculator.GetDriverWeekSettlement(ctx, "d1", wk, false)
	require.NoError(t, err)

	env.Earnings.SetEntries(fixtures.Entry("d1", wk, "earnings_a", "1100", 44))

	rec, err := env.Calculator.GetDriverWeekSettlement(ctx, "d1", wk, false)
	require.NoError(t, err)
	// 1100 - 66 - 35 - 29.75 - 12.40 - 105
	money(t, "851.85", rec.NetPayable, "net payable")
}

func TestGetDriverWeekSettlement_PaidWeekIsFrozen(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	draft, err := env.Calculator.GetDriverWeekSettlement(ctx, "d1", wk, false)
	require.NoError(t, err)

	ok, err := env.Store.Settlements().MarkPaid(ctx, nil, draft.ID, "tx-1", draft.SettlementAmounts.Clone(), time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	paidVersion := env.Store.Settlement("d1", wk).Version

	// Ingestion and policy both change after payment.
	env.Earnings.SetEntries(fixtures.Entry("d1", wk, "earnings_a", "5000", 200))
	env.UsePolicy(func(p *models.PolicySnapshot) { p.VATRate = fixtures.Dec("0.21") })

	rec, err := env.Calculator.GetDriverWeekSettlement(ctx, "d1", wk, true)
	require.NoError(t, err)

	assert.True(t, rec.IsPaid())
	money(t, "757.85", rec.NetPayable, "net payable")
	money(t, "1000.00", rec.GrossEarnings, "gross")
	require.NotNil(t, rec.PaymentSnapshot)
	assert.True(t, rec.PaymentSnapshot.NetPayable.Equal(rec.NetPayable))

	stored := env.Store.Settlement("d1", wk)
	assert.Equal(t, paidVersion, stored.Version, "a paid record must not be written")
}

func TestGetDriverWeekSettlement_CommitLandsDuringRecompute(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	draft, err := env.Calculator.GetDriverWeekSettlement(ctx, "d1", wk, false)
	require.NoError(t, err)
	snapshot := draft.SettlementAmounts.Clone()

	env.Earnings.SetEntries(fixtures.Entry("d1", wk, "earnings_a", "2000", 80))
	env.Store.OnCall(fakes.OpSettlementUpdate, func() {
		_, err := env.Store.Settlements().MarkPaid(ctx, nil, draft.ID, "tx-1", snapshot, time.Now())
		require.NoError(t, err)
	})

	rec, err := env.Calculator.GetDriverWeekSettlement(ctx, "d1", wk, true)
	require.NoError(t, err)

	assert.True(t, rec.IsPaid())
	money(t, "757.85", rec.NetPayable, "net payable")
	money(t, "757.85", env.Store.Settlement("d1", wk).NetPayable, "stored net payable")
}

func TestGetDriverWeekSettlement_NoRowsIsNoData(t *testing.T) {
	env := setup(t)

	_, err := env.Calculator.GetDriverWeekSettlement(context.Background(), "d1", "2025-W20", false)
	require.Error(t, err)
	assert.True(t, domain.IsNoDataError(err))
	assert.False(t, domain.IsNotFoundError(err))
	assert.Nil(t, env.Store.Settlement("d1", "2025-W20"))
}

func TestGetDriverWeekSettlement_ZeroEarningsWeek(t *testing.T) {
	env := setup(t)
	env.Store.AddDriver(fixtures.NewDriver("d9").Build())
	env.Earnings.SetEntries(fixtures.Entry("d9", wk, "earnings_a", "0", 0))

	rec, err := env.Calculator.GetDriverWeekSettlement(context.Background(), "d9", wk, false)
	require.NoError(t, err)
	money(t, "0.00", rec.GrossEarnings, "gross")
	money(t, "-35.00", rec.NetPayable, "net payable")
}

func TestGetDriverWeekSettlement_UnknownDriver(t *testing.T) {
	env := setup(t)

	_, err := env.Calculator.GetDriverWeekSettlement(context.Background(), "ghost", wk, false)
	require.Error(t, err)
	assert.True(t, domain.IsNotFoundError(err))
}

func TestGetDriverWeekSettlement_InvalidWeek(t *testing.T) {
	env := setup(t)

	_, err := env.Calculator.GetDriverWeekSettlement(context.Background(), "d1", "2025-07", false)
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))
}

func TestGetDriverWeekSettlement_ExemptionBeatsOverride(t *testing.T) {
	env := harness.New(nil, 0)
	env.Store.AddDriver(fixtures.NewDriver("d1").WithFeeOverride(models.FeeModePercentOfNet, "10").Build())
	env.Store.AddExemption(models.ExemptionWindow{
		ID:       "ex-1",
		DriverID: "d1",
		From:     time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
		Reason:   "onboarding",
	})
	env.Earnings.SetEntries(fixtures.Entry("d1", wk, "earnings_a", "1000", 50))

	rec, err := env.Calculator.GetDriverWeekSettlement(context.Background(), "d1", wk, false)
	require.NoError(t, err)

	assert.Equal(t, models.FeeSourceExempt, rec.AdminFee.Source)
	money(t, "0.00", rec.AdminFee.Amount, "admin fee")
	money(t, "940.00", rec.NetPayable, "net payable")
}

func TestGetDriverWeekSettlement_RenterPaysRental(t *testing.T) {
	env := harness.New(nil, 0)
	env.Store.AddDriver(fixtures.NewDriver("r1").Renter("180").Build())
	env.Earnings.SetEntries(fixtures.Entry("r1", wk, "earnings_b", "1000", 50))

	rec, err := env.Calculator.GetDriverWeekSettlement(context.Background(), "r1", wk, false)
	require.NoError(t, err)

	money(t, "180.00", rec.RentalFee, "rental")
	// 940 - 35 - 180
	money(t, "725.00", rec.NetPayable, "net payable")
}

func TestGetDriverWeekSettlement_AdditionsStack(t *testing.T) {
	env := setup(t)
	env.Store.AddTier(models.GoalTier{ID: "t1", MinRides: 50, MinRevenue: fixtures.Dec("900"), Reward: fixtures.Dec("25"), Active: true})
	env.UsePolicy(func(p *models.PolicySnapshot) {
		p.GoalsEnabled = true
		p.Commission.Enabled = true
		p.Commission.Rules[models.DriverTypeAffiliate] = models.CommissionRule{
			Mode:  models.CommissionFixed,
			Value: fixtures.Dec("10"),
		}
	})

	rec, err := env.Calculator.GetDriverWeekSettlement(context.Background(), "d1", wk, false)
	require.NoError(t, err)

	money(t, "757.85", rec.BaseNet, "base net")
	money(t, "10.00", rec.ExtraCommission, "commission")
	money(t, "25.00", rec.GoalReward, "goal")
	money(t, "792.85", rec.NetPayable, "net payable")
}

func TestGetDriverWeekSettlement_AccumulatorFailureIsDiagnostic(t *testing.T) {
	env := setup(t)
	env.UsePolicy(func(p *models.PolicySnapshot) {
		p.GoalsEnabled = true
		p.Referral.Enabled = true
	})
	env.Store.FailOn(fakes.OpReferralSum, errors.New("referral table locked"))
	env.Store.FailOn(fakes.OpGoalList, errors.New("goal service down"))

	rec, err := env.Calculator.GetDriverWeekSettlement(context.Background(), "d1", wk, false)
	require.NoError(t, err)

	money(t, "0.00", rec.ReferralBonus, "referral")
	money(t, "0.00", rec.GoalReward, "goal")
	assert.True(t, rec.NetPayable.Equal(rec.BaseNet))

	sources := map[string]string{}
	for _, d := range rec.Diagnostics {
		assert.Equal(t, settlement.DiagPartialSourceFailure, d.Code)
		sources[d.Source] = d.Message
	}
	assert.Contains(t, sources["referral"], "referral table locked")
	assert.Contains(t, sources["goal"], "goal service down")
}

func TestGetDriverWeekSettlement_PartialIngestionFailure(t *testing.T) {
	env := setup(t)
	env.Expenses.Fail(errors.New("fuel card API 503"))

	rec, err := env.Calculator.GetDriverWeekSettlement(context.Background(), "d1", wk, false)
	require.NoError(t, err)

	money(t, "0.00", rec.FuelCost, "fuel")
	require.Len(t, rec.Diagnostics, 1)
	assert.Equal(t, settlement.DiagPartialSourceFailure, rec.Diagnostics[0].Code)
	assert.Equal(t, "ingestion:expenses", rec.Diagnostics[0].Source)
}

func TestGetDriverWeekSettlement_AllSourcesFailed(t *testing.T) {
	env := setup(t)
	env.Earnings.Fail(errors.New("down"))
	env.Expenses.Fail(errors.New("down"))

	_, err := env.Calculator.GetDriverWeekSettlement(context.Background(), "d1", wk, false)
	require.Error(t, err)
	assert.True(t, domain.IsStorageError(err))
}

func TestGetDriverWeekSettlement_UnmappedPlatform(t *testing.T) {
	env := setup(t)
	env.Expenses.SetEntries(
		fixtures.Entry("d1", wk, "fuel", "29.75", 0),
		fixtures.Entry("d1", wk, "tolls", "12.40", 0),
		fixtures.Entry("d1", wk, "parking", "9.00", 0),
	)

	rec, err := env.Calculator.GetDriverWeekSettlement(context.Background(), "d1", wk, false)
	require.NoError(t, err)

	money(t, "757.85", rec.NetPayable, "net payable")
	require.Len(t, rec.Diagnostics, 1)
	assert.Equal(t, settlement.DiagUnmappedPlatform, rec.Diagnostics[0].Code)
	assert.Contains(t, rec.Diagnostics[0].Message, "parking")
}

func TestGetDriverWeekSettlement_ReferralFlowsToUpline(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	env.UsePolicy(func(p *models.PolicySnapshot) { p.Referral.Enabled = true })

	env.Store.AddDriver(fixtures.NewDriver("d2").ReferredBy("d1").Build())
	env.Earnings.SetEntries(
		fixtures.Entry("d1", wk, "earnings_a", "600", 40),
		fixtures.Entry("d1", wk, "earnings_b", "400", 20),
		fixtures.Entry("d2", wk, "earnings_a", "500", 25),
	)

	// d2: 500 - 30 - 35 = 435.00 base, 2% to d1 = 8.70
	for i := 0; i < 3; i++ {
		_, err := env.Calculator.GetDriverWeekSettlement(ctx, "d2", wk, true)
		require.NoError(t, err)
	}
	require.Len(t, env.Store.Referrals(), 1)

	rec, err := env.Calculator.GetDriverWeekSettlement(ctx, "d1", wk, true)
	require.NoError(t, err)
	money(t, "8.70", rec.ReferralBonus, "referral")
	money(t, "766.55", rec.NetPayable, "net payable")

	rec, err = env.Calculator.GetDriverWeekSettlement(ctx, "d1", wk, true)
	require.NoError(t, err)
	money(t, "8.70", rec.ReferralBonus, "referral after recompute")
}

// commitBeforeDraftPut runs commit right before the first pending draft is
// cached, the window between a recompute's write and its cache fill.
type commitBeforeDraftPut struct {
	ports.SettlementCache
	once   sync.Once
	commit func()
}

func (c *commitBeforeDraftPut) Put(ctx context.Context, rec *models.SettlementRecord, ttl time.Duration) error {
	if !rec.IsPaid() && c.commit != nil {
		c.once.Do(c.commit)
	}
	return c.SettlementCache.Put(ctx, rec, ttl)
}

func TestGetDriverWeekSettlement_DraftCachedAfterCommitIsNotServed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redisCache := cache.NewSettlementCache(client)

	racing := &commitBeforeDraftPut{SettlementCache: redisCache}
	env := harness.New(racing, time.Minute)
	env.SeedStandardWeek()
	ctx := context.Background()

	racing.commit = func() {
		rec := env.Store.Settlement("d1", wk)
		ok, err := env.Store.Settlements().MarkPaid(ctx, nil, rec.ID, "tx-1", rec.SettlementAmounts.Clone(), time.Now())
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, redisCache.Invalidate(ctx, "d1", wk))
	}

	draft, err := env.Calculator.GetDriverWeekSettlement(ctx, "d1", wk, true)
	require.NoError(t, err)
	assert.False(t, draft.IsPaid(), "computed before the commit landed")

	rec, err := env.Calculator.GetDriverWeekSettlement(ctx, "d1", wk, false)
	require.NoError(t, err)
	assert.True(t, rec.IsPaid(), "cached reads must see the payment")

	cached, err := redisCache.Get(ctx, "d1", wk)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.True(t, cached.IsPaid())
}
