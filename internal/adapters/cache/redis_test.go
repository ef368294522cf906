package cache_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/kevin07696/settlement-service/internal/adapters/cache"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/testutil/fixtures"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*cache.SettlementCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewSettlementCache(client), mr
}

func paidRecord() *models.SettlementRecord {
	snap := models.SettlementAmounts{
		EarningsByPlatform: map[models.Platform]decimal.Decimal{models.PlatformEarningsA: fixtures.Dec("600")},
		GrossEarnings:      fixtures.Dec("1000"),
		NetPayable:         fixtures.Dec("757.85"),
	}
	txID := "tx-1"
	return &models.SettlementRecord{
		ID:                   "rec-1",
		DriverID:             "d1",
		WeekID:               fixtures.Week2025W07,
		SettlementAmounts:    snap.Clone(),
		PaymentStatus:        models.PaymentPaid,
		PaymentSnapshot:      &snap,
		PaymentTransactionID: &txID,
		Version:              3,
	}
}

func TestSettlementCache_RoundTrip(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	miss, err := c.Get(ctx, "d1", fixtures.Week2025W07)
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, c.Put(ctx, paidRecord(), 0))

	got, err := c.Get(ctx, "d1", fixtures.Week2025W07)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IsPaid())
	assert.Equal(t, "757.85", got.NetPayable.StringFixed(2))
	require.NotNil(t, got.PaymentSnapshot)
	assert.Equal(t, "600.00", got.PaymentSnapshot.EarningsByPlatform[models.PlatformEarningsA].StringFixed(2))
	assert.EqualValues(t, 3, got.Version)
}

func TestSettlementCache_TTLAndInvalidate(t *testing.T) {
	c, mr := setup(t)
	ctx := context.Background()

	draft := paidRecord()
	draft.PaymentStatus = models.PaymentPending
	draft.PaymentSnapshot = nil
	require.NoError(t, c.Put(ctx, draft, 30*time.Second))

	mr.FastForward(31 * time.Second)
	got, err := c.Get(ctx, "d1", fixtures.Week2025W07)
	require.NoError(t, err)
	assert.Nil(t, got, "drafts expire")

	require.NoError(t, c.Put(ctx, paidRecord(), 0))
	mr.FastForward(24 * time.Hour)
	got, err = c.Get(ctx, "d1", fixtures.Week2025W07)
	require.NoError(t, err)
	assert.NotNil(t, got, "paid records do not expire")

	require.NoError(t, c.Invalidate(ctx, "d1", fixtures.Week2025W07))
	got, err = c.Get(ctx, "d1", fixtures.Week2025W07)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSettlementCache_CorruptPayloadIsMiss(t *testing.T) {
	c, mr := setup(t)
	mr.HSet("settlement:v2:d1:2025-W07", "data", "{not json")

	got, err := c.Get(context.Background(), "d1", fixtures.Week2025W07)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, mr.Exists("settlement:v2:d1:2025-W07"))
}

func pendingRecord(version int64, net string) *models.SettlementRecord {
	rec := paidRecord()
	rec.PaymentStatus = models.PaymentPending
	rec.PaymentSnapshot = nil
	rec.PaymentTransactionID = nil
	rec.Version = version
	rec.NetPayable = fixtures.Dec(net)
	return rec
}

func TestSettlementCache_StaleDraftAfterCommit(t *testing.T) {
	c, mr := setup(t)
	ctx := context.Background()
	stale := pendingRecord(2, "757.85")
	require.NoError(t, c.Put(ctx, stale, time.Minute))

	// The commit lands and invalidates, then a slow recompute tries to
	// cache the draft it started before the commit.
	require.NoError(t, c.Invalidate(ctx, "d1", fixtures.Week2025W07))
	require.NoError(t, c.Put(ctx, stale, time.Minute))

	got, err := c.Get(ctx, "d1", fixtures.Week2025W07)
	require.NoError(t, err)
	assert.Nil(t, got, "fenced week must not serve the pre-commit draft")

	require.NoError(t, c.Put(ctx, paidRecord(), 0))
	got, err = c.Get(ctx, "d1", fixtures.Week2025W07)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IsPaid())

	require.NoError(t, c.Put(ctx, stale, time.Minute))
	got, err = c.Get(ctx, "d1", fixtures.Week2025W07)
	require.NoError(t, err)
	assert.True(t, got.IsPaid(), "a draft never replaces a paid record")
	assert.Equal(t, time.Duration(0), mr.TTL("settlement:v2:d1:2025-W07"))
}

func TestSettlementCache_FenceExpires(t *testing.T) {
	c, mr := setup(t)
	ctx := context.Background()

	require.NoError(t, c.Invalidate(ctx, "d1", fixtures.Week2025W07))
	mr.FastForward(2 * time.Hour)

	require.NoError(t, c.Put(ctx, pendingRecord(1, "10.00"), time.Minute))
	got, err := c.Get(ctx, "d1", fixtures.Week2025W07)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "10.00", got.NetPayable.StringFixed(2))
}

func TestSettlementCache_OlderDraftDoesNotWin(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, pendingRecord(3, "800.00"), time.Minute))
	require.NoError(t, c.Put(ctx, pendingRecord(2, "757.85"), time.Minute))

	got, err := c.Get(ctx, "d1", fixtures.Week2025W07)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.EqualValues(t, 3, got.Version)
	assert.Equal(t, "800.00", got.NetPayable.StringFixed(2))

	require.NoError(t, c.Put(ctx, pendingRecord(4, "810.00"), time.Minute))
	got, err = c.Get(ctx, "d1", fixtures.Week2025W07)
	require.NoError(t, err)
	assert.EqualValues(t, 4, got.Version)
}

func TestSettlementCache_RedisDown(t *testing.T) {
	c, mr := setup(t)
	mr.Close()

	_, err := c.Get(context.Background(), "d1", fixtures.Week2025W07)
	assert.Error(t, err)
}
