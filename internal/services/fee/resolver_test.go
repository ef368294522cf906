package fee_test

import (
	"testing"
	"time"

	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/services/fee"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustWeek(t *testing.T, id string) models.Week {
	t.Helper()
	w, err := models.ParseWeek(id)
	require.NoError(t, err)
	return w
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var defaultFixed = models.FeeRule{Mode: models.FeeModeFixedAmount, Value: dec("35")}

func TestResolve_DefaultFixed(t *testing.T) {
	r := fee.NewResolver()
	driver := &models.Driver{ID: "d1"}

	got := r.Resolve(driver, nil, mustWeek(t, "2025-W07"), dec("940.00"), defaultFixed)

	assert.Equal(t, models.FeeSourceDefault, got.Source)
	assert.Equal(t, models.FeeModeFixedAmount, got.Mode)
	assert.True(t, got.Amount.Equal(dec("35")), "got %s", got.Amount)
}

func TestResolve_OverridePercentBeatsDefault(t *testing.T) {
	r := fee.NewResolver()
	driver := &models.Driver{
		ID:          "d1",
		FeeOverride: &models.FeeRule{Mode: models.FeeModePercentOfNet, Value: dec("7.5")},
	}

	got := r.Resolve(driver, nil, mustWeek(t, "2025-W07"), dec("940.00"), defaultFixed)

	assert.Equal(t, models.FeeSourceOverride, got.Source)
	// 940 * 7.5% = 70.50
	assert.True(t, got.Amount.Equal(dec("70.50")), "got %s", got.Amount)
}

func TestResolve_ExemptionBeatsOverride(t *testing.T) {
	r := fee.NewResolver()
	week := mustWeek(t, "2025-W07")
	driver := &models.Driver{
		ID:          "d1",
		FeeOverride: &models.FeeRule{Mode: models.FeeModeFixedAmount, Value: dec("50")},
	}
	exemptions := []models.ExemptionWindow{{
		ID:   "ex-1",
		From: week.Start.AddDate(0, 0, -14),
		To:   week.Start, // inclusive end on the week start itself
	}}

	got := r.Resolve(driver, exemptions, week, dec("940.00"), defaultFixed)

	assert.Equal(t, models.FeeSourceExempt, got.Source)
	assert.True(t, got.Amount.IsZero())
	assert.Equal(t, "ex-1", got.ExemptionID)
}

func TestResolve_ExemptionOutsideWeekIgnored(t *testing.T) {
	r := fee.NewResolver()
	week := mustWeek(t, "2025-W07")
	exemptions := []models.ExemptionWindow{{
		ID:   "ex-old",
		From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   week.Start.AddDate(0, 0, -1),
	}}

	got := r.Resolve(&models.Driver{ID: "d1"}, exemptions, week, dec("100"), defaultFixed)

	assert.Equal(t, models.FeeSourceDefault, got.Source)
	assert.True(t, got.Amount.Equal(dec("35")))
}

func TestResolve_PercentOnNegativeNetIsZero(t *testing.T) {
	r := fee.NewResolver()
	rule := models.FeeRule{Mode: models.FeeModePercentOfNet, Value: dec("10")}

	got := r.Resolve(&models.Driver{ID: "d1"}, nil, mustWeek(t, "2025-W07"), dec("-20"), rule)

	assert.True(t, got.Amount.IsZero())
}

func TestResolve_Deterministic(t *testing.T) {
	r := fee.NewResolver()
	driver := &models.Driver{
		ID:          "d1",
		FeeOverride: &models.FeeRule{Mode: models.FeeModePercentOfNet, Value: dec("3.333")},
	}
	week := mustWeek(t, "2025-W10")

	first := r.Resolve(driver, nil, week, dec("1234.57"), defaultFixed)
	for i := 0; i < 10; i++ {
		again := r.Resolve(driver, nil, week, dec("1234.57"), defaultFixed)
		assert.True(t, first.Amount.Equal(again.Amount))
	}
}
