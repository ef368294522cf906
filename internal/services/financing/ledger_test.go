package financing_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/services/financing"
	"github.com/kevin07696/settlement-service/internal/testutil/fakes"
	"github.com/kevin07696/settlement-service/internal/testutil/fixtures"
	"github.com/kevin07696/settlement-service/internal/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLedger(t *testing.T) (*financing.Ledger, *fakes.Store) {
	t.Helper()
	store := fakes.NewStore()
	return financing.NewLedger(store.Financing(), nil, mocks.NewMockLogger()), store
}

func week(t *testing.T, id string) models.Week {
	t.Helper()
	w, err := models.ParseWeek(id)
	require.NoError(t, err)
	return w
}

func TestEligibleLines_Amortizing(t *testing.T) {
	ledger, store := setupLedger(t)
	store.AddAgreement(fixtures.NewLoan("loan-1", "d1", "1000", 10, "5").Build())

	lines, total, err := ledger.EligibleLines(context.Background(), "d1", week(t, fixtures.Week2025W07), financing.PolicyStartBeforeWeekEnd)
	require.NoError(t, err)

	require.Len(t, lines, 1)
	assert.True(t, lines[0].Installment.Equal(fixtures.Dec("100")), "installment %s", lines[0].Installment)
	assert.True(t, lines[0].Interest.Equal(fixtures.Dec("5")), "interest %s", lines[0].Interest)
	assert.True(t, total.Equal(fixtures.Dec("105")), "total %s", total)
}

func TestEligibleLines_MultipleAgreementsSummed(t *testing.T) {
	ledger, store := setupLedger(t)
	store.AddAgreement(fixtures.NewLoan("loan-1", "d1", "1000", 10, "5").Build())
	store.AddAgreement(fixtures.NewFixedDiscount("disc-1", "d1", "20").Build())
	store.AddAgreement(fixtures.NewLoan("loan-other", "d2", "500", 5, "0").Build())

	lines, total, err := ledger.EligibleLines(context.Background(), "d1", week(t, fixtures.Week2025W07), financing.PolicyStartBeforeWeekEnd)
	require.NoError(t, err)

	require.Len(t, lines, 2)
	assert.Equal(t, "disc-1", lines[0].AgreementID)
	assert.Equal(t, "loan-1", lines[1].AgreementID)
	assert.True(t, total.Equal(fixtures.Dec("125")), "total %s", total)
}

func TestEligibleLines_RoundsThirds(t *testing.T) {
	ledger, store := setupLedger(t)
	store.AddAgreement(fixtures.NewLoan("loan-1", "d1", "100", 3, "10").Build())

	lines, total, err := ledger.EligibleLines(context.Background(), "d1", week(t, fixtures.Week2025W07), financing.PolicyStartBeforeWeekEnd)
	require.NoError(t, err)

	require.Len(t, lines, 1)
	assert.Equal(t, "33.33", lines[0].Installment.StringFixed(2))
	assert.Equal(t, "3.33", lines[0].Interest.StringFixed(2))
	assert.Equal(t, "36.66", total.StringFixed(2))
}

func TestEligibilityPolicies(t *testing.T) {
	// Wednesday of 2025-W07
	midWeek := time.Date(2025, 2, 12, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		policy    string
		start     time.Time
		remaining int
		want      int
	}{
		{"starts mid week, lenient", financing.PolicyStartBeforeWeekEnd, midWeek, 10, 1},
		{"starts mid week, strict", financing.PolicyStartBeforeWeekStart, midWeek, 10, 0},
		{"starts next week", financing.PolicyStartBeforeWeekEnd, midWeek.AddDate(0, 0, 7), 10, 0},
		{"no weeks remaining", financing.PolicyStartBeforeWeekEnd, midWeek.AddDate(0, 0, -30), 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, store := setupLedger(t)
			store.AddAgreement(fixtures.NewLoan("loan-1", "d1", "1000", 10, "5").
				StartingOn(tt.start).WithRemaining(tt.remaining).Build())

			lines, _, err := ledger.EligibleLines(context.Background(), "d1", week(t, fixtures.Week2025W07), tt.policy)
			require.NoError(t, err)
			assert.Len(t, lines, tt.want)
		})
	}
}

func TestEligibleLines_UnknownPolicy(t *testing.T) {
	ledger, _ := setupLedger(t)

	_, _, err := ledger.EligibleLines(context.Background(), "d1", week(t, fixtures.Week2025W07), "whenever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start_before_week_end")
}

func TestEligibleLines_RepositoryError(t *testing.T) {
	ledger, store := setupLedger(t)
	store.FailOn(fakes.OpFinancingList, errors.New("connection reset"))

	_, _, err := ledger.EligibleLines(context.Background(), "d1", week(t, fixtures.Week2025W07), financing.PolicyStartBeforeWeekEnd)
	require.Error(t, err)
}

func TestConsumeWeek_CompletesAfterTerm(t *testing.T) {
	ledger, store := setupLedger(t)
	store.AddAgreement(fixtures.NewLoan("loan-1", "d1", "1000", 10, "5").Build())
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		weekID := fmt.Sprintf("2025-W%02d", i+6)
		lines, _, err := ledger.EligibleLines(ctx, "d1", week(t, weekID), financing.PolicyStartBeforeWeekEnd)
		require.NoError(t, err)
		require.Len(t, lines, 1, "week %s", weekID)

		n, err := ledger.ConsumeWeek(ctx, nil, lines, weekID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}

	a := store.Agreement("loan-1")
	assert.Equal(t, 0, a.RemainingWeeks)
	assert.Equal(t, models.FinancingCompleted, a.Status)

	lines, total, err := ledger.EligibleLines(ctx, "d1", week(t, "2025-W17"), financing.PolicyStartBeforeWeekEnd)
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.True(t, total.IsZero())
}

func TestConsumeWeek_IdempotentPerWeek(t *testing.T) {
	ledger, store := setupLedger(t)
	store.AddAgreement(fixtures.NewLoan("loan-1", "d1", "1000", 10, "5").Build())
	ctx := context.Background()

	lines, _, err := ledger.EligibleLines(ctx, "d1", week(t, fixtures.Week2025W07), financing.PolicyStartBeforeWeekEnd)
	require.NoError(t, err)

	n, err := ledger.ConsumeWeek(ctx, nil, lines, fixtures.Week2025W07)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = ledger.ConsumeWeek(ctx, nil, lines, fixtures.Week2025W07)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.Equal(t, 9, store.Agreement("loan-1").RemainingWeeks)
}

func TestConsumeWeek_OpenEndedDiscountStaysActive(t *testing.T) {
	ledger, store := setupLedger(t)
	store.AddAgreement(fixtures.NewFixedDiscount("disc-1", "d1", "20").Build())
	ctx := context.Background()

	lines, _, err := ledger.EligibleLines(ctx, "d1", week(t, fixtures.Week2025W07), financing.PolicyStartBeforeWeekEnd)
	require.NoError(t, err)

	_, err = ledger.ConsumeWeek(ctx, nil, lines, fixtures.Week2025W07)
	require.NoError(t, err)

	a := store.Agreement("disc-1")
	assert.Equal(t, models.FinancingActive, a.Status)
	assert.Equal(t, 0, a.RemainingWeeks)
}
