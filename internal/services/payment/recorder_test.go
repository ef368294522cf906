package payment_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/services/payment"
	"github.com/kevin07696/settlement-service/internal/testutil/fakes"
	"github.com/kevin07696/settlement-service/internal/testutil/fixtures"
	"github.com/kevin07696/settlement-service/internal/testutil/harness"
	"github.com/kevin07696/settlement-service/pkg/resilience"
	"github.com/kevin07696/settlement-service/pkg/timeutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wk = fixtures.Week2025W07

type testEnv struct {
	*harness.Env
	evidence *fakes.EvidenceStore
	recorder *payment.Recorder
}

func setup(t *testing.T, timeouts *resilience.TimeoutConfig) *testEnv {
	t.Helper()
	env := harness.New(nil, 0)
	env.SeedStandardWeek()
	if timeouts == nil {
		timeouts = resilience.TestTimeoutConfig()
	}
	evidence := fakes.NewEvidenceStore()
	rec := payment.NewRecorder(
		env.Store.DB(),
		env.Store.Settlements(),
		env.Store.PaymentsRepo(),
		env.Calculator,
		env.Ledger,
		env.Referrals,
		evidence,
		nil,
		timeouts,
		env.Logger,
	)
	return &testEnv{Env: env, evidence: evidence, recorder: rec}
}

func validRequest() payment.CommitRequest {
	date := time.Date(2025, 2, 17, 9, 30, 0, 0, time.UTC)
	return payment.CommitRequest{
		BonusAmount:    fixtures.Dec("10"),
		DiscountAmount: fixtures.Dec("5"),
		PaymentDate:    &date,
		Notes:          "weekly transfer",
		Actor:          "ops@fleet.example",
	}
}

func withProof(req payment.CommitRequest) payment.CommitRequest {
	body := "%PDF-1.4 transfer receipt"
	req.Proof = &payment.EvidenceFile{
		Filename:    "Receipt.PDF",
		ContentType: "application/pdf",
		Size:        int64(len(body)),
		Body:        strings.NewReader(body),
	}
	return req
}

func TestCommitPayment_Success(t *testing.T) {
	env := setup(t, nil)

	txn, err := env.recorder.CommitPayment(context.Background(), "d1", wk, withProof(validRequest()))
	require.NoError(t, err)

	assert.Equal(t, "757.85", txn.BaseAmount.StringFixed(2))
	assert.Equal(t, "762.85", txn.TotalAmount.StringFixed(2))
	assert.Equal(t, models.TransactionActive, txn.Status)
	assert.Equal(t, time.Date(2025, 2, 17, 0, 0, 0, 0, time.UTC), txn.PaymentDate)
	require.NotNil(t, txn.ProofRef)
	assert.True(t, strings.HasPrefix(*txn.ProofRef, "evidence/d1/2025-W07/"))
	assert.True(t, strings.HasSuffix(*txn.ProofRef, ".pdf"))
	assert.Equal(t, []string{*txn.ProofRef}, env.evidence.Paths())

	rec := env.Store.Settlement("d1", wk)
	assert.True(t, rec.IsPaid())
	require.NotNil(t, rec.PaymentSnapshot)
	assert.Equal(t, "757.85", rec.PaymentSnapshot.NetPayable.StringFixed(2))
	require.NotNil(t, rec.PaymentTransactionID)
	assert.Equal(t, txn.ID, *rec.PaymentTransactionID)

	assert.Equal(t, 9, env.Store.Agreement("loan-1").RemainingWeeks)
}

func TestCommitPayment_AlreadyPaid(t *testing.T) {
	env := setup(t, nil)
	ctx := context.Background()

	first, err := env.recorder.CommitPayment(ctx, "d1", wk, withProof(validRequest()))
	require.NoError(t, err)

	second, err := env.recorder.CommitPayment(ctx, "d1", wk, withProof(validRequest()))
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeAlreadyPaid))
	assert.True(t, domain.IsConflictError(err))
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)

	assert.Len(t, env.Store.Payments(), 1)
	assert.Len(t, env.evidence.Paths(), 1)
	assert.Equal(t, 9, env.Store.Agreement("loan-1").RemainingWeeks)
}

func TestCommitPayment_RollbackDeletesEvidence(t *testing.T) {
	tests := []struct {
		name string
		op   string
	}{
		{"settlement update fails", fakes.OpSettlementMarkPay},
		{"financing consume fails", fakes.OpFinancingConsume},
		{"referral claim fails", fakes.OpReferralMarkPaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setup(t, nil)
			env.Store.FailOn(tt.op, errors.New("write conflict on replica"))

			txn, err := env.recorder.CommitPayment(context.Background(), "d1", wk, withProof(validRequest()))
			require.Error(t, err)
			assert.Nil(t, txn)
			assert.True(t, domain.IsStorageError(err), "got %v", err)

			assert.Empty(t, env.evidence.Paths(), "uploaded proof must be deleted")
			assert.Equal(t, models.PaymentPending, env.Store.Settlement("d1", wk).PaymentStatus)
			assert.Empty(t, env.Store.Payments())
			assert.Equal(t, 10, env.Store.Agreement("loan-1").RemainingWeeks)
		})
	}
}

func TestCommitPayment_RollbackRetriesDelete(t *testing.T) {
	env := setup(t, nil)
	env.Store.FailOn(fakes.OpSettlementMarkPay, errors.New("boom"))
	env.evidence.FailDelete(2, errors.New("s3 throttled"))

	_, err := env.recorder.CommitPayment(context.Background(), "d1", wk, withProof(validRequest()))
	require.Error(t, err)

	assert.Equal(t, 3, env.evidence.Deletes)
	assert.Empty(t, env.evidence.Paths())
}

func TestCommitPayment_TimeoutRollsBack(t *testing.T) {
	timeouts := resilience.TestTimeoutConfig()
	timeouts.Commit = 100 * time.Millisecond
	env := setup(t, timeouts)
	env.Store.OnCall(fakes.OpPaymentInsert, func() { time.Sleep(250 * time.Millisecond) })

	_, err := env.recorder.CommitPayment(context.Background(), "d1", wk, withProof(validRequest()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)

	assert.Empty(t, env.evidence.Paths())
	assert.Equal(t, models.PaymentPending, env.Store.Settlement("d1", wk).PaymentStatus)
	assert.Empty(t, env.Store.Payments())
}

func TestCommitPayment_UploadFailure(t *testing.T) {
	env := setup(t, nil)
	env.evidence.FailPut(errors.New("bucket not found"))

	_, err := env.recorder.CommitPayment(context.Background(), "d1", wk, withProof(validRequest()))
	require.Error(t, err)
	assert.True(t, domain.IsStorageError(err))
	assert.Empty(t, env.Store.Payments())
	assert.Equal(t, models.PaymentPending, env.Store.Settlement("d1", wk).PaymentStatus)
}

func TestCommitPayment_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *payment.CommitRequest)
	}{
		{"missing payment date", func(r *payment.CommitRequest) { r.PaymentDate = nil }},
		{"zero payment date", func(r *payment.CommitRequest) { r.PaymentDate = &time.Time{} }},
		{"missing actor", func(r *payment.CommitRequest) { r.Actor = "" }},
		{"negative bonus", func(r *payment.CommitRequest) { r.BonusAmount = fixtures.Dec("-1") }},
		{"negative discount", func(r *payment.CommitRequest) { r.DiscountAmount = fixtures.Dec("-1") }},
		{"total not positive", func(r *payment.CommitRequest) { r.DiscountAmount = fixtures.Dec("767.85") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setup(t, nil)
			req := withProof(validRequest())
			tt.mutate(&req)

			_, err := env.recorder.CommitPayment(context.Background(), "d1", wk, req)
			require.Error(t, err)
			assert.True(t, domain.IsValidationError(err), "got %v", err)
			assert.Empty(t, env.evidence.Paths())
			assert.Empty(t, env.Store.Payments())
		})
	}
}

func TestCommitPayment_NoData(t *testing.T) {
	env := setup(t, nil)

	_, err := env.recorder.CommitPayment(context.Background(), "d1", "2025-W30", validRequest())
	require.Error(t, err)
	assert.True(t, domain.IsNoDataError(err))
}

func TestCommitPayment_ConcurrentCommitsSucceedOnce(t *testing.T) {
	env := setup(t, nil)
	const workers = 6

	var wg sync.WaitGroup
	txns := make([]*models.PaymentTransaction, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			txns[i], errs[i] = env.recorder.CommitPayment(context.Background(), "d1", wk, withProof(validRequest()))
		}(i)
	}
	wg.Wait()

	winners := 0
	var winnerID string
	for i := range errs {
		if errs[i] == nil {
			winners++
			winnerID = txns[i].ID
			continue
		}
		assert.True(t, domain.IsConflictError(errs[i]), "worker %d: %v", i, errs[i])
	}
	require.Equal(t, 1, winners)

	for i := range txns {
		if txns[i] != nil {
			assert.Equal(t, winnerID, txns[i].ID)
		}
	}

	assert.Len(t, env.Store.Payments(), 1)
	assert.Len(t, env.evidence.Paths(), 1)
	assert.Equal(t, 9, env.Store.Agreement("loan-1").RemainingWeeks)
}

func TestCommitPayment_ReferralClaimedOnce(t *testing.T) {
	env := setup(t, nil)
	ctx := context.Background()
	env.UsePolicy(func(p *models.PolicySnapshot) { p.Referral.Enabled = true })

	env.Store.AddDriver(fixtures.NewDriver("d2").ReferredBy("d1").Build())
	env.Earnings.SetEntries(
		fixtures.Entry("d1", wk, "earnings_a", "600", 40),
		fixtures.Entry("d1", wk, "earnings_b", "400", 20),
		fixtures.Entry("d2", wk, "earnings_a", "500", 25),
	)

	// d2's draft accrues 8.70 for d1
	_, err := env.Calculator.GetDriverWeekSettlement(ctx, "d2", wk, true)
	require.NoError(t, err)

	txn, err := env.recorder.CommitPayment(ctx, "d1", wk, validRequest())
	require.NoError(t, err)
	assert.Equal(t, "766.55", txn.BaseAmount.StringFixed(2))

	bonuses := env.Store.Referrals()
	require.Len(t, bonuses, 1)
	assert.Equal(t, models.ReferralPaid, bonuses[0].Status)

	// Recomputing the downline after the upline was paid adds nothing.
	_, err = env.Calculator.GetDriverWeekSettlement(ctx, "d2", wk, true)
	require.NoError(t, err)
	pending, err := env.Referrals.Pending(ctx, "d1", wk)
	require.NoError(t, err)
	assert.True(t, pending.Equal(decimal.Zero))

	rec, err := env.Calculator.GetDriverWeekSettlement(ctx, "d1", wk, true)
	require.NoError(t, err)
	assert.Equal(t, "8.70", rec.ReferralBonus.StringFixed(2))
	assert.Equal(t, "766.55", rec.NetPayable.StringFixed(2))
}

func lateBonus(referrerID, sourceID string) *models.ReferralBonus {
	return &models.ReferralBonus{
		ReferrerID:     referrerID,
		SourceDriverID: sourceID,
		WeekID:         wk,
		Level:          1,
		Rate:           fixtures.Dec("2"),
		BaseAmount:     fixtures.Dec("600"),
		Amount:         fixtures.Dec("12"),
	}
}

func TestCommitPayment_BonusAccruedAfterQuoteIsNotClaimed(t *testing.T) {
	env := setup(t, nil)
	ctx := context.Background()
	env.UsePolicy(func(p *models.PolicySnapshot) { p.Referral.Enabled = true })
	env.Store.AddDriver(fixtures.NewDriver("d3").ReferredBy("d1").Build())

	// d3's week lands after d1's draft read its pending bonus but before
	// the commit transaction claims it.
	var once sync.Once
	env.Store.OnCall(fakes.OpSettlementInit, func() {
		once.Do(func() {
			_, err := env.Store.ReferralsRepo().UpsertAccrued(ctx, nil, lateBonus("d1", "d3"))
			require.NoError(t, err)
		})
	})

	_, err := env.recorder.CommitPayment(ctx, "d1", wk, withProof(validRequest()))
	require.ErrorIs(t, err, domain.ErrReferralBonusChanged)
	assert.True(t, domain.IsConflictError(err))

	assert.Empty(t, env.Store.Payments())
	assert.Empty(t, env.evidence.Paths(), "proof is rolled back with the commit")
	assert.Equal(t, models.PaymentPending, env.Store.Settlement("d1", wk).PaymentStatus)
	bonuses := env.Store.Referrals()
	require.Len(t, bonuses, 1)
	assert.Equal(t, models.ReferralAccrued, bonuses[0].Status)

	// The retry re-quotes and pays the bonus with the week.
	env.Store.OnCall(fakes.OpSettlementInit, nil)
	txn, err := env.recorder.CommitPayment(ctx, "d1", wk, validRequest())
	require.NoError(t, err)
	assert.Equal(t, "769.85", txn.BaseAmount.StringFixed(2))
	assert.Equal(t, models.ReferralPaid, env.Store.Referrals()[0].Status)
	assert.Equal(t, "12.00", env.Store.Settlement("d1", wk).PaymentSnapshot.ReferralBonus.StringFixed(2))
}

func TestCommitPayment_ClaimMismatchRollsBack(t *testing.T) {
	env := setup(t, nil)
	ctx := context.Background()
	env.UsePolicy(func(p *models.PolicySnapshot) { p.Referral.Enabled = true })
	env.Store.AddDriver(fixtures.NewDriver("d3").ReferredBy("d1").Build())

	env.Store.OnCall(fakes.OpReferralMarkPaid, func() {
		_, err := env.Store.ReferralsRepo().UpsertAccrued(ctx, nil, lateBonus("d1", "d3"))
		require.NoError(t, err)
	})

	_, err := env.recorder.CommitPayment(ctx, "d1", wk, withProof(validRequest()))
	require.ErrorIs(t, err, domain.ErrReferralBonusChanged)

	assert.Empty(t, env.Store.Payments())
	assert.Empty(t, env.evidence.Paths())
	assert.Equal(t, models.PaymentPending, env.Store.Settlement("d1", wk).PaymentStatus)
	for _, b := range env.Store.Referrals() {
		assert.NotEqual(t, models.ReferralPaid, b.Status, "no bonus is paid outside net payable")
	}
	assert.Equal(t, 10, env.Store.Agreement("loan-1").RemainingWeeks, "financing consumption rolled back")
}

func TestCommitPayment_DownlineComputedAfterUplinePaid(t *testing.T) {
	env := setup(t, nil)
	ctx := context.Background()
	env.UsePolicy(func(p *models.PolicySnapshot) { p.Referral.Enabled = true })
	env.Store.AddDriver(fixtures.NewDriver("d2").ReferredBy("d1").Build())

	const nextWk = "2025-W08"
	env.Earnings.SetEntries(
		fixtures.Entry("d1", wk, "earnings_a", "600", 40),
		fixtures.Entry("d1", wk, "earnings_b", "400", 20),
		fixtures.Entry("d2", wk, "earnings_a", "500", 25),
		fixtures.Entry("d1", nextWk, "earnings_a", "800", 30),
	)

	txn, err := env.recorder.CommitPayment(ctx, "d1", wk, validRequest())
	require.NoError(t, err)
	assert.Equal(t, "757.85", txn.BaseAmount.StringFixed(2))

	// d2's W07 accrues 8.70 for d1, whose W07 is already closed.
	_, err = env.Calculator.GetDriverWeekSettlement(ctx, "d2", wk, true)
	require.NoError(t, err)

	pending, err := env.Referrals.Pending(ctx, "d1", wk)
	require.NoError(t, err)
	assert.True(t, pending.IsZero(), "nothing is booked against a paid week")

	bonuses := env.Store.Referrals()
	require.Len(t, bonuses, 1)
	assert.Equal(t, wk, bonuses[0].WeekID)
	assert.Equal(t, nextWk, bonuses[0].PayoutWeekID)

	draft, err := env.Calculator.GetDriverWeekSettlement(ctx, "d1", nextWk, true)
	require.NoError(t, err)
	assert.Equal(t, "8.70", draft.ReferralBonus.StringFixed(2))

	txn, err = env.recorder.CommitPayment(ctx, "d1", nextWk, validRequest())
	require.NoError(t, err)
	assert.True(t, draft.NetPayable.Equal(txn.BaseAmount))
	assert.Equal(t, models.ReferralPaid, env.Store.Referrals()[0].Status)
}

func TestCommitPayment_CompletesLoanAfterTerm(t *testing.T) {
	env := setup(t, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		weekID := timeutil.ISOWeekID(time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 7*i))

		env.Earnings.SetEntries(fixtures.Entry("d1", weekID, "earnings_a", "1000", 50))
		_, err := env.recorder.CommitPayment(ctx, "d1", weekID, validRequest())
		require.NoError(t, err, "week %s", weekID)
	}

	a := env.Store.Agreement("loan-1")
	assert.Equal(t, 0, a.RemainingWeeks)
	assert.Equal(t, models.FinancingCompleted, a.Status)
}
