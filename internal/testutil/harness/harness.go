// Package harness wires the settlement services over the in-memory fakes.
package harness

import (
	"time"

	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
	"github.com/kevin07696/settlement-service/internal/services/commission"
	"github.com/kevin07696/settlement-service/internal/services/fee"
	"github.com/kevin07696/settlement-service/internal/services/financing"
	"github.com/kevin07696/settlement-service/internal/services/ingestion"
	"github.com/kevin07696/settlement-service/internal/services/settlement"
	"github.com/kevin07696/settlement-service/internal/testutil/fakes"
	"github.com/kevin07696/settlement-service/internal/testutil/fixtures"
	"github.com/kevin07696/settlement-service/internal/testutil/mocks"
)

// Env is a fully wired calculator with handles on every fake.
type Env struct {
	Store    *fakes.Store
	Earnings *fakes.Source
	Expenses *fakes.Source
	Policy   *fakes.PolicyProvider
	Logger   *mocks.MockLogger

	Ledger     *financing.Ledger
	Referrals  *commission.ReferralLedger
	Calculator *settlement.Service
}

// New builds an environment with two ingestion sources and the default policy.
func New(cache ports.SettlementCache, draftTTL time.Duration) *Env {
	store := fakes.NewStore()
	logger := mocks.NewMockLogger()
	earnings := fakes.NewSource("earnings")
	expenses := fakes.NewSource("expenses")
	policy := fakes.NewPolicyProvider(fixtures.DefaultPolicy())

	ledger := financing.NewLedger(store.Financing(), financing.NewRegistry(), logger)
	referrals := commission.NewReferralLedger(store.ReferralsRepo(), store.Drivers(), store.Settlements(), logger)

	calc := settlement.NewService(settlement.Dependencies{
		Drivers:     store.Drivers(),
		Exemptions:  store.Exemptions(),
		Settlements: store.Settlements(),
		Cache:       cache,
		Policies:    policy,
		Ingestion:   ingestion.NewAggregator([]ports.IngestionSource{earnings, expenses}, time.Second, 0, logger),
		Fees:        fee.NewResolver(),
		Financing:   ledger,
		Referrals:   referrals,
		Goals:       commission.NewGoalEvaluator(store.Goals()),
		Logger:      logger,
	}, draftTTL)

	return &Env{
		Store:      store,
		Earnings:   earnings,
		Expenses:   expenses,
		Policy:     policy,
		Logger:     logger,
		Ledger:     ledger,
		Referrals:  referrals,
		Calculator: calc,
	}
}

// SeedStandardWeek stores driver d1 with a €1000/10 week loan and week
// 2025-W07 rows worth 1000.00 gross, 29.75 fuel and 12.40 tolls. The
// resulting net payable under the default policy is 757.85.
func (e *Env) SeedStandardWeek() {
	e.Store.AddDriver(fixtures.NewDriver("d1").Build())
	e.Store.AddAgreement(fixtures.NewLoan("loan-1", "d1", "1000", 10, "5").Build())
	e.Earnings.SetEntries(
		fixtures.Entry("d1", fixtures.Week2025W07, "earnings_a", "600", 40),
		fixtures.Entry("d1", fixtures.Week2025W07, "earnings_b", "400", 20),
	)
	e.Expenses.SetEntries(
		fixtures.Entry("d1", fixtures.Week2025W07, "fuel", "10", 0),
		fixtures.Entry("d1", fixtures.Week2025W07, "fuel", "15.50", 0),
		fixtures.Entry("d1", fixtures.Week2025W07, "fuel", "4.25", 0),
		fixtures.Entry("d1", fixtures.Week2025W07, "tolls", "12.40", 0),
	)
}

// UsePolicy replaces the served snapshot.
func (e *Env) UsePolicy(mutate func(p *models.PolicySnapshot)) {
	p := fixtures.DefaultPolicy()
	mutate(&p)
	e.Policy.Set(p)
}
