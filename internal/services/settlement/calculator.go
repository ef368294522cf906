// Package settlement computes a driver's weekly net payable and persists it
// as a draft until the week is paid.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
	"github.com/kevin07696/settlement-service/internal/services/commission"
	"github.com/kevin07696/settlement-service/internal/services/fee"
	"github.com/kevin07696/settlement-service/internal/services/financing"
	"github.com/kevin07696/settlement-service/internal/services/ingestion"
	"github.com/kevin07696/settlement-service/pkg/observability"
	"github.com/kevin07696/settlement-service/pkg/timeutil"
	"github.com/shopspring/decimal"
)

// Diagnostic codes stored on records
const (
	DiagPartialSourceFailure = string(domain.ErrorCodePartialSourceFailure)
	DiagUnmappedPlatform     = "UNMAPPED_PLATFORM"
)

// Accumulator names used in diagnostics and metrics
const (
	accReferral        = "referral"
	accReferralAccrual = "referral_accrual"
	accGoal            = "goal"
)

// Outcome labels for metrics
const (
	outcomeCreated  = "created"
	outcomeUpdated  = "updated"
	outcomeFrozen   = "frozen"
	outcomeCached   = "cached"
	outcomeNoData   = "no_data"
	outcomeNotFound = "not_found"
	outcomeError    = "error"
)

// Dependencies groups the collaborators of the calculator.
type Dependencies struct {
	Drivers     ports.DriverRepository
	Exemptions  ports.FeeExemptionRepository
	Settlements ports.SettlementRepository
	Cache       ports.SettlementCache // optional
	Policies    ports.PolicyProvider
	Ingestion   *ingestion.Aggregator
	Fees        *fee.Resolver
	Financing   *financing.Ledger
	Referrals   *commission.ReferralLedger
	Goals       *commission.GoalEvaluator
	Logger      ports.Logger
}

// Service is the settlement calculator.
type Service struct {
	drivers     ports.DriverRepository
	exemptions  ports.FeeExemptionRepository
	settlements ports.SettlementRepository
	cache       ports.SettlementCache
	policies    ports.PolicyProvider
	ingestion   *ingestion.Aggregator
	fees        *fee.Resolver
	financing   *financing.Ledger
	referrals   *commission.ReferralLedger
	goals       *commission.GoalEvaluator
	logger      ports.Logger

	// draftTTL > 0 lets non-refresh reads serve cached drafts
	draftTTL time.Duration
	now      func() time.Time
}

// NewService creates a settlement calculator
func NewService(deps Dependencies, draftTTL time.Duration) *Service {
	return &Service{
		drivers:     deps.Drivers,
		exemptions:  deps.Exemptions,
		settlements: deps.Settlements,
		cache:       deps.Cache,
		policies:    deps.Policies,
		ingestion:   deps.Ingestion,
		fees:        deps.Fees,
		financing:   deps.Financing,
		referrals:   deps.Referrals,
		goals:       deps.Goals,
		logger:      deps.Logger,
		draftTTL:    draftTTL,
		now:         timeutil.Now,
	}
}

// GetDriverWeekSettlement returns the settlement for (driverID, weekID).
// Paid weeks come back frozen from their payment snapshot and nothing is
// written; every other read recomputes and stores a draft.
func (s *Service) GetDriverWeekSettlement(ctx context.Context, driverID, weekID string, forceRefresh bool) (*models.SettlementRecord, error) {
	start := time.Now()
	record, outcome, err := s.getSettlement(ctx, driverID, weekID, forceRefresh)
	observability.RecordSettlement(outcome, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) getSettlement(ctx context.Context, driverID, weekID string, forceRefresh bool) (*models.SettlementRecord, string, error) {
	week, err := models.ParseWeek(weekID)
	if err != nil {
		return nil, outcomeError, domain.WrapError(domain.ErrorCodeInvalidInput, "invalid week identifier", err).
			WithDetail("week_id", weekID)
	}

	driver, err := s.drivers.GetByID(ctx, nil, driverID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			return nil, outcomeNotFound, err
		}
		return nil, outcomeError, domain.WrapError(domain.ErrorCodeStorageFailure, "load driver", err)
	}

	if !forceRefresh {
		if cached := s.cached(ctx, driverID, weekID); cached != nil {
			return cached, outcomeCached, nil
		}
	}

	existing, err := s.settlements.Get(ctx, nil, driverID, weekID)
	switch {
	case err == nil && existing.IsPaid():
		s.remember(ctx, existing, 0)
		return existing.Frozen(), outcomeFrozen, nil
	case err != nil && !domain.IsNotFoundError(err):
		return nil, outcomeError, domain.WrapError(domain.ErrorCodeStorageFailure, "load settlement", err)
	}

	policy, err := s.policies.Snapshot(ctx)
	if err != nil {
		return nil, outcomeError, domain.WrapError(domain.ErrorCodeInternalError, "resolve policy snapshot", err)
	}

	draft, err := s.compute(ctx, driver, week, policy)
	if err != nil {
		if domain.IsNoDataError(err) {
			return nil, outcomeNoData, err
		}
		return nil, outcomeError, err
	}

	record, outcome, err := s.persist(ctx, draft, week)
	if err != nil {
		return nil, outcomeError, err
	}

	if record.IsPaid() {
		s.remember(ctx, record, 0)
	} else if s.draftTTL > 0 {
		s.remember(ctx, record, s.draftTTL)
	}
	observability.ObserveNetPayable(string(record.PaymentStatus), record.NetPayable.InexactFloat64())

	return record, outcome, nil
}

// compute runs the fixed sequence of settlement steps. Every step rounds to
// cents before the next one reads it.
func (s *Service) compute(ctx context.Context, driver *models.Driver, week models.Week, policy models.PolicySnapshot) (*models.SettlementRecord, error) {
	totals, err := s.ingestion.Totals(ctx, driver.ID, week.ID)
	if err != nil {
		return nil, err
	}

	var diags []models.Diagnostic
	for _, f := range totals.FailedSources {
		diags = append(diags, models.Diagnostic{
			Code:    DiagPartialSourceFailure,
			Source:  "ingestion:" + f.Source,
			Message: f.Reason,
		})
	}
	for _, tag := range totals.UnmappedTags {
		diags = append(diags, models.Diagnostic{
			Code:    DiagUnmappedPlatform,
			Source:  "ingestion",
			Message: fmt.Sprintf("platform tag %q is not mapped; its rows were not counted", tag),
		})
	}

	a := models.SettlementAmounts{
		EarningsByPlatform: totals.EarningsByPlatform,
		GrossEarnings:      totals.GrossEarnings,
		FuelCost:           totals.FuelCost,
		TollCost:           totals.TollCost,
		Trips:              totals.Trips,
	}

	a.VAT = models.Round2(a.GrossEarnings.Mul(policy.VATRate))
	a.NetAfterVAT = models.Round2(a.GrossEarnings.Sub(a.VAT))

	exemptions, err := s.exemptions.ListForDriver(ctx, nil, driver.ID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeStorageFailure, "load fee exemptions", err)
	}
	a.AdminFee = s.fees.Resolve(driver, exemptions, week, a.NetAfterVAT, policy.DefaultFee)

	a.RentalFee = driver.WeeklyRentalFee()

	lines, cost, err := s.financing.EligibleLines(ctx, driver.ID, week, policy.Eligibility)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeStorageFailure, "load financing", err)
	}
	a.FinancingLines = lines
	a.FinancingCost = cost

	a.BaseNet = models.Round2(a.NetAfterVAT.
		Sub(a.AdminFee.Amount).
		Sub(a.FuelCost).
		Sub(a.TollCost).
		Sub(a.RentalFee).
		Sub(a.FinancingCost))

	// Additions. Each one is clamped at zero and a failure counts as zero.
	a.ExtraCommission = commission.ExtraCommission(policy.Commission, driver.Type, a)

	a.ReferralBonus = decimal.Zero
	if policy.Referral.Enabled {
		a.ReferralBonus = s.accumulate(accReferral, driver.ID, week.ID, &diags, func() (decimal.Decimal, error) {
			return s.referrals.Pending(ctx, driver.ID, week.ID)
		})
	}

	a.GoalReward = decimal.Zero
	if policy.GoalsEnabled {
		a.GoalReward = s.accumulate(accGoal, driver.ID, week.ID, &diags, func() (decimal.Decimal, error) {
			res, err := s.goals.Evaluate(ctx, totals.Trips, totals.GrossEarnings)
			return res.Reward, err
		})
	}

	a.NetPayable = models.Round2(a.BaseNet.
		Add(a.ExtraCommission).
		Add(a.ReferralBonus).
		Add(a.GoalReward))

	// This week also earns something for the driver's uplines.
	if policy.Referral.Enabled {
		s.accumulate(accReferralAccrual, driver.ID, week.ID, &diags, func() (decimal.Decimal, error) {
			_, err := s.referrals.Accrue(ctx, driver, week, a.BaseNet, a.GrossEarnings, policy.Referral)
			return decimal.Zero, err
		})
	}

	now := s.now()
	return &models.SettlementRecord{
		DriverID:          driver.ID,
		WeekID:            week.ID,
		SettlementAmounts: a,
		PaymentStatus:     models.PaymentPending,
		Diagnostics:       diags,
		PolicyVersion:     policy.Version(),
		ComputedAt:        now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// accumulate runs one addition and turns any failure, including a panic,
// into a zero contribution plus a diagnostic.
func (s *Service) accumulate(name, driverID, weekID string, diags *[]models.Diagnostic, fn func() (decimal.Decimal, error)) (amount decimal.Decimal) {
	fail := func(err error) {
		observability.RecordAccumulatorFailure(name)
		s.logger.Warn("accumulator failed, counting as zero",
			ports.String("accumulator", name),
			ports.DriverID(driverID),
			ports.WeekID(weekID),
			ports.Err(err))
		*diags = append(*diags, models.Diagnostic{
			Code:    DiagPartialSourceFailure,
			Source:  name,
			Message: err.Error(),
		})
		amount = decimal.Zero
	}

	defer func() {
		if r := recover(); r != nil {
			fail(fmt.Errorf("panic: %v", r))
		}
	}()

	v, err := fn()
	if err != nil {
		fail(err)
		return decimal.Zero
	}
	return models.NonNegative(models.Round2(v))
}

// persist stores draft unless the week was paid in the meantime.
func (s *Service) persist(ctx context.Context, draft *models.SettlementRecord, week models.Week) (*models.SettlementRecord, string, error) {
	res, err := s.settlements.GetOrInitialize(ctx, nil, draft, week.Start)
	if err != nil {
		return nil, "", domain.WrapError(domain.ErrorCodeStorageFailure, "initialize settlement", err)
	}

	switch {
	case res.Outcome == models.InitCreated:
		return res.Record, outcomeCreated, nil
	case res.Record.IsPaid():
		return res.Record.Frozen(), outcomeFrozen, nil
	}

	draft.ID = res.Record.ID
	draft.CreatedAt = res.Record.CreatedAt
	updated, err := s.settlements.UpdateDraft(ctx, nil, draft, res.Record.Version)
	if err != nil {
		return nil, "", domain.WrapError(domain.ErrorCodeStorageFailure, "update settlement draft", err)
	}
	if updated {
		draft.Version = res.Record.Version + 1
		return draft, outcomeUpdated, nil
	}

	// Lost the conditional write: either a commit landed or another draft
	// did. Whatever is stored now wins.
	current, err := s.settlements.Get(ctx, nil, draft.DriverID, draft.WeekID)
	if err != nil {
		return nil, "", domain.WrapError(domain.ErrorCodeStorageFailure, "reload settlement", err)
	}
	if current.IsPaid() {
		s.logger.Info("week paid during recompute, returning snapshot",
			ports.DriverID(draft.DriverID),
			ports.WeekID(draft.WeekID))
		return current.Frozen(), outcomeFrozen, nil
	}
	return current, outcomeUpdated, nil
}

func (s *Service) cached(ctx context.Context, driverID, weekID string) *models.SettlementRecord {
	if s.cache == nil {
		return nil
	}
	rec, err := s.cache.Get(ctx, driverID, weekID)
	if err != nil {
		s.logger.Warn("settlement cache read failed",
			ports.DriverID(driverID),
			ports.WeekID(weekID),
			ports.Err(err))
		return nil
	}
	if rec == nil {
		return nil
	}
	if rec.IsPaid() {
		return rec.Frozen()
	}
	if s.draftTTL > 0 {
		return rec
	}
	return nil
}

func (s *Service) remember(ctx context.Context, rec *models.SettlementRecord, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, rec, ttl); err != nil {
		s.logger.Warn("settlement cache write failed",
			ports.DriverID(rec.DriverID),
			ports.WeekID(rec.WeekID),
			ports.Err(err))
	}
}
