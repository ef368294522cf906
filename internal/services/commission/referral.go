package commission

import (
	"context"
	"fmt"
	"time"

	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
	"github.com/shopspring/decimal"
)

// maxCarryWeeks bounds how far a late bonus may move past the week it was
// earned in before accrual gives up.
const maxCarryWeeks = 52

// ReferralLedger accrues multi-level referral bonuses and hands them out
// exactly once.
type ReferralLedger struct {
	repo        ports.ReferralRepository
	drivers     ports.DriverRepository
	settlements ports.SettlementRepository
	logger      ports.Logger
}

// NewReferralLedger creates a referral ledger
func NewReferralLedger(
	repo ports.ReferralRepository,
	drivers ports.DriverRepository,
	settlements ports.SettlementRepository,
	logger ports.Logger,
) *ReferralLedger {
	return &ReferralLedger{
		repo:        repo,
		drivers:     drivers,
		settlements: settlements,
		logger:      logger,
	}
}

// Accrue records what each upline of downline earns from the downline's
// week. base is the downline's base net and revenue its gross earnings.
// Re-running Accrue for the same week refreshes unpaid rows and leaves paid
// ones alone, so drafts can be recomputed freely.
func (l *ReferralLedger) Accrue(ctx context.Context, downline *models.Driver, week models.Week, base, revenue decimal.Decimal, policy models.ReferralPolicy) ([]models.ReferralBonus, error) {
	if !policy.Enabled || downline.ReferredBy == nil || policy.Depth() == 0 {
		return nil, nil
	}
	if !revenue.GreaterThan(policy.RevenueThreshold) {
		return nil, nil
	}

	if policy.MinTenureWeeks > 0 {
		paid, err := l.settlements.CountPaidBefore(ctx, nil, downline.ID, week.Start)
		if err != nil {
			return nil, fmt.Errorf("count paid weeks: %w", err)
		}
		if paid < policy.MinTenureWeeks {
			return nil, nil
		}
	}

	base = models.NonNegative(base)
	visited := map[string]bool{downline.ID: true}
	var accrued []models.ReferralBonus

	next := downline.ReferredBy
	for level := 1; level <= policy.Depth() && next != nil; level++ {
		referrerID := *next
		if visited[referrerID] {
			l.logger.Warn("referral chain cycle",
				ports.DriverID(downline.ID),
				ports.String("referrer_id", referrerID))
			break
		}
		visited[referrerID] = true

		referrer, err := l.drivers.GetByID(ctx, nil, referrerID)
		if err != nil {
			if domain.IsNotFoundError(err) {
				break
			}
			return accrued, fmt.Errorf("load referrer %s: %w", referrerID, err)
		}
		next = referrer.ReferredBy

		if !referrer.Active {
			continue
		}

		rate := policy.RateForLevel(level)
		amount := models.Round2(base.Mul(rate).Div(hundred))
		if !amount.IsPositive() {
			continue
		}

		bonus := models.ReferralBonus{
			ReferrerID:     referrerID,
			SourceDriverID: downline.ID,
			WeekID:         week.ID,
			Level:          level,
			Rate:           rate,
			BaseAmount:     base,
			Amount:         amount,
			Status:         models.ReferralAccrued,
		}
		outcome, err := l.book(ctx, &bonus, week)
		if err != nil {
			return accrued, fmt.Errorf("accrue level %d bonus for %s: %w", level, referrerID, err)
		}
		if outcome == models.AccrualWritten {
			accrued = append(accrued, bonus)
		}
	}

	return accrued, nil
}

// book writes bonus against the first week from earned on whose referrer
// settlement is still unpaid. A week the referrer was already paid for can
// no longer absorb it, so the bonus rides along to the next one.
func (l *ReferralLedger) book(ctx context.Context, bonus *models.ReferralBonus, earned models.Week) (models.AccrualOutcome, error) {
	payout := earned
	for hop := 0; hop <= maxCarryWeeks; hop++ {
		bonus.PayoutWeekID = payout.ID
		outcome, err := l.repo.UpsertAccrued(ctx, nil, bonus)
		if err != nil {
			return 0, err
		}
		if outcome != models.AccrualWeekClosed {
			if payout.ID != earned.ID && outcome == models.AccrualWritten {
				l.logger.Info("referral bonus carried to next unpaid week",
					ports.String("referrer_id", bonus.ReferrerID),
					ports.String("source_driver_id", bonus.SourceDriverID),
					ports.WeekID(earned.ID),
					ports.String("payout_week_id", payout.ID),
					ports.Money("amount", bonus.Amount))
			}
			return outcome, nil
		}
		payout = payout.Next()
	}
	return 0, fmt.Errorf("no unpaid week within %d weeks of %s", maxCarryWeeks, earned.ID)
}

// Pending is the unpaid total payable in the referrer's week, including
// bonuses carried over from weeks paid before they accrued. Read-only.
func (l *ReferralLedger) Pending(ctx context.Context, referrerID, weekID string) (decimal.Decimal, error) {
	total, err := l.repo.SumAccrued(ctx, nil, referrerID, weekID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum accrued referral bonus: %w", err)
	}
	return models.Round2(total), nil
}

// ClaimPaid marks the referrer's bonuses payable in week as paid and returns
// the amount claimed. A week already claimed yields zero.
func (l *ReferralLedger) ClaimPaid(ctx context.Context, tx ports.DBTX, referrerID, weekID string, paidAt time.Time) (decimal.Decimal, error) {
	total, err := l.repo.MarkPaid(ctx, tx, referrerID, weekID, paidAt)
	if err != nil {
		return decimal.Zero, fmt.Errorf("claim referral bonus: %w", err)
	}
	return models.Round2(total), nil
}
