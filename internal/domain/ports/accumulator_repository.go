package ports

import (
	"context"
	"time"

	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/shopspring/decimal"
)

// ReferralRepository stores accrued referral bonuses.
type ReferralRepository interface {
	// UpsertAccrued inserts or refreshes an accrued bonus against
	// bonus.PayoutWeekID. Rows already paid are never modified, and nothing is
	// written while the referrer's payout week is settled or being settled.
	UpsertAccrued(ctx context.Context, db DBTX, bonus *models.ReferralBonus) (models.AccrualOutcome, error)

	// SumAccrued returns the unpaid total payable in the referrer's week
	// without side effects.
	SumAccrued(ctx context.Context, db DBTX, referrerID, payoutWeekID string) (decimal.Decimal, error)

	// MarkPaid atomically marks every accrued row payable in the referrer's
	// week as paid and returns their total. Returns zero when nothing is accrued.
	MarkPaid(ctx context.Context, tx DBTX, referrerID, payoutWeekID string, paidAt time.Time) (decimal.Decimal, error)
}

// GoalRepository reads goal tier definitions.
type GoalRepository interface {
	ListActiveTiers(ctx context.Context, db DBTX) ([]models.GoalTier, error)
}
