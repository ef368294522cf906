package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/settlement-service/internal/converters"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
	"github.com/shopspring/decimal"
)

// ReferralRepository implements ports.ReferralRepository
type ReferralRepository struct {
	pool *pgxpool.Pool
}

// NewReferralRepository creates a new referral bonus repository
func NewReferralRepository(db ports.DBPort) *ReferralRepository {
	return &ReferralRepository{pool: db.GetDB()}
}

// UpsertAccrued inserts the bonus or refreshes an unpaid one. The WHERE on
// the conflict branch leaves paid rows untouched. FOR SHARE on the payout
// week's settlement waits out a commit in flight on that row, so a bonus is
// never booked against a week that just got paid.
func (r *ReferralRepository) UpsertAccrued(ctx context.Context, db ports.DBTX, b *models.ReferralBonus) (models.AccrualOutcome, error) {
	id := b.ID
	if id == "" {
		id = uuid.NewString()
	}
	payoutWeek := b.PayoutWeekID
	if payoutWeek == "" {
		payoutWeek = b.WeekID
	}
	rate, err := converters.ToNumeric(b.Rate)
	if err != nil {
		return 0, err
	}
	base, err := converters.ToNumeric(b.BaseAmount)
	if err != nil {
		return 0, err
	}
	amount, err := converters.ToNumeric(b.Amount)
	if err != nil {
		return 0, err
	}

	var written, rowPaid, weekPaid bool
	err = conn(db, r.pool).QueryRow(ctx, `
		WITH target AS (
			SELECT payment_status FROM settlements
			WHERE driver_id = $2 AND week_id = $9
			FOR SHARE
		),
		prior AS (
			SELECT status FROM referral_bonuses
			WHERE referrer_id = $2 AND source_driver_id = $3 AND week_id = $4 AND level = $5
		),
		written AS (
			INSERT INTO referral_bonuses (id, referrer_id, source_driver_id, week_id, payout_week_id, level, rate, base_amount, amount, status)
			SELECT $1::uuid, $2, $3, $4, $9, $5, $6::numeric, $7::numeric, $8::numeric, 'accrued'
			WHERE NOT EXISTS (SELECT 1 FROM target WHERE payment_status = 'paid')
			ON CONFLICT ON CONSTRAINT referral_bonuses_unique_level DO UPDATE
			SET rate = EXCLUDED.rate, base_amount = EXCLUDED.base_amount, amount = EXCLUDED.amount,
			    payout_week_id = EXCLUDED.payout_week_id, updated_at = NOW()
			WHERE referral_bonuses.status = 'accrued'
			RETURNING 1
		)
		SELECT
			EXISTS (SELECT 1 FROM written),
			EXISTS (SELECT 1 FROM prior WHERE status = 'paid'),
			EXISTS (SELECT 1 FROM target WHERE payment_status = 'paid')`,
		uuidArg(id), b.ReferrerID, b.SourceDriverID, b.WeekID, b.Level, rate, base, amount, payoutWeek,
	).Scan(&written, &rowPaid, &weekPaid)
	if err != nil {
		return 0, fmt.Errorf("upsert referral bonus: %w", err)
	}

	switch {
	case written:
		return models.AccrualWritten, nil
	case weekPaid && !rowPaid:
		return models.AccrualWeekClosed, nil
	default:
		// The conflicting row was paid, possibly by a commit that raced us.
		return models.AccrualAlreadyPaid, nil
	}
}

// SumAccrued totals unpaid bonuses payable in a referrer week
func (r *ReferralRepository) SumAccrued(ctx context.Context, db ports.DBTX, referrerID, payoutWeekID string) (decimal.Decimal, error) {
	var sum pgtype.Numeric
	err := conn(db, r.pool).QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM referral_bonuses
		WHERE referrer_id = $1 AND payout_week_id = $2 AND status = 'accrued'`,
		referrerID, payoutWeekID).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum referral bonuses: %w", err)
	}
	return converters.FromNumeric(sum)
}

// MarkPaid flips every accrued row payable in a referrer week and returns their total
func (r *ReferralRepository) MarkPaid(ctx context.Context, tx ports.DBTX, referrerID, payoutWeekID string, paidAt time.Time) (decimal.Decimal, error) {
	var sum pgtype.Numeric
	err := conn(tx, r.pool).QueryRow(ctx, `
		WITH claimed AS (
			UPDATE referral_bonuses
			SET status = 'paid', paid_at = $3, updated_at = NOW()
			WHERE referrer_id = $1 AND payout_week_id = $2 AND status = 'accrued'
			RETURNING amount
		)
		SELECT COALESCE(SUM(amount), 0) FROM claimed`,
		referrerID, payoutWeekID, paidAt).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("claim referral bonuses: %w", err)
	}
	return converters.FromNumeric(sum)
}

// GoalRepository implements ports.GoalRepository
type GoalRepository struct {
	pool *pgxpool.Pool
}

// NewGoalRepository creates a new goal tier repository
func NewGoalRepository(db ports.DBPort) *GoalRepository {
	return &GoalRepository{pool: db.GetDB()}
}

// ListActiveTiers returns active tiers ordered by threshold
func (r *GoalRepository) ListActiveTiers(ctx context.Context, db ports.DBTX) ([]models.GoalTier, error) {
	rows, err := conn(db, r.pool).Query(ctx, `
		SELECT id, name, min_rides, min_revenue, reward, active
		FROM goal_tiers
		WHERE active
		ORDER BY min_rides, min_revenue, id`)
	if err != nil {
		return nil, fmt.Errorf("list goal tiers: %w", err)
	}
	defer rows.Close()

	var out []models.GoalTier
	for rows.Next() {
		var (
			t                  models.GoalTier
			minRevenue, reward pgtype.Numeric
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.MinRides, &minRevenue, &reward, &t.Active); err != nil {
			return nil, fmt.Errorf("scan goal tier: %w", err)
		}
		if t.MinRevenue, err = converters.FromNumeric(minRevenue); err != nil {
			return nil, err
		}
		if t.Reward, err = converters.FromNumeric(reward); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
