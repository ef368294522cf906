package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/settlement-service/internal/converters"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
)

// FinancingRepository implements ports.FinancingRepository
type FinancingRepository struct {
	pool *pgxpool.Pool
}

// NewFinancingRepository creates a new financing repository
func NewFinancingRepository(db ports.DBPort) *FinancingRepository {
	return &FinancingRepository{pool: db.GetDB()}
}

// ListActive returns the driver's active agreements
func (r *FinancingRepository) ListActive(ctx context.Context, db ports.DBTX, driverID string) ([]*models.FinancingAgreement, error) {
	rows, err := conn(db, r.pool).Query(ctx, `
		SELECT id, driver_id, kind, principal, fixed_amount, term_weeks, remaining_weeks,
		       weekly_interest_percent, start_date, status, created_at, updated_at
		FROM financing_agreements
		WHERE driver_id = $1 AND status = 'active'
		ORDER BY start_date, id`, driverID)
	if err != nil {
		return nil, fmt.Errorf("list financing agreements: %w", err)
	}
	defer rows.Close()

	var out []*models.FinancingAgreement
	for rows.Next() {
		var (
			a                             models.FinancingAgreement
			kind, status                  string
			principal, fixed, interestPct pgtype.Numeric
			startDate                     pgtype.Date
		)
		if err := rows.Scan(&a.ID, &a.DriverID, &kind, &principal, &fixed, &a.TermWeeks, &a.RemainingWeeks,
			&interestPct, &startDate, &status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan financing agreement: %w", err)
		}
		a.Kind = models.FinancingKind(kind)
		a.Status = models.FinancingStatus(status)
		a.StartDate = startDate.Time
		if a.Principal, err = converters.FromNumeric(principal); err != nil {
			return nil, err
		}
		if a.FixedAmount, err = converters.FromNumeric(fixed); err != nil {
			return nil, err
		}
		if a.WeeklyInterestPercent, err = converters.FromNumeric(interestPct); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// ConsumeWeek records one installment. The consumption row is the
// idempotency key; the agreement is only decremented when it is new.
// Fixed discounts with no remaining weeks are open-ended and never complete.
func (r *FinancingRepository) ConsumeWeek(ctx context.Context, tx ports.DBTX, agreementID, weekID string) (bool, error) {
	q := conn(tx, r.pool)

	tag, err := q.Exec(ctx, `
		INSERT INTO financing_consumptions (agreement_id, week_id)
		VALUES ($1, $2)
		ON CONFLICT (agreement_id, week_id) DO NOTHING`, agreementID, weekID)
	if err != nil {
		return false, fmt.Errorf("record financing consumption: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = q.Exec(ctx, `
		UPDATE financing_agreements
		SET remaining_weeks = GREATEST(remaining_weeks - 1, 0),
		    status = CASE WHEN remaining_weeks - 1 <= 0 THEN 'completed' ELSE status END,
		    updated_at = NOW()
		WHERE id = $1 AND (kind = 'amortizing' OR remaining_weeks > 0)`, agreementID)
	if err != nil {
		return false, fmt.Errorf("decrement financing agreement: %w", err)
	}
	return true, nil
}
