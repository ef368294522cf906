package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/settlement-service/internal/converters"
	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
)

// DriverRepository implements ports.DriverRepository and ports.FeeExemptionRepository
type DriverRepository struct {
	pool *pgxpool.Pool
}

// NewDriverRepository creates a new driver repository
func NewDriverRepository(db ports.DBPort) *DriverRepository {
	return &DriverRepository{pool: db.GetDB()}
}

const getDriver = `
SELECT id, name, driver_type, rental_fee, fee_override_mode, fee_override_value,
       iban, referred_by, active, created_at
FROM drivers
WHERE id = $1`

// GetByID retrieves a driver profile
func (r *DriverRepository) GetByID(ctx context.Context, db ports.DBTX, driverID string) (*models.Driver, error) {
	var (
		d                      models.Driver
		driverType             string
		rentalFee, overrideVal pgtype.Numeric
		overrideMode           pgtype.Text
		iban, referredBy       pgtype.Text
	)
	err := conn(db, r.pool).QueryRow(ctx, getDriver, driverID).Scan(
		&d.ID, &d.Name, &driverType, &rentalFee, &overrideMode, &overrideVal,
		&iban, &referredBy, &d.Active, &d.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrDriverNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get driver: %w", err)
	}

	d.Type = models.DriverType(driverType)
	d.IBAN = converters.TextPtr(iban)
	d.ReferredBy = converters.TextPtr(referredBy)
	if d.RentalFee, err = converters.FromNullableNumeric(rentalFee); err != nil {
		return nil, fmt.Errorf("driver %s rental fee: %w", driverID, err)
	}
	if overrideMode.Valid {
		mode, err := models.ParseFeeMode(overrideMode.String)
		if err != nil {
			return nil, fmt.Errorf("driver %s: %w", driverID, err)
		}
		value, err := converters.FromNumeric(overrideVal)
		if err != nil {
			return nil, fmt.Errorf("driver %s fee override: %w", driverID, err)
		}
		d.FeeOverride = &models.FeeRule{Mode: mode, Value: value}
	}
	return &d, nil
}

// ListActiveIDs returns every active driver ID in a stable order
func (r *DriverRepository) ListActiveIDs(ctx context.Context, db ports.DBTX) ([]string, error) {
	rows, err := conn(db, r.pool).Query(ctx, `SELECT id FROM drivers WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active drivers: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list active drivers: %w", err)
	}
	return ids, nil
}

// ListForDriver returns the driver's fee exemption windows
func (r *DriverRepository) ListForDriver(ctx context.Context, db ports.DBTX, driverID string) ([]models.ExemptionWindow, error) {
	rows, err := conn(db, r.pool).Query(ctx, `
		SELECT id, driver_id, valid_from, valid_to, reason
		FROM fee_exemptions
		WHERE driver_id = $1
		ORDER BY valid_from, id`, driverID)
	if err != nil {
		return nil, fmt.Errorf("list fee exemptions: %w", err)
	}
	defer rows.Close()

	var out []models.ExemptionWindow
	for rows.Next() {
		var (
			w        models.ExemptionWindow
			id       pgtype.UUID
			from, to pgtype.Date
		)
		if err := rows.Scan(&id, &w.DriverID, &from, &to, &w.Reason); err != nil {
			return nil, fmt.Errorf("scan fee exemption: %w", err)
		}
		w.ID = uuidString(id)
		w.From = from.Time
		w.To = to.Time
		out = append(out, w)
	}
	return out, rows.Err()
}
