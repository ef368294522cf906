package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/settlement-service/internal/converters"
	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
)

// SettlementRepository implements ports.SettlementRepository
type SettlementRepository struct {
	pool *pgxpool.Pool
}

// NewSettlementRepository creates a new settlement repository
func NewSettlementRepository(db ports.DBPort) *SettlementRepository {
	return &SettlementRepository{pool: db.GetDB()}
}

const settlementColumns = `
	id, driver_id, week_id, amounts, payment_status, payment_snapshot,
	payment_transaction_id, paid_at, diagnostics, policy_version, computed_at,
	version, created_at, updated_at`

// Get retrieves the record for a driver week
func (r *SettlementRepository) Get(ctx context.Context, db ports.DBTX, driverID, weekID string) (*models.SettlementRecord, error) {
	row := conn(db, r.pool).QueryRow(ctx,
		`SELECT `+settlementColumns+` FROM settlements WHERE driver_id = $1 AND week_id = $2`,
		driverID, weekID)
	rec, err := scanSettlement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSettlementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get settlement: %w", err)
	}
	return rec, nil
}

// GetOrInitialize inserts draft as version 1 unless the key already exists
func (r *SettlementRepository) GetOrInitialize(ctx context.Context, db ports.DBTX, draft *models.SettlementRecord, weekStart time.Time) (*models.InitResult, error) {
	q := conn(db, r.pool)

	rec := *draft
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Version = 1
	rec.PaymentStatus = models.PaymentPending

	amounts, diags, err := encodeDraft(&rec)
	if err != nil {
		return nil, err
	}
	net, err := converters.ToNumeric(rec.NetPayable)
	if err != nil {
		return nil, err
	}

	tag, err := q.Exec(ctx, `
		INSERT INTO settlements (id, driver_id, week_id, week_start, amounts, net_payable,
		                         payment_status, diagnostics, policy_version, computed_at,
		                         version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $8, $9, 1, $10, $10)
		ON CONFLICT ON CONSTRAINT settlements_driver_week_key DO NOTHING`,
		uuidArg(rec.ID), rec.DriverID, rec.WeekID, converters.ToDate(weekStart), amounts, net,
		diags, rec.PolicyVersion, rec.ComputedAt, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert settlement: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return &models.InitResult{Outcome: models.InitCreated, Record: &rec}, nil
	}

	existing, err := r.Get(ctx, q, draft.DriverID, draft.WeekID)
	if err != nil {
		return nil, err
	}
	return &models.InitResult{Outcome: models.InitExisting, Record: existing}, nil
}

// UpdateDraft overwrites computed fields when the row is unpaid and unchanged since expectedVersion
func (r *SettlementRepository) UpdateDraft(ctx context.Context, db ports.DBTX, draft *models.SettlementRecord, expectedVersion int64) (bool, error) {
	amounts, diags, err := encodeDraft(draft)
	if err != nil {
		return false, err
	}
	net, err := converters.ToNumeric(draft.NetPayable)
	if err != nil {
		return false, err
	}

	tag, err := conn(db, r.pool).Exec(ctx, `
		UPDATE settlements
		SET amounts = $3, net_payable = $4, diagnostics = $5, policy_version = $6,
		    computed_at = $7, version = version + 1, updated_at = NOW()
		WHERE driver_id = $1 AND week_id = $2
		  AND payment_status <> 'paid' AND version = $8`,
		draft.DriverID, draft.WeekID, amounts, net, diags, draft.PolicyVersion, draft.ComputedAt, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("update settlement draft: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkPaid freezes the snapshot. Only a pending row can transition.
func (r *SettlementRepository) MarkPaid(ctx context.Context, tx ports.DBTX, recordID, transactionID string, snapshot models.SettlementAmounts, paidAt time.Time) (bool, error) {
	snap, err := json.Marshal(snapshot)
	if err != nil {
		return false, fmt.Errorf("marshal payment snapshot: %w", err)
	}

	tag, err := conn(tx, r.pool).Exec(ctx, `
		UPDATE settlements
		SET payment_status = 'paid', payment_snapshot = $2, payment_transaction_id = $3,
		    paid_at = $4, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND payment_status = 'pending'`,
		uuidArg(recordID), snap, uuidArg(transactionID), paidAt)
	if err != nil {
		return false, fmt.Errorf("mark settlement paid: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CountPaidBefore counts paid weeks starting before the given time
func (r *SettlementRepository) CountPaidBefore(ctx context.Context, db ports.DBTX, driverID string, before time.Time) (int, error) {
	var n int
	err := conn(db, r.pool).QueryRow(ctx, `
		SELECT COUNT(*) FROM settlements
		WHERE driver_id = $1 AND payment_status = 'paid' AND week_start < $2`,
		driverID, converters.ToDate(before)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count paid settlements: %w", err)
	}
	return n, nil
}

func encodeDraft(rec *models.SettlementRecord) (amounts, diags []byte, err error) {
	amounts, err = json.Marshal(rec.SettlementAmounts)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal settlement amounts: %w", err)
	}
	d := rec.Diagnostics
	if d == nil {
		d = []models.Diagnostic{}
	}
	diags, err = json.Marshal(d)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal diagnostics: %w", err)
	}
	return amounts, diags, nil
}

func scanSettlement(row pgx.Row) (*models.SettlementRecord, error) {
	var (
		rec                  models.SettlementRecord
		id, txID             pgtype.UUID
		status               string
		amounts, snap, diags []byte
		paidAt               pgtype.Timestamptz
	)
	if err := row.Scan(&id, &rec.DriverID, &rec.WeekID, &amounts, &status, &snap,
		&txID, &paidAt, &diags, &rec.PolicyVersion, &rec.ComputedAt,
		&rec.Version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}

	rec.ID = uuidString(id)
	rec.PaymentStatus = models.PaymentStatus(status)
	rec.PaymentTransactionID = converters.UUIDPtr(txID)
	rec.PaidAt = converters.TimePtr(paidAt)

	if err := json.Unmarshal(amounts, &rec.SettlementAmounts); err != nil {
		return nil, fmt.Errorf("unmarshal settlement amounts: %w", err)
	}
	if len(snap) > 0 {
		var s models.SettlementAmounts
		if err := json.Unmarshal(snap, &s); err != nil {
			return nil, fmt.Errorf("unmarshal payment snapshot: %w", err)
		}
		rec.PaymentSnapshot = &s
	}
	if len(diags) > 0 {
		if err := json.Unmarshal(diags, &rec.Diagnostics); err != nil {
			return nil, fmt.Errorf("unmarshal diagnostics: %w", err)
		}
	}
	return &rec, nil
}
