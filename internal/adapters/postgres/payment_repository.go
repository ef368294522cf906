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

const activePaymentConstraint = "payment_transactions_active_week_key"

// PaymentRepository implements ports.PaymentRepository
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new payment transaction repository
func NewPaymentRepository(db ports.DBPort) *PaymentRepository {
	return &PaymentRepository{pool: db.GetDB()}
}

// Insert stores a payment. A second active row for the same week violates
// the partial unique index and is reported as a domain conflict.
func (r *PaymentRepository) Insert(ctx context.Context, tx ports.DBTX, p *models.PaymentTransaction) error {
	base, err := converters.ToNumeric(p.BaseAmount)
	if err != nil {
		return err
	}
	bonus, err := converters.ToNumeric(p.BonusAmount)
	if err != nil {
		return err
	}
	discount, err := converters.ToNumeric(p.DiscountAmount)
	if err != nil {
		return err
	}
	total, err := converters.ToNumeric(p.TotalAmount)
	if err != nil {
		return err
	}

	_, err = conn(tx, r.pool).Exec(ctx, `
		INSERT INTO payment_transactions (
			id, settlement_id, driver_id, week_id, base_amount, bonus_amount, discount_amount,
			total_amount, payment_date, proof_ref, proof_url, actor, notes, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		uuidArg(p.ID), uuidArg(p.RecordID), p.DriverID, p.WeekID, base, bonus, discount,
		total, converters.ToDate(p.PaymentDate), converters.ToNullableText(p.ProofRef),
		converters.ToNullableText(p.ProofURL), p.Actor, p.Notes, string(p.Status), p.CreatedAt)
	if isUniqueViolation(err, activePaymentConstraint) {
		return domain.WrapError(domain.ErrorCodeConflict, "active payment already exists", err).
			WithDetail("driver_id", p.DriverID).
			WithDetail("week_id", p.WeekID)
	}
	if err != nil {
		return fmt.Errorf("insert payment transaction: %w", err)
	}
	return nil
}

// GetActive retrieves the active transaction for a driver week
func (r *PaymentRepository) GetActive(ctx context.Context, db ports.DBTX, driverID, weekID string) (*models.PaymentTransaction, error) {
	var (
		p                            models.PaymentTransaction
		id, recordID                 pgtype.UUID
		base, bonus, discount, total pgtype.Numeric
		paymentDate                  pgtype.Date
		proofRef, proofURL           pgtype.Text
		status                       string
	)
	err := conn(db, r.pool).QueryRow(ctx, `
		SELECT id, settlement_id, driver_id, week_id, base_amount, bonus_amount, discount_amount,
		       total_amount, payment_date, proof_ref, proof_url, actor, notes, status, created_at
		FROM payment_transactions
		WHERE driver_id = $1 AND week_id = $2 AND status = 'active'`, driverID, weekID).Scan(
		&id, &recordID, &p.DriverID, &p.WeekID, &base, &bonus, &discount,
		&total, &paymentDate, &proofRef, &proofURL, &p.Actor, &p.Notes, &status, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active payment: %w", err)
	}

	p.ID = uuidString(id)
	p.RecordID = uuidString(recordID)
	p.PaymentDate = paymentDate.Time
	p.ProofRef = converters.TextPtr(proofRef)
	p.ProofURL = converters.TextPtr(proofURL)
	p.Status = models.TransactionStatus(status)
	if p.BaseAmount, err = converters.FromNumeric(base); err != nil {
		return nil, err
	}
	if p.BonusAmount, err = converters.FromNumeric(bonus); err != nil {
		return nil, err
	}
	if p.DiscountAmount, err = converters.FromNumeric(discount); err != nil {
		return nil, err
	}
	if p.TotalAmount, err = converters.FromNumeric(total); err != nil {
		return nil, err
	}
	return &p, nil
}
