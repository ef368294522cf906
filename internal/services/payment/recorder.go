// Package payment commits payments against settlement drafts.
package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
	"github.com/kevin07696/settlement-service/internal/services/commission"
	"github.com/kevin07696/settlement-service/internal/services/financing"
	"github.com/kevin07696/settlement-service/pkg/observability"
	"github.com/kevin07696/settlement-service/pkg/resilience"
	"github.com/kevin07696/settlement-service/pkg/timeutil"
	"github.com/shopspring/decimal"
)

const cleanupAttempts = 4

// Outcome labels for metrics
const (
	outcomeCommitted   = "committed"
	outcomeAlreadyPaid = "already_paid"
	outcomeConflict    = "conflict"
	outcomeInvalid     = "invalid"
	outcomeFailed      = "failed"
)

// EvidenceFile is an uploaded proof of payment.
type EvidenceFile struct {
	Filename    string `validate:"required,max=255"`
	ContentType string `validate:"required"`
	Size        int64  `validate:"gt=0"`
	Body        io.Reader
}

// CommitRequest carries the operator's input for one payment.
type CommitRequest struct {
	BonusAmount    decimal.Decimal
	DiscountAmount decimal.Decimal
	PaymentDate    *time.Time `validate:"required"`
	Notes          string     `validate:"max=2000"`
	Actor          string     `validate:"required,max=200"`
	Proof          *EvidenceFile
}

// SettlementReader is the calculator as seen by the recorder.
type SettlementReader interface {
	GetDriverWeekSettlement(ctx context.Context, driverID, weekID string, forceRefresh bool) (*models.SettlementRecord, error)
}

// Recorder moves a settlement from pending to paid.
type Recorder struct {
	db          ports.DBPort
	settlements ports.SettlementRepository
	payments    ports.PaymentRepository
	calculator  SettlementReader
	ledger      *financing.Ledger
	referrals   *commission.ReferralLedger
	evidence    ports.EvidenceStore
	cache       ports.SettlementCache // optional
	timeouts    *resilience.TimeoutConfig
	backoff     resilience.BackoffStrategy
	validate    *validator.Validate
	logger      ports.Logger
}

// NewRecorder creates a payment recorder
func NewRecorder(
	db ports.DBPort,
	settlements ports.SettlementRepository,
	payments ports.PaymentRepository,
	calculator SettlementReader,
	ledger *financing.Ledger,
	referrals *commission.ReferralLedger,
	evidence ports.EvidenceStore,
	cache ports.SettlementCache,
	timeouts *resilience.TimeoutConfig,
	logger ports.Logger,
) *Recorder {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &Recorder{
		db:          db,
		settlements: settlements,
		payments:    payments,
		calculator:  calculator,
		ledger:      ledger,
		referrals:   referrals,
		evidence:    evidence,
		cache:       cache,
		timeouts:    timeouts,
		backoff:     resilience.CleanupBackoff(),
		validate:    validator.New(),
		logger:      logger,
	}
}

// CommitPayment records a payment for the driver's week.
//
// When the week is already paid it returns the existing active transaction
// together with domain.ErrSettlementAlreadyPaid so callers can treat a
// retry as success. On any failure after the proof was uploaded, the proof
// is deleted before the error is returned.
func (r *Recorder) CommitPayment(ctx context.Context, driverID, weekID string, req CommitRequest) (*models.PaymentTransaction, error) {
	start := time.Now()
	txn, err := r.commit(ctx, driverID, weekID, req)
	observability.RecordPaymentCommit(commitOutcome(err), time.Since(start).Seconds())
	return txn, err
}

func (r *Recorder) commit(ctx context.Context, driverID, weekID string, req CommitRequest) (*models.PaymentTransaction, error) {
	if err := r.validateRequest(req); err != nil {
		return nil, err
	}

	ctx, cancel := r.timeouts.CommitContext(ctx)
	defer cancel()

	record, err := r.calculator.GetDriverWeekSettlement(ctx, driverID, weekID, true)
	if err != nil {
		return nil, err
	}
	if record.IsPaid() {
		return r.existing(ctx, driverID, weekID)
	}

	total := models.ComputeTotal(record.NetPayable, req.BonusAmount, req.DiscountAmount)
	if !total.IsPositive() {
		return nil, domain.NewDomainError(domain.ErrorCodeInvalidInput, "payment total must be greater than zero").
			WithDetail("base_amount", record.NetPayable.StringFixed(2)).
			WithDetail("total_amount", total.StringFixed(2))
	}

	now := timeutil.Now()
	txn := &models.PaymentTransaction{
		ID:             uuid.New().String(),
		RecordID:       record.ID,
		DriverID:       driverID,
		WeekID:         weekID,
		BaseAmount:     record.NetPayable,
		BonusAmount:    models.Round2(req.BonusAmount),
		DiscountAmount: models.Round2(req.DiscountAmount),
		TotalAmount:    total,
		PaymentDate:    timeutil.StartOfDay(*req.PaymentDate),
		Actor:          req.Actor,
		Notes:          req.Notes,
		Status:         models.TransactionActive,
		CreatedAt:      now,
	}

	var proofPath string
	if req.Proof != nil {
		proofPath = evidencePath(driverID, weekID, txn.ID, req.Proof.Filename)
		url, err := r.evidence.Put(ctx, proofPath, req.Proof.Body, req.Proof.Size, req.Proof.ContentType)
		if err != nil {
			// Nothing was stored, but a timed-out upload may still land.
			r.rollbackEvidence(ctx, proofPath)
			return nil, domain.WrapError(domain.ErrorCodeStorageFailure, "upload payment proof", err)
		}
		txn.ProofRef = &proofPath
		txn.ProofURL = &url
	}

	err = r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := r.payments.Insert(ctx, tx, txn); err != nil {
			if domain.IsConflictError(err) {
				return domain.WrapError(domain.ErrorCodeConflict, domain.ErrCommitRaceLost.Message, err)
			}
			return fmt.Errorf("insert payment transaction: %w", err)
		}

		marked, err := r.settlements.MarkPaid(ctx, tx, record.ID, txn.ID, record.SettlementAmounts.Clone(), now)
		if err != nil {
			return fmt.Errorf("mark settlement paid: %w", err)
		}
		if !marked {
			return domain.ErrCommitRaceLost
		}

		if _, err := r.ledger.ConsumeWeek(ctx, tx, record.FinancingLines, weekID); err != nil {
			return err
		}

		claimed, err := r.referrals.ClaimPaid(ctx, tx, driverID, weekID, now)
		if err != nil {
			return err
		}
		// A bonus that accrued after the draft was computed would be marked
		// paid without being in net payable. Roll back so it is re-quoted.
		if !claimed.Equal(record.ReferralBonus) {
			r.logger.Warn("referral bonus changed during commit",
				ports.DriverID(driverID),
				ports.WeekID(weekID),
				ports.Money("claimed", claimed),
				ports.Money("settled", record.ReferralBonus))
			return domain.ErrReferralBonusChanged
		}
		return nil
	})
	if err != nil {
		if proofPath != "" {
			r.rollbackEvidence(ctx, proofPath)
		}
		if domain.IsConflictError(err) {
			// The winner may still be committing; report the stored state.
			if existing, lookupErr := r.payments.GetActive(ctx, nil, driverID, weekID); lookupErr == nil {
				return existing, domain.ErrSettlementAlreadyPaid
			}
			return nil, err
		}
		r.logger.Error("payment commit failed",
			ports.DriverID(driverID),
			ports.WeekID(weekID),
			ports.Err(err))
		var domainErr *domain.DomainError
		if errors.As(err, &domainErr) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrorCodeStorageFailure, "commit payment", err)
	}

	if r.cache != nil {
		if err := r.cache.Invalidate(ctx, driverID, weekID); err != nil {
			r.logger.Warn("settlement cache invalidation failed",
				ports.DriverID(driverID),
				ports.WeekID(weekID),
				ports.Err(err))
		}
	}

	r.logger.Info("payment committed",
		ports.DriverID(driverID),
		ports.WeekID(weekID),
		ports.String("transaction_id", txn.ID),
		ports.Money("total_amount", txn.TotalAmount))

	return txn, nil
}

func (r *Recorder) validateRequest(req CommitRequest) error {
	if req.PaymentDate == nil || req.PaymentDate.IsZero() {
		return domain.ErrMissingPaymentDate
	}
	if err := r.validate.Struct(req); err != nil {
		return domain.WrapError(domain.ErrorCodeInvalidInput, "invalid payment request", err)
	}
	if req.BonusAmount.IsNegative() {
		return domain.NewDomainError(domain.ErrorCodeInvalidInput, "bonus amount must not be negative")
	}
	if req.DiscountAmount.IsNegative() {
		return domain.NewDomainError(domain.ErrorCodeInvalidInput, "discount amount must not be negative")
	}
	return nil
}

func (r *Recorder) existing(ctx context.Context, driverID, weekID string) (*models.PaymentTransaction, error) {
	txn, err := r.payments.GetActive(ctx, nil, driverID, weekID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeStorageFailure, "load active payment", err)
	}
	return txn, domain.ErrSettlementAlreadyPaid
}

// rollbackEvidence deletes an uploaded proof. It runs on a context detached
// from the commit deadline, which may be the reason we are here.
func (r *Recorder) rollbackEvidence(ctx context.Context, objectPath string) {
	cctx, cancel := r.timeouts.CleanupContext(ctx)
	defer cancel()

	err := resilience.Retry(cctx, cleanupAttempts, r.backoff, func(ctx context.Context) error {
		actx, cancel := r.timeouts.AttemptContext(ctx)
		defer cancel()
		return r.evidence.Delete(actx, objectPath)
	})
	observability.RecordEvidenceRollback(err == nil)
	if err != nil {
		r.logger.Error("orphaned payment proof",
			ports.String("path", objectPath),
			ports.Err(err))
		return
	}
	r.logger.Info("payment proof rolled back", ports.String("path", objectPath))
}

func evidencePath(driverID, weekID, transactionID, filename string) string {
	ext := strings.ToLower(path.Ext(path.Base(filename)))
	return fmt.Sprintf("evidence/%s/%s/%s%s", driverID, weekID, transactionID, ext)
}

func commitOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeCommitted
	case domain.IsDomainError(err, domain.ErrorCodeAlreadyPaid):
		return outcomeAlreadyPaid
	case domain.IsDomainError(err, domain.ErrorCodeConflict):
		return outcomeConflict
	case domain.IsValidationError(err):
		return outcomeInvalid
	default:
		return outcomeFailed
	}
}
