package ports

import (
	"context"

	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/services/payment"
)

// SettlementService computes and returns driver-week settlements
type SettlementService interface {
	// GetDriverWeekSettlement returns the frozen snapshot for paid weeks and
	// recomputes a draft otherwise. forceRefresh bypasses the draft cache.
	GetDriverWeekSettlement(ctx context.Context, driverID, weekID string, forceRefresh bool) (*models.SettlementRecord, error)
}

// PaymentRecorder commits payments against settlement drafts
type PaymentRecorder interface {
	// CommitPayment returns the existing transaction together with
	// domain.ErrSettlementAlreadyPaid when the week was already paid.
	CommitPayment(ctx context.Context, driverID, weekID string, req payment.CommitRequest) (*models.PaymentTransaction, error)
}
