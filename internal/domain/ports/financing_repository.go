package ports

import (
	"context"

	"github.com/kevin07696/settlement-service/internal/domain/models"
)

// FinancingRepository stores financing agreements.
type FinancingRepository interface {
	// ListActive returns the driver's agreements with status active.
	ListActive(ctx context.Context, db DBTX, driverID string) ([]*models.FinancingAgreement, error)

	// ConsumeWeek records that weekID consumed one installment of the
	// agreement. The first call per (agreement, week) decrements
	// remaining_weeks (completing the agreement at zero) and returns true;
	// repeated calls are no-ops returning false.
	ConsumeWeek(ctx context.Context, tx DBTX, agreementID, weekID string) (bool, error)
}
