package ports

import (
	"context"

	"github.com/kevin07696/settlement-service/internal/domain/models"
)

// DriverRepository reads driver profiles. Read-only to the settlement engine.
type DriverRepository interface {
	// GetByID returns domain.ErrDriverNotFound for unknown IDs.
	GetByID(ctx context.Context, db DBTX, driverID string) (*models.Driver, error)
	ListActiveIDs(ctx context.Context, db DBTX) ([]string, error)
}

// FeeExemptionRepository reads administrative fee exemption windows.
type FeeExemptionRepository interface {
	ListForDriver(ctx context.Context, db DBTX, driverID string) ([]models.ExemptionWindow, error)
}
