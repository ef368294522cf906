package ports

import (
	"context"

	"github.com/kevin07696/settlement-service/internal/domain/models"
)

// IngestionSource reads raw rows from one external ingestion origin.
// Sources are independent and may be read concurrently.
type IngestionSource interface {
	Name() string
	Fetch(ctx context.Context, driverID, weekID string) ([]models.IngestionEntry, error)
}
