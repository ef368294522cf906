package ports

import (
	"context"

	"github.com/kevin07696/settlement-service/internal/domain/models"
)

// PolicyProvider resolves the configuration snapshot for one computation.
type PolicyProvider interface {
	Snapshot(ctx context.Context) (models.PolicySnapshot, error)
}
