package ports

import (
	"context"

	"github.com/kevin07696/settlement-service/internal/domain/models"
)

// PaymentRepository persists payment transactions.
type PaymentRepository interface {
	// Insert returns a domain CONFLICT error when an active transaction
	// already exists for the same (driver, week).
	Insert(ctx context.Context, tx DBTX, payment *models.PaymentTransaction) error

	// GetActive returns domain.ErrPaymentNotFound when there is none.
	GetActive(ctx context.Context, db DBTX, driverID, weekID string) (*models.PaymentTransaction, error)
}
