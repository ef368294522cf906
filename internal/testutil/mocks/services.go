package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/services/payment"
)

// MockSettlementService is a testify mock of ports.SettlementService.
type MockSettlementService struct {
	mock.Mock
}

func (m *MockSettlementService) GetDriverWeekSettlement(ctx context.Context, driverID, weekID string, forceRefresh bool) (*models.SettlementRecord, error) {
	args := m.Called(ctx, driverID, weekID, forceRefresh)
	rec, _ := args.Get(0).(*models.SettlementRecord)
	return rec, args.Error(1)
}

// MockPaymentRecorder is a testify mock of ports.PaymentRecorder.
type MockPaymentRecorder struct {
	mock.Mock
}

func (m *MockPaymentRecorder) CommitPayment(ctx context.Context, driverID, weekID string, req payment.CommitRequest) (*models.PaymentTransaction, error) {
	args := m.Called(ctx, driverID, weekID, req)
	txn, _ := args.Get(0).(*models.PaymentTransaction)
	return txn, args.Error(1)
}
