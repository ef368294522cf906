package ports

import (
	"context"
	"time"

	"github.com/kevin07696/settlement-service/internal/domain/models"
)

// SettlementRepository persists settlement records keyed by (driver, week).
type SettlementRepository interface {
	// Get returns domain.ErrSettlementNotFound when no record exists.
	Get(ctx context.Context, db DBTX, driverID, weekID string) (*models.SettlementRecord, error)

	// GetOrInitialize inserts draft when the key is new (InitCreated) or
	// returns the stored record untouched (InitExisting).
	GetOrInitialize(ctx context.Context, db DBTX, draft *models.SettlementRecord, weekStart time.Time) (*models.InitResult, error)

	// UpdateDraft overwrites a pending record's computed fields. It is a
	// conditional write: it returns false without error when the stored
	// record is paid or its version no longer matches expectedVersion.
	UpdateDraft(ctx context.Context, db DBTX, draft *models.SettlementRecord, expectedVersion int64) (bool, error)

	// MarkPaid flips pending to paid and freezes snapshot. Returns false
	// when the record was not pending.
	MarkPaid(ctx context.Context, tx DBTX, recordID, transactionID string, snapshot models.SettlementAmounts, paidAt time.Time) (bool, error)

	// CountPaidBefore counts paid weeks of a driver that start before the given time.
	CountPaidBefore(ctx context.Context, db DBTX, driverID string, before time.Time) (int, error)
}

// SettlementCache caches settlement records outside the database. Paid
// records are immutable and may be cached without expiry.
type SettlementCache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, driverID, weekID string) (*models.SettlementRecord, error)
	// Put never lets an older pending draft replace what is cached.
	Put(ctx context.Context, record *models.SettlementRecord, ttl time.Duration) error
	// Invalidate is called once a week is paid. Until the paid record is
	// cached again, pending drafts are refused.
	Invalidate(ctx context.Context, driverID, weekID string) error
}
