// Package fakes provides in-memory implementations of the repository ports
// backed by a single transactional Store. Transactions snapshot the whole
// store and restore it when the callback fails, so rollback behaviour can be
// asserted without a database.
package fakes

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
	"github.com/shopspring/decimal"
)

// Operation names accepted by Store.FailOn.
const (
	OpDriverGet         = "driver.get"
	OpExemptionList     = "exemption.list"
	OpFinancingList     = "financing.list"
	OpFinancingConsume  = "financing.consume"
	OpSettlementGet     = "settlement.get"
	OpSettlementInit    = "settlement.init"
	OpSettlementUpdate  = "settlement.update"
	OpSettlementMarkPay = "settlement.mark_paid"
	OpPaymentInsert     = "payment.insert"
	OpReferralUpsert    = "referral.upsert"
	OpReferralSum       = "referral.sum"
	OpReferralMarkPaid  = "referral.mark_paid"
	OpGoalList          = "goal.list"
)

type state struct {
	drivers      map[string]*models.Driver
	exemptions   map[string][]models.ExemptionWindow
	agreements   map[string]*models.FinancingAgreement
	consumptions map[string]bool
	settlements  map[string]*models.SettlementRecord
	weekStarts   map[string]time.Time
	payments     map[string]*models.PaymentTransaction
	referrals    map[string]*models.ReferralBonus
	tiers        []models.GoalTier
}

// Store is the shared in-memory database.
type Store struct {
	mu   sync.Mutex // guards st and failures
	txMu sync.Mutex // serializes transactions
	st   state

	failures map[string]error

	// hooks run before the named operation, outside the lock
	hooks map[string]func()
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		st: state{
			drivers:      map[string]*models.Driver{},
			exemptions:   map[string][]models.ExemptionWindow{},
			agreements:   map[string]*models.FinancingAgreement{},
			consumptions: map[string]bool{},
			settlements:  map[string]*models.SettlementRecord{},
			weekStarts:   map[string]time.Time{},
			payments:     map[string]*models.PaymentTransaction{},
			referrals:    map[string]*models.ReferralBonus{},
		},
		failures: map[string]error{},
		hooks:    map[string]func(){},
	}
}

// FailOn makes every call of op return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// OnCall registers a hook executed right before op runs.
func (s *Store) OnCall(op string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[op] = fn
}

func (s *Store) enter(op string) error {
	s.mu.Lock()
	hook := s.hooks[op]
	err := s.failures[op]
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func key(a, b string) string { return a + "|" + b }

// --- seeding helpers -------------------------------------------------------

// AddDriver stores a driver profile.
func (s *Store) AddDriver(d *models.Driver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.st.drivers[d.ID] = &cp
}

// AddExemption stores an exemption window.
func (s *Store) AddExemption(ex models.ExemptionWindow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.exemptions[ex.DriverID] = append(s.st.exemptions[ex.DriverID], ex)
}

// AddAgreement stores a financing agreement.
func (s *Store) AddAgreement(a *models.FinancingAgreement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.st.agreements[a.ID] = &cp
}

// Agreement returns a copy of a stored agreement.
func (s *Store) Agreement(id string) *models.FinancingAgreement {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.st.agreements[id]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

// AddTier stores a goal tier.
func (s *Store) AddTier(t models.GoalTier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.tiers = append(s.st.tiers, t)
}

// Settlement returns a copy of a stored record or nil.
func (s *Store) Settlement(driverID, weekID string) *models.SettlementRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.st.settlements[key(driverID, weekID)]
	if !ok {
		return nil
	}
	return cloneRecord(r)
}

// PutSettlement stores a record directly, bypassing conditional writes.
func (s *Store) PutSettlement(r *models.SettlementRecord, weekStart time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.settlements[key(r.DriverID, r.WeekID)] = cloneRecord(r)
	s.st.weekStarts[key(r.DriverID, r.WeekID)] = weekStart
}

// Payments returns copies of all stored payment transactions.
func (s *Store) Payments() []*models.PaymentTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.PaymentTransaction, 0, len(s.st.payments))
	for _, p := range s.st.payments {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Referrals returns copies of all referral bonus rows.
func (s *Store) Referrals() []*models.ReferralBonus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.ReferralBonus, 0, len(s.st.referrals))
	for _, r := range s.st.referrals {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- transactions ----------------------------------------------------------

// DB implements ports.DBPort over the store.
type DB struct{ s *Store }

// DB returns the transaction manager for the store.
func (s *Store) DB() *DB { return &DB{s: s} }

// GetDB returns nil; there is no pool behind the fake.
func (d *DB) GetDB() *pgxpool.Pool { return nil }

// WithTransaction runs fn with a nil tx and restores the store when fn fails.
func (d *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	d.s.txMu.Lock()
	defer d.s.txMu.Unlock()

	d.s.mu.Lock()
	saved := d.s.st.clone()
	d.s.mu.Unlock()

	if err := fn(ctx, nil); err != nil {
		d.s.mu.Lock()
		d.s.st = saved
		d.s.mu.Unlock()
		return err
	}
	if err := ctx.Err(); err != nil {
		d.s.mu.Lock()
		d.s.st = saved
		d.s.mu.Unlock()
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

var _ ports.DBPort = (*DB)(nil)

func (st state) clone() state {
	out := state{
		drivers:      make(map[string]*models.Driver, len(st.drivers)),
		exemptions:   make(map[string][]models.ExemptionWindow, len(st.exemptions)),
		agreements:   make(map[string]*models.FinancingAgreement, len(st.agreements)),
		consumptions: make(map[string]bool, len(st.consumptions)),
		settlements:  make(map[string]*models.SettlementRecord, len(st.settlements)),
		weekStarts:   make(map[string]time.Time, len(st.weekStarts)),
		payments:     make(map[string]*models.PaymentTransaction, len(st.payments)),
		referrals:    make(map[string]*models.ReferralBonus, len(st.referrals)),
		tiers:        append([]models.GoalTier(nil), st.tiers...),
	}
	for k, v := range st.drivers {
		cp := *v
		out.drivers[k] = &cp
	}
	for k, v := range st.exemptions {
		out.exemptions[k] = append([]models.ExemptionWindow(nil), v...)
	}
	for k, v := range st.agreements {
		cp := *v
		out.agreements[k] = &cp
	}
	for k, v := range st.consumptions {
		out.consumptions[k] = v
	}
	for k, v := range st.settlements {
		out.settlements[k] = cloneRecord(v)
	}
	for k, v := range st.weekStarts {
		out.weekStarts[k] = v
	}
	for k, v := range st.payments {
		cp := *v
		out.payments[k] = &cp
	}
	for k, v := range st.referrals {
		cp := *v
		out.referrals[k] = &cp
	}
	return out
}

func cloneRecord(r *models.SettlementRecord) *models.SettlementRecord {
	cp := *r
	cp.SettlementAmounts = r.SettlementAmounts.Clone()
	if r.PaymentSnapshot != nil {
		snap := r.PaymentSnapshot.Clone()
		cp.PaymentSnapshot = &snap
	}
	cp.Diagnostics = append([]models.Diagnostic(nil), r.Diagnostics...)
	return &cp
}

// --- drivers ---------------------------------------------------------------

// DriverRepo implements ports.DriverRepository.
type DriverRepo struct{ s *Store }

// Drivers returns the driver repository view.
func (s *Store) Drivers() *DriverRepo { return &DriverRepo{s: s} }

func (r *DriverRepo) GetByID(ctx context.Context, db ports.DBTX, driverID string) (*models.Driver, error) {
	if err := r.s.enter(OpDriverGet); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.st.drivers[driverID]
	if !ok {
		return nil, domain.ErrDriverNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *DriverRepo) ListActiveIDs(ctx context.Context, db ports.DBTX) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := make([]string, 0, len(r.s.st.drivers))
	for id, d := range r.s.st.drivers {
		if d.Active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ExemptionRepo implements ports.FeeExemptionRepository.
type ExemptionRepo struct{ s *Store }

// Exemptions returns the exemption repository view.
func (s *Store) Exemptions() *ExemptionRepo { return &ExemptionRepo{s: s} }

func (r *ExemptionRepo) ListForDriver(ctx context.Context, db ports.DBTX, driverID string) ([]models.ExemptionWindow, error) {
	if err := r.s.enter(OpExemptionList); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]models.ExemptionWindow(nil), r.s.st.exemptions[driverID]...), nil
}

// --- financing -------------------------------------------------------------

// FinancingRepo implements ports.FinancingRepository.
type FinancingRepo struct{ s *Store }

// Financing returns the financing repository view.
func (s *Store) Financing() *FinancingRepo { return &FinancingRepo{s: s} }

func (r *FinancingRepo) ListActive(ctx context.Context, db ports.DBTX, driverID string) ([]*models.FinancingAgreement, error) {
	if err := r.s.enter(OpFinancingList); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.FinancingAgreement
	for _, a := range r.s.st.agreements {
		if a.DriverID == driverID && a.Status == models.FinancingActive {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *FinancingRepo) ConsumeWeek(ctx context.Context, tx ports.DBTX, agreementID, weekID string) (bool, error) {
	if err := r.s.enter(OpFinancingConsume); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := key(agreementID, weekID)
	if r.s.st.consumptions[k] {
		return false, nil
	}
	a, ok := r.s.st.agreements[agreementID]
	if !ok {
		return false, fmt.Errorf("agreement %s not found", agreementID)
	}
	r.s.st.consumptions[k] = true
	if a.Kind == models.FinancingAmortizing || a.RemainingWeeks > 0 {
		a.RemainingWeeks--
		if a.RemainingWeeks <= 0 {
			a.RemainingWeeks = 0
			a.Status = models.FinancingCompleted
		}
	}
	return true, nil
}

// --- settlements -----------------------------------------------------------

// SettlementRepo implements ports.SettlementRepository.
type SettlementRepo struct{ s *Store }

// Settlements returns the settlement repository view.
func (s *Store) Settlements() *SettlementRepo { return &SettlementRepo{s: s} }

func (r *SettlementRepo) Get(ctx context.Context, db ports.DBTX, driverID, weekID string) (*models.SettlementRecord, error) {
	if err := r.s.enter(OpSettlementGet); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.st.settlements[key(driverID, weekID)]
	if !ok {
		return nil, domain.ErrSettlementNotFound
	}
	return cloneRecord(rec), nil
}

func (r *SettlementRepo) GetOrInitialize(ctx context.Context, db ports.DBTX, draft *models.SettlementRecord, weekStart time.Time) (*models.InitResult, error) {
	if err := r.s.enter(OpSettlementInit); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := key(draft.DriverID, draft.WeekID)
	if existing, ok := r.s.st.settlements[k]; ok {
		return &models.InitResult{Outcome: models.InitExisting, Record: cloneRecord(existing)}, nil
	}
	rec := cloneRecord(draft)
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Version = 1
	rec.PaymentStatus = models.PaymentPending
	r.s.st.settlements[k] = rec
	r.s.st.weekStarts[k] = weekStart
	return &models.InitResult{Outcome: models.InitCreated, Record: cloneRecord(rec)}, nil
}

func (r *SettlementRepo) UpdateDraft(ctx context.Context, db ports.DBTX, draft *models.SettlementRecord, expectedVersion int64) (bool, error) {
	if err := r.s.enter(OpSettlementUpdate); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := key(draft.DriverID, draft.WeekID)
	existing, ok := r.s.st.settlements[k]
	if !ok || existing.PaymentStatus == models.PaymentPaid || existing.Version != expectedVersion {
		return false, nil
	}
	rec := cloneRecord(draft)
	rec.ID = existing.ID
	rec.CreatedAt = existing.CreatedAt
	rec.PaymentStatus = existing.PaymentStatus
	rec.Version = existing.Version + 1
	r.s.st.settlements[k] = rec
	return true, nil
}

func (r *SettlementRepo) MarkPaid(ctx context.Context, tx ports.DBTX, recordID, transactionID string, snapshot models.SettlementAmounts, paidAt time.Time) (bool, error) {
	if err := r.s.enter(OpSettlementMarkPay); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rec := range r.s.st.settlements {
		if rec.ID != recordID {
			continue
		}
		if rec.PaymentStatus != models.PaymentPending {
			return false, nil
		}
		snap := snapshot.Clone()
		txID := transactionID
		at := paidAt
		rec.PaymentStatus = models.PaymentPaid
		rec.PaymentSnapshot = &snap
		rec.PaymentTransactionID = &txID
		rec.PaidAt = &at
		rec.Version++
		return true, nil
	}
	return false, nil
}

func (r *SettlementRepo) CountPaidBefore(ctx context.Context, db ports.DBTX, driverID string, before time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for k, rec := range r.s.st.settlements {
		if rec.DriverID == driverID && rec.PaymentStatus == models.PaymentPaid && r.s.st.weekStarts[k].Before(before) {
			n++
		}
	}
	return n, nil
}

// --- payments --------------------------------------------------------------

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct{ s *Store }

// PaymentsRepo returns the payment repository view.
func (s *Store) PaymentsRepo() *PaymentRepo { return &PaymentRepo{s: s} }

func (r *PaymentRepo) Insert(ctx context.Context, tx ports.DBTX, p *models.PaymentTransaction) error {
	if err := r.s.enter(OpPaymentInsert); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.st.payments {
		if existing.DriverID == p.DriverID && existing.WeekID == p.WeekID && existing.Status == models.TransactionActive {
			return domain.WrapError(domain.ErrorCodeConflict, "active payment already exists", fmt.Errorf("duplicate key"))
		}
	}
	cp := *p
	r.s.st.payments[p.ID] = &cp
	return nil
}

func (r *PaymentRepo) GetActive(ctx context.Context, db ports.DBTX, driverID, weekID string) (*models.PaymentTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.st.payments {
		if p.DriverID == driverID && p.WeekID == weekID && p.Status == models.TransactionActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

// --- accumulators ----------------------------------------------------------

// ReferralRepo implements ports.ReferralRepository.
type ReferralRepo struct{ s *Store }

// ReferralsRepo returns the referral repository view.
func (s *Store) ReferralsRepo() *ReferralRepo { return &ReferralRepo{s: s} }

func referralKey(b *models.ReferralBonus) string {
	return fmt.Sprintf("%s|%s|%s|%d", b.ReferrerID, b.SourceDriverID, b.WeekID, b.Level)
}

func (r *ReferralRepo) UpsertAccrued(ctx context.Context, db ports.DBTX, b *models.ReferralBonus) (models.AccrualOutcome, error) {
	if err := r.s.enter(OpReferralUpsert); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	payoutWeek := b.PayoutWeekID
	if payoutWeek == "" {
		payoutWeek = b.WeekID
	}
	k := referralKey(b)
	existing, ok := r.s.st.referrals[k]
	if ok && existing.Status == models.ReferralPaid {
		return models.AccrualAlreadyPaid, nil
	}
	if target, found := r.s.st.settlements[key(b.ReferrerID, payoutWeek)]; found && target.PaymentStatus == models.PaymentPaid {
		return models.AccrualWeekClosed, nil
	}
	if ok {
		existing.Rate = b.Rate
		existing.BaseAmount = b.BaseAmount
		existing.Amount = b.Amount
		existing.PayoutWeekID = payoutWeek
		return models.AccrualWritten, nil
	}
	cp := *b
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.PayoutWeekID = payoutWeek
	cp.Status = models.ReferralAccrued
	r.s.st.referrals[k] = &cp
	return models.AccrualWritten, nil
}

func (r *ReferralRepo) SumAccrued(ctx context.Context, db ports.DBTX, referrerID, payoutWeekID string) (decimal.Decimal, error) {
	if err := r.s.enter(OpReferralSum); err != nil {
		return decimal.Zero, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	total := decimal.Zero
	for _, b := range r.s.st.referrals {
		if b.ReferrerID == referrerID && b.PayoutWeekID == payoutWeekID && b.Status == models.ReferralAccrued {
			total = total.Add(b.Amount)
		}
	}
	return total, nil
}

func (r *ReferralRepo) MarkPaid(ctx context.Context, tx ports.DBTX, referrerID, payoutWeekID string, paidAt time.Time) (decimal.Decimal, error) {
	if err := r.s.enter(OpReferralMarkPaid); err != nil {
		return decimal.Zero, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	total := decimal.Zero
	for _, b := range r.s.st.referrals {
		if b.ReferrerID == referrerID && b.PayoutWeekID == payoutWeekID && b.Status == models.ReferralAccrued {
			at := paidAt
			b.Status = models.ReferralPaid
			b.PaidAt = &at
			total = total.Add(b.Amount)
		}
	}
	return total, nil
}

// GoalRepo implements ports.GoalRepository.
type GoalRepo struct{ s *Store }

// Goals returns the goal repository view.
func (s *Store) Goals() *GoalRepo { return &GoalRepo{s: s} }

func (r *GoalRepo) ListActiveTiers(ctx context.Context, db ports.DBTX) ([]models.GoalTier, error) {
	if err := r.s.enter(OpGoalList); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.GoalTier
	for _, t := range r.s.st.tiers {
		if t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}
