package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the payment lifecycle of a settlement record
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"      // terminal for normal flow
	PaymentCancelled PaymentStatus = "cancelled" // superseded by a correction
)

// SettlementAmounts holds every monetary field of a settlement. Once a week
// is paid a copy is frozen as the payment snapshot.
type SettlementAmounts struct {
	EarningsByPlatform map[Platform]decimal.Decimal `json:"earnings_by_platform"`
	GrossEarnings      decimal.Decimal              `json:"gross_earnings"`
	VAT                decimal.Decimal              `json:"vat"`
	NetAfterVAT        decimal.Decimal              `json:"net_after_vat"`
	FuelCost           decimal.Decimal              `json:"fuel_cost"`
	TollCost           decimal.Decimal              `json:"toll_cost"`
	RentalFee          decimal.Decimal              `json:"rental_fee"`
	FinancingLines     []FinancingLine              `json:"financing_lines"`
	FinancingCost      decimal.Decimal              `json:"financing_cost"`
	AdminFee           AppliedFee                   `json:"admin_fee"`
	BaseNet            decimal.Decimal              `json:"base_net"`
	ExtraCommission    decimal.Decimal              `json:"extra_commission"`
	ReferralBonus      decimal.Decimal              `json:"referral_bonus"`
	GoalReward         decimal.Decimal              `json:"goal_reward"`
	NetPayable         decimal.Decimal              `json:"net_payable"`
	Trips              int                          `json:"trips"`
}

// Clone deep-copies the amounts.
func (a SettlementAmounts) Clone() SettlementAmounts {
	out := a
	if a.EarningsByPlatform != nil {
		out.EarningsByPlatform = make(map[Platform]decimal.Decimal, len(a.EarningsByPlatform))
		for k, v := range a.EarningsByPlatform {
			out.EarningsByPlatform[k] = v
		}
	}
	if a.FinancingLines != nil {
		out.FinancingLines = append([]FinancingLine(nil), a.FinancingLines...)
	}
	return out
}

// Diagnostic is a non-fatal note attached to a record (partial failures,
// unmapped ingestion tags).
type Diagnostic struct {
	Code    string `json:"code"`
	Source  string `json:"source"`
	Message string `json:"message"`
}

// SettlementRecord is the weekly settlement aggregate for one driver.
type SettlementRecord struct {
	ID       string
	DriverID string
	WeekID   string

	SettlementAmounts

	PaymentStatus        PaymentStatus
	PaymentSnapshot      *SettlementAmounts
	PaymentTransactionID *string
	PaidAt               *time.Time

	Diagnostics   []Diagnostic
	PolicyVersion string
	ComputedAt    time.Time
	Version       int64 // bumped on every write
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsPaid reports whether the record is frozen.
func (r *SettlementRecord) IsPaid() bool {
	return r.PaymentStatus == PaymentPaid
}

// Frozen returns a copy whose monetary fields come from the payment
// snapshot. Records without a snapshot are returned as a plain copy.
func (r *SettlementRecord) Frozen() *SettlementRecord {
	out := *r
	if r.PaymentSnapshot != nil {
		out.SettlementAmounts = r.PaymentSnapshot.Clone()
		snap := r.PaymentSnapshot.Clone()
		out.PaymentSnapshot = &snap
	}
	out.Diagnostics = append([]Diagnostic(nil), r.Diagnostics...)
	return &out
}

// InitOutcome discriminates GetOrInitialize results
type InitOutcome string

const (
	InitCreated  InitOutcome = "created"
	InitExisting InitOutcome = "existing"
)

// InitResult is returned by SettlementRepository.GetOrInitialize. Callers
// must branch on Outcome and on Record.PaymentStatus for Existing records.
type InitResult struct {
	Outcome InitOutcome
	Record  *SettlementRecord
}
