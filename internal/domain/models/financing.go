package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FinancingKind distinguishes amortizing loans from flat weekly discounts
type FinancingKind string

const (
	FinancingAmortizing    FinancingKind = "amortizing"
	FinancingFixedDiscount FinancingKind = "fixed_discount"
)

// FinancingStatus represents the lifecycle of an agreement
type FinancingStatus string

const (
	FinancingActive    FinancingStatus = "active"
	FinancingCompleted FinancingStatus = "completed"
)

// FinancingAgreement is a loan or fixed discount the driver repays weekly.
type FinancingAgreement struct {
	ID                    string
	DriverID              string
	Kind                  FinancingKind
	Principal             decimal.Decimal // amortizing only
	FixedAmount           decimal.Decimal // fixed discount only
	TermWeeks             int
	RemainingWeeks        int
	WeeklyInterestPercent decimal.Decimal
	StartDate             time.Time
	Status                FinancingStatus
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Installment returns the weekly principal portion, rounded to cents.
func (a *FinancingAgreement) Installment() decimal.Decimal {
	switch a.Kind {
	case FinancingAmortizing:
		if a.TermWeeks <= 0 {
			return decimal.Zero
		}
		return Round2(a.Principal.Div(decimal.NewFromInt(int64(a.TermWeeks))))
	case FinancingFixedDiscount:
		return Round2(a.FixedAmount)
	default:
		return decimal.Zero
	}
}

// Interest returns the weekly interest on an installment, rounded to cents.
func (a *FinancingAgreement) Interest(installment decimal.Decimal) decimal.Decimal {
	return Round2(installment.Mul(a.WeeklyInterestPercent).Div(decimal.NewFromInt(100)))
}

// FinancingLine is one agreement's contribution to a settlement week.
type FinancingLine struct {
	AgreementID string          `json:"agreement_id"`
	Kind        FinancingKind   `json:"kind"`
	Installment decimal.Decimal `json:"installment"`
	Interest    decimal.Decimal `json:"interest"`
}

// Total is installment plus interest.
func (l FinancingLine) Total() decimal.Decimal {
	return l.Installment.Add(l.Interest)
}
