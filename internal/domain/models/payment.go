package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus marks whether a payment transaction is the active one for its week
type TransactionStatus string

const (
	TransactionActive     TransactionStatus = "active"
	TransactionSuperseded TransactionStatus = "superseded"
)

// PaymentTransaction is the sole writer of PaymentPaid on a settlement record.
type PaymentTransaction struct {
	ID             string
	RecordID       string
	DriverID       string
	WeekID         string
	BaseAmount     decimal.Decimal
	BonusAmount    decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
	PaymentDate    time.Time
	ProofRef       *string // object store path
	ProofURL       *string
	Actor          string
	Notes          string
	Status         TransactionStatus
	CreatedAt      time.Time
}

// ComputeTotal returns base + bonus - discount rounded to cents.
func ComputeTotal(base, bonus, discount decimal.Decimal) decimal.Decimal {
	return Round2(base.Add(bonus).Sub(discount))
}
