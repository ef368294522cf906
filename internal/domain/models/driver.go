package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DriverType determines rental fee and extra commission rules
type DriverType string

const (
	DriverTypeAffiliate DriverType = "affiliate" // self-employed, own vehicle
	DriverTypeRenter    DriverType = "renter"    // rents a fleet vehicle
)

// Driver is the read-only driver profile consumed by the settlement engine.
type Driver struct {
	ID          string
	Name        string
	Type        DriverType
	RentalFee   *decimal.Decimal // weekly vehicle rental, renters only
	FeeOverride *FeeRule
	IBAN        *string
	ReferredBy  *string // upline driver ID
	Active      bool
	CreatedAt   time.Time
}

// WeeklyRentalFee returns the rental fee or zero when none applies.
func (d *Driver) WeeklyRentalFee() decimal.Decimal {
	if d.RentalFee == nil {
		return decimal.Zero
	}
	return Round2(*d.RentalFee)
}

// ExemptionWindow waives the administrative fee for weeks starting inside
// [From, To], both ends inclusive.
type ExemptionWindow struct {
	ID       string
	DriverID string
	From     time.Time
	To       time.Time
	Reason   string
}

// Covers reports whether t falls inside the window by calendar date.
func (e ExemptionWindow) Covers(t time.Time) bool {
	day := t.UTC().Truncate(24 * time.Hour)
	from := e.From.UTC().Truncate(24 * time.Hour)
	to := e.To.UTC().Truncate(24 * time.Hour)
	return !day.Before(from) && !day.After(to)
}
