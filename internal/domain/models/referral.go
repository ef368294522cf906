package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReferralStatus tracks whether a bonus has been paid out to the referrer
type ReferralStatus string

const (
	ReferralAccrued ReferralStatus = "accrued"
	ReferralPaid    ReferralStatus = "paid"
)

// AccrualOutcome says what an accrual upsert did with a bonus row.
type AccrualOutcome int

const (
	// AccrualWritten means the row was inserted or its unpaid amounts refreshed.
	AccrualWritten AccrualOutcome = iota
	// AccrualAlreadyPaid means the row was paid earlier and left untouched.
	AccrualAlreadyPaid
	// AccrualWeekClosed means the payout week is settled; nothing was written.
	AccrualWeekClosed
)

// ReferralBonus is one level of commission earned by a referrer from a
// downline driver's week. Unique per (referrer, source, week, level).
//
// PayoutWeekID is the referrer week whose settlement pays the bonus. It is
// WeekID unless that week was already paid when the bonus accrued, in which
// case the bonus moves to the referrer's next unpaid week.
type ReferralBonus struct {
	ID             string
	ReferrerID     string
	SourceDriverID string
	WeekID         string
	PayoutWeekID   string
	Level          int
	Rate           decimal.Decimal // percent
	BaseAmount     decimal.Decimal
	Amount         decimal.Decimal
	Status         ReferralStatus
	PaidAt         *time.Time
	CreatedAt      time.Time
}
