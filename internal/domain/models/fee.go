package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeeMode selects how an administrative fee is computed
type FeeMode string

const (
	FeeModePercentOfNet FeeMode = "percent_of_net" // percentage of net-after-VAT
	FeeModeFixedAmount  FeeMode = "fixed_amount"   // flat euro amount per week
)

// ParseFeeMode rejects anything but the two supported modes. There is no
// implicit fallback between them.
func ParseFeeMode(s string) (FeeMode, error) {
	switch FeeMode(s) {
	case FeeModePercentOfNet, FeeModeFixedAmount:
		return FeeMode(s), nil
	default:
		return "", fmt.Errorf("unknown fee mode %q", s)
	}
}

// FeeRule is a fully resolved fee definition (global default or driver override).
type FeeRule struct {
	Mode  FeeMode
	Value decimal.Decimal // percent (e.g. 5 = 5%) or euros, depending on Mode
}

// FeeSource records which rule produced an AppliedFee
type FeeSource string

const (
	FeeSourceExempt   FeeSource = "exempt"
	FeeSourceOverride FeeSource = "override"
	FeeSourceDefault  FeeSource = "default"
)

// AppliedFee is the administrative fee charged for one settlement week.
type AppliedFee struct {
	Source      FeeSource       `json:"source"`
	Mode        FeeMode         `json:"mode,omitempty"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
	ExemptionID string          `json:"exemption_id,omitempty"`
}
