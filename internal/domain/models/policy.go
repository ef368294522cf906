package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// CommissionMode selects how extra commission is computed
type CommissionMode string

const (
	CommissionPercent CommissionMode = "percent"
	CommissionFixed   CommissionMode = "fixed"
)

// CommissionBase selects the amount a percentage commission applies to
type CommissionBase string

const (
	CommissionBaseGross         CommissionBase = "gross"
	CommissionBaseNetOfVAT      CommissionBase = "net_of_vat"
	CommissionBaseNetOfExpenses CommissionBase = "net_of_expenses"
)

// CommissionRule is the extra commission formula for one driver type.
type CommissionRule struct {
	Mode  CommissionMode  `json:"mode"`
	Value decimal.Decimal `json:"value"`
	Base  CommissionBase  `json:"base"`
}

// CommissionPolicy configures extra commission per driver type.
type CommissionPolicy struct {
	Enabled bool                          `json:"enabled"`
	Rules   map[DriverType]CommissionRule `json:"rules"`
}

// ReferralPolicy configures multi-level referral accrual.
type ReferralPolicy struct {
	Enabled          bool              `json:"enabled"`
	LevelRates       []decimal.Decimal `json:"level_rates"` // percent per level, index 0 = level 1
	MaxDepth         int               `json:"max_depth"`
	RevenueThreshold decimal.Decimal   `json:"revenue_threshold"`
	MinTenureWeeks   int               `json:"min_tenure_weeks"`
}

// RateForLevel returns the percent rate for a 1-based level, zero past the table.
func (p ReferralPolicy) RateForLevel(level int) decimal.Decimal {
	if level < 1 || level > len(p.LevelRates) {
		return decimal.Zero
	}
	return p.LevelRates[level-1]
}

// Depth is the effective number of levels walked.
func (p ReferralPolicy) Depth() int {
	if p.MaxDepth < len(p.LevelRates) {
		return p.MaxDepth
	}
	return len(p.LevelRates)
}

// PolicySnapshot is the immutable configuration resolved once per
// computation. Two computations with equal snapshots and equal inputs
// produce equal records.
type PolicySnapshot struct {
	VATRate      decimal.Decimal  `json:"vat_rate"`
	DefaultFee   FeeRule          `json:"default_fee"`
	Eligibility  string           `json:"eligibility"`
	Commission   CommissionPolicy `json:"commission"`
	Referral     ReferralPolicy   `json:"referral"`
	GoalsEnabled bool             `json:"goals_enabled"`
}

// Version fingerprints the snapshot so stored drafts can be traced to the
// configuration that produced them.
func (p PolicySnapshot) Version() string {
	raw, err := json.Marshal(p)
	if err != nil {
		return "unversioned"
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:8])
}
