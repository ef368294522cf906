// Package fee resolves the administrative fee charged to a driver for a week.
package fee

import (
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Resolver applies exemption > override > default precedence. It holds no
// state; the same inputs always yield the same fee.
type Resolver struct{}

// NewResolver creates a fee resolver
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the fee for the week starting at week.Start.
//
// netAfterVAT is the base for percentage rules and must already be rounded.
// A negative percentage result is clamped to zero so a loss-making week is
// never credited by the fee.
func (r *Resolver) Resolve(
	driver *models.Driver,
	exemptions []models.ExemptionWindow,
	week models.Week,
	netAfterVAT decimal.Decimal,
	defaultRule models.FeeRule,
) models.AppliedFee {
	for _, ex := range exemptions {
		if ex.Covers(week.Start) {
			return models.AppliedFee{
				Source:      models.FeeSourceExempt,
				Rate:        decimal.Zero,
				Amount:      decimal.Zero,
				ExemptionID: ex.ID,
			}
		}
	}

	if driver != nil && driver.FeeOverride != nil {
		return apply(models.FeeSourceOverride, *driver.FeeOverride, netAfterVAT)
	}

	return apply(models.FeeSourceDefault, defaultRule, netAfterVAT)
}

func apply(source models.FeeSource, rule models.FeeRule, netAfterVAT decimal.Decimal) models.AppliedFee {
	fee := models.AppliedFee{Source: source, Mode: rule.Mode, Rate: rule.Value}

	switch rule.Mode {
	case models.FeeModePercentOfNet:
		fee.Amount = models.NonNegative(models.Round2(netAfterVAT.Mul(rule.Value).Div(hundred)))
	case models.FeeModeFixedAmount:
		fee.Amount = models.NonNegative(models.Round2(rule.Value))
	default:
		// Unreachable with a validated snapshot; charge nothing rather than guess a mode.
		fee.Amount = decimal.Zero
	}

	return fee
}
