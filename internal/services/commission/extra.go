// Package commission holds the three additions layered on top of a
// driver's base net: extra commission, referral bonuses and goal rewards.
package commission

import (
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ExtraCommission evaluates the rule for driverType against amounts. It
// returns zero when the policy is disabled or has no rule for the type.
// The result is never negative.
func ExtraCommission(policy models.CommissionPolicy, driverType models.DriverType, amounts models.SettlementAmounts) decimal.Decimal {
	if !policy.Enabled {
		return decimal.Zero
	}
	rule, ok := policy.Rules[driverType]
	if !ok {
		return decimal.Zero
	}

	switch rule.Mode {
	case models.CommissionFixed:
		return models.NonNegative(models.Round2(rule.Value))
	case models.CommissionPercent:
		base := commissionBase(rule.Base, amounts)
		return models.NonNegative(models.Round2(base.Mul(rule.Value).Div(hundred)))
	default:
		return decimal.Zero
	}
}

func commissionBase(base models.CommissionBase, a models.SettlementAmounts) decimal.Decimal {
	switch base {
	case models.CommissionBaseGross:
		return a.GrossEarnings
	case models.CommissionBaseNetOfVAT:
		return a.NetAfterVAT
	case models.CommissionBaseNetOfExpenses:
		return models.Round2(a.NetAfterVAT.Sub(a.FuelCost).Sub(a.TollCost))
	default:
		return decimal.Zero
	}
}
