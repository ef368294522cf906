package models

import "github.com/shopspring/decimal"

// GoalTier is one performance target; every satisfied tier pays once per week.
type GoalTier struct {
	ID         string
	Name       string
	MinRides   int
	MinRevenue decimal.Decimal
	Reward     decimal.Decimal
	Active     bool
}

// Satisfied reports whether the week's rides and revenue reach the tier.
func (g GoalTier) Satisfied(rides int, revenue decimal.Decimal) bool {
	return rides >= g.MinRides && revenue.GreaterThanOrEqual(g.MinRevenue)
}
