package models

import "github.com/shopspring/decimal"

// MoneyPlaces is the number of decimal places every monetary step is rounded to.
const MoneyPlaces = 2

// Round2 rounds half away from zero to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// NonNegative clamps negative amounts to zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
