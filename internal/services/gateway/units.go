package gateway

import "github.com/shopspring/decimal"

var minorFactor = decimal.NewFromInt(100)

// ToMinorUnits converts a major-unit amount to integer minor units, rounding
// half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(minorFactor).Round(0).IntPart()
}

// FromMinorUnits converts integer minor units back to a major-unit amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
