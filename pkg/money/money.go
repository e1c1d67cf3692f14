// Package money provides cent-denominated price helpers.
package money

import "github.com/shopspring/decimal"

// RoundingMode selects how a proposed price is snapped.
type RoundingMode string

const (
	// RoundPlain rounds to the nearest whole cent.
	RoundPlain RoundingMode = "plain"
	// Round99 snaps to a .99 ending (psychological pricing).
	Round99 RoundingMode = "99"
	// Round95 snaps to a .95 ending.
	Round95 RoundingMode = "95"
)

var hundred = decimal.NewFromInt(100)

// Round applies the rounding mode to a cent amount. Psychological modes
// floor to the dollar and append the ending.
func Round(price decimal.Decimal, mode RoundingMode) decimal.Decimal {
	switch mode {
	case Round99:
		return price.Div(hundred).Floor().Mul(hundred).Add(decimal.NewFromInt(99))
	case Round95:
		return price.Div(hundred).Floor().Mul(hundred).Add(decimal.NewFromInt(95))
	default:
		return price.Round(0)
	}
}

// PercentChange returns the relative change from old to new as a percentage.
// The division happens in decimal space so exact ratios (110/1100) survive
// the conversion to float64.
func PercentChange(old, new decimal.Decimal) float64 {
	if old.IsZero() {
		return 0
	}
	return new.Sub(old).Div(old).Mul(hundred).InexactFloat64()
}

// Cents builds a decimal amount from whole cents.
func Cents(c int64) decimal.Decimal {
	return decimal.NewFromInt(c)
}

// Dollars formats a cent amount as a dollar string for log messages.
func Dollars(cents decimal.Decimal) string {
	return "$" + cents.Div(hundred).StringFixed(2)
}
