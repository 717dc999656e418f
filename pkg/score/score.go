// Package score provides percentage and rounding helpers shared by the
// reconciliation and status engines.
package score

import "github.com/shopspring/decimal"

// Percent returns part/whole*100 rounded to one decimal. The denominator is
// floored at 1 so an empty whole yields 0 rather than a division by zero.
func Percent(part, whole int) float64 {
	if whole < 1 {
		whole = 1
	}
	return Round(float64(part)/float64(whole)*100, 1)
}

// Ratio returns |a-b|/b, or 0 when b is not positive.
func Ratio(a, b decimal.Decimal) float64 {
	if !b.IsPositive() {
		return 0
	}
	return a.Sub(b).Abs().Div(b).InexactFloat64()
}

// SignedPercent returns (a-b)/b*100 rounded to one decimal, or 0 when b is not
// positive.
func SignedPercent(a, b decimal.Decimal) float64 {
	if !b.IsPositive() {
		return 0
	}
	return a.Sub(b).Div(b).Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64()
}

// Round rounds half away from zero to the given number of decimal places.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// Clamp keeps a percentage inside [0, 100].
func Clamp(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// AtLeast checks whether a score meets a minimum requirement.
func AtLeast(pct, threshold float64) bool {
	return pct >= threshold
}
