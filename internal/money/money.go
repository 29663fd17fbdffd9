// Package money centralizes monetary arithmetic. Balances travel as
// float64 in the domain structs (they round-trip through JSON and the
// record store), but every addition, subtraction, and comparison goes
// through decimal so repeated mutations never accumulate float error.
package money

import "github.com/shopspring/decimal"

// epsilon below which a balance is treated as zero. Residues smaller
// than half a cent are display noise, not real money.
var epsilon = decimal.NewFromFloat(0.005)

// Round2 rounds v to 2 decimal places, half away from zero.
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// Add returns a+b rounded to 2 decimal places.
func Add(a, b float64) float64 {
	f, _ := decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).Round(2).Float64()
	return f
}

// Sub returns a-b rounded to 2 decimal places.
func Sub(a, b float64) float64 {
	f, _ := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Round(2).Float64()
	return f
}

// Negligible reports whether |v| < 0.005, i.e. the value should be
// normalized to exact zero.
func Negligible(v float64) bool {
	return decimal.NewFromFloat(v).Abs().LessThan(epsilon)
}

// Normalize snaps negligible residues to exact zero, otherwise rounds
// to 2 decimal places.
func Normalize(v float64) float64 {
	if Negligible(v) {
		return 0
	}
	return Round2(v)
}

// Less reports a < b with decimal comparison.
func Less(a, b float64) bool {
	return decimal.NewFromFloat(a).LessThan(decimal.NewFromFloat(b))
}

// Greater reports a > b with decimal comparison.
func Greater(a, b float64) bool {
	return decimal.NewFromFloat(a).GreaterThan(decimal.NewFromFloat(b))
}

// Equal reports a == b to the cent.
func Equal(a, b float64) bool {
	return Negligible(Sub(a, b))
}
