package analytics

import (
	"math"

	"github.com/shopspring/decimal"
)

// sqrtPrecision is the number of fractional digits carried while iterating.
const sqrtPrecision = 24

// SampleStdDev returns the n-1 standard deviation from a window's sum and
// sum of squares. Callers guarantee n > 1.
func SampleStdDev(sum, sumSq decimal.Decimal, n int64) decimal.Decimal {
	dn := decimal.NewFromInt(n)
	num := dn.Mul(sumSq).Sub(sum.Mul(sum))
	if num.Sign() <= 0 {
		return decimal.Zero
	}
	variance := num.DivRound(dn.Mul(decimal.NewFromInt(n-1)), sqrtPrecision)
	return Sqrt(variance)
}

// Sqrt computes a decimal square root by Newton iteration, seeded from float64.
func Sqrt(v decimal.Decimal) decimal.Decimal {
	if v.Sign() <= 0 {
		return decimal.Zero
	}
	x := decimal.NewFromFloat(math.Sqrt(v.InexactFloat64()))
	if x.Sign() <= 0 {
		x = decimal.NewFromInt(1)
	}
	two := decimal.NewFromInt(2)
	eps := decimal.New(1, -sqrtPrecision+2)
	for i := 0; i < 64; i++ {
		next := x.Add(v.DivRound(x, sqrtPrecision)).DivRound(two, sqrtPrecision)
		if next.Sub(x).Abs().Cmp(eps) <= 0 {
			return next
		}
		x = next
	}
	return x
}
