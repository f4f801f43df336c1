package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// PValueAgainstZero computes the two-sided p-value of a z-test of the
// observed conversion rate against zero, using the standard normal
// survival function (equivalently the complementary error function:
// p = erfc(|z|/sqrt(2))).
//
// Callers gate this on sample size; the normal approximation is only
// meaningful for n > 30.
func PValueAgainstZero(rate float64, n int) float64 {
	if n <= 0 || rate <= 0 {
		return 1.0
	}

	se := math.Sqrt(rate * (1 - rate) / float64(n))
	if se == 0 {
		// rate is exactly 0 or 1 with no sampling noise
		return 0.0
	}

	z := rate / se
	return 2 * distuv.UnitNormal.Survival(math.Abs(z))
}

// Lift returns the relative improvement of a variant rate over the control
// rate, in percent. A zero control rate yields zero lift by convention.
func Lift(variantRate, controlRate float64) float64 {
	if controlRate == 0 {
		return 0
	}
	return (variantRate - controlRate) / controlRate * 100
}
