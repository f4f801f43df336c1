package stats

import "math"

// Interval is a confidence interval for a binomial proportion together
// with the intermediate quantities analysis reports.
type Interval struct {
	Lower         float64
	Upper         float64
	StandardError float64
	MarginOfError float64
}

// NormalInterval computes the normal-approximation confidence interval for
// a conversion rate p observed over n subjects, at the given z-score.
// Bounds are clamped to [0, 1]. A zero sample size yields a degenerate
// [0, 0] interval with zero error.
func NormalInterval(p float64, n int, z float64) Interval {
	if n <= 0 {
		return Interval{}
	}

	se := math.Sqrt(p * (1 - p) / float64(n))
	margin := z * se

	lower := p - margin
	if lower < 0 {
		lower = 0
	}
	upper := p + margin
	if upper > 1 {
		upper = 1
	}

	return Interval{
		Lower:         lower,
		Upper:         upper,
		StandardError: se,
		MarginOfError: margin,
	}
}
