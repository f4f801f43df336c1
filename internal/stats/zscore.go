package stats

// ZScore returns the two-sided z-score for a configured confidence level.
// The table is fixed; any level not in it gets the 95% default of 1.96.
func ZScore(confidence float64) float64 {
	switch confidence {
	case 0.99:
		return 2.58
	case 0.95:
		return 1.96
	case 0.90:
		return 1.64
	case 0.85:
		return 1.44
	case 0.80:
		return 1.28
	default:
		return 1.96
	}
}
