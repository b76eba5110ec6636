package anomaly

import (
	"math"
)

// cohortStats holds the sufficient statistics for one metric within a cohort.
type cohortStats struct {
	mean   float64
	stdDev float64
}

// computeStats returns the mean and population standard deviation of values.
func computeStats(values []float64) cohortStats {
	n := float64(len(values))
	if n == 0 {
		return cohortStats{}
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	var sqDiff float64
	for _, v := range values {
		d := v - mean
		sqDiff += d * d
	}

	return cohortStats{
		mean:   mean,
		stdDev: math.Sqrt(sqDiff / n),
	}
}

// zScore returns the signed deviation of value in standard-deviation units.
// Callers must guard against zero standard deviation first.
func (s cohortStats) zScore(value float64) float64 {
	return (value - s.mean) / s.stdDev
}
