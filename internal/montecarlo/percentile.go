package montecarlo

import (
	"math"
	"strconv"
)

// Percentile returns the p-th percentile (0..100) of an ascending slice,
// linearly interpolating between the order statistics around rank
// (n-1)*p/100. An empty slice yields NaN.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 || p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}

	rank := float64(n-1) * p / 100
	lo := int(math.Floor(rank))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// Round2 rounds to two decimals using the exact binary value of v, so
// 60.445 (stored as 60.44500000000000028...) becomes 60.45. Exact ties go to
// even.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return r
}

// shiftedMean averages values relative to the first one so that a column of
// identical prices reduces to exactly that price.
func shiftedMean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	base := values[0]
	var sum float64
	for _, v := range values {
		sum += v - base
	}
	return base + sum/float64(len(values))
}
