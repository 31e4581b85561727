package scoring

import (
	"math"
	"sort"
)

// StableSum adds values in ascending order so the result does not depend on
// the order they were supplied in. Float addition is not associative; sorting
// first makes any permutation of the same values produce the same bits.
func StableSum(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var total float64
	for _, v := range sorted {
		total += v
	}
	return total
}

// RoundHalfUp rounds to the nearest integer with .5 going toward +inf
// (2.5 → 3, -2.5 → -2). This is the only rounding used when producing
// direct and propagated scores.
func RoundHalfUp(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	f := math.Floor(x)
	if x-f >= 0.5 {
		return f + 1
	}
	return f
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
