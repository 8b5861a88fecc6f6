package analysis

import "math"

// weightedCount converts a row-local percentage into an absolute number of
// participants.
func weightedCount(pct, participants float64) float64 {
	return pct * participants / 100
}

// percentOf returns count as a percentage of total, rounded to two decimals.
// A zero (or negative) total yields 0 instead of NaN or Inf.
func percentOf(count, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return RoundPercent(count / total * 100)
}

// RoundPercent rounds to two decimal places, halves away from zero.
// Non-finite input collapses to 0.
func RoundPercent(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	r := math.Round(x*100) / 100
	if r == 0 {
		// normalise -0
		return 0
	}
	return r
}
