package advisor

import "math"

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
