package formulas

// Drawdown returns the distance of every point from the running maximum of r,
// dd[i] = max(r[0..i]) - r[i]. Values are never negative.
func Drawdown(r []float64) []float64 {
	out := make([]float64, len(r))
	if len(r) == 0 {
		return out
	}
	peak := r[0]
	for i, v := range r {
		if v > peak {
			peak = v
		}
		out[i] = peak - v
	}
	return out
}

// MaxDrawdown is the largest value of Drawdown(r), or 0 for an empty series.
func MaxDrawdown(r []float64) float64 {
	worst := 0.0
	for _, d := range Drawdown(r) {
		if d > worst {
			worst = d
		}
	}
	return worst
}
