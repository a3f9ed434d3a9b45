// Package formulas holds the numeric series helpers used to turn aligned price
// columns into the constant inputs of the optimization model.
package formulas

import "gonum.org/v1/gonum/mat"

// PctChange returns day-over-day changes: out[i] = (v[i+1] - v[i]) / v[i].
// The first observation has no predecessor, so the result is one shorter than v.
func PctChange(v []float64) []float64 {
	if len(v) < 2 {
		return []float64{}
	}
	out := make([]float64, len(v)-1)
	for i := 1; i < len(v); i++ {
		out[i-1] = (v[i] - v[i-1]) / v[i-1]
	}
	return out
}

// PctChangeFromStart returns out[i] = (v[i] - v[0]) / v[0], so out[0] is always 0.
func PctChangeFromStart(v []float64) []float64 {
	out := make([]float64, len(v))
	if len(v) == 0 {
		return out
	}
	for i := range v {
		out[i] = (v[i] - v[0]) / v[0]
	}
	return out
}

// PctChangeMatrix applies PctChange to every column of prices.
func PctChangeMatrix(prices mat.Matrix) *mat.Dense {
	return columnwise(prices, PctChange)
}

// PctChangeFromStartMatrix applies PctChangeFromStart to every column of prices.
func PctChangeFromStartMatrix(prices mat.Matrix) *mat.Dense {
	return columnwise(prices, PctChangeFromStart)
}

func columnwise(m mat.Matrix, f func([]float64) []float64) *mat.Dense {
	r, c := m.Dims()
	var out *mat.Dense
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, m)
		res := f(col)
		if out == nil {
			if len(res) == 0 {
				return &mat.Dense{}
			}
			out = mat.NewDense(len(res), c, nil)
		}
		out.SetCol(j, res)
	}
	if out == nil {
		return &mat.Dense{}
	}
	return out
}
