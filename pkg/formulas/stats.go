package formulas

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// PopStdDev is the population (ddof=0) standard deviation.
func PopStdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.PopStdDev(data, nil)
}

// CovarianceMatrix returns the sample covariance of the columns of returns
// (rows are observations). Fewer than two observations yield a zero matrix.
func CovarianceMatrix(returns mat.Matrix) *mat.SymDense {
	r, c := returns.Dims()
	if r < 2 {
		return mat.NewSymDense(c, nil)
	}
	cov := mat.NewSymDense(c, nil)
	stat.CovarianceMatrix(cov, returns, nil)
	return cov
}

// FractionAbove is the share of elements strictly greater than threshold.
func FractionAbove(data []float64, threshold float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	n := 0
	for _, v := range data {
		if v > threshold {
			n++
		}
	}
	return float64(n) / float64(len(data))
}

// FractionBelow is the share of elements strictly lower than threshold.
func FractionBelow(data []float64, threshold float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	n := 0
	for _, v := range data {
		if v < threshold {
			n++
		}
	}
	return float64(n) / float64(len(data))
}
