package solver

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// independentRows returns the indexes of a maximal linearly independent subset
// of the rows of a, walking rows in order. consistent is false when a dropped
// row's right hand side disagrees with the rows it depends on.
func independentRows(a mat.Matrix, b []float64, tol float64) (keep []int, consistent bool) {
	m, n := a.Dims()
	basis := make([][]float64, 0, min(m, n))
	basisRHS := make([]float64, 0, min(m, n))
	consistent = true

	for i := 0; i < m; i++ {
		v := mat.Row(nil, i, a)
		rhs := b[i]
		norm0 := floats.Norm(v, 2)
		// Two Gram-Schmidt passes keep the basis orthogonal in floating point.
		for pass := 0; pass < 2; pass++ {
			for k, q := range basis {
				d := floats.Dot(q, v)
				floats.AddScaled(v, -d, q)
				rhs -= d * basisRHS[k]
			}
		}
		norm := floats.Norm(v, 2)
		if norm <= tol*math.Max(1, norm0) {
			if math.Abs(rhs) > 1e-7*(1+math.Abs(b[i])) {
				consistent = false
			}
			continue
		}
		floats.Scale(1/norm, v)
		basis = append(basis, v)
		basisRHS = append(basisRHS, rhs/norm)
		keep = append(keep, i)
	}
	return keep, consistent
}
