package expr

import (
	"gonum.org/v1/gonum/mat"
)

// SymMatrix is a constant symmetric matrix, such as a covariance estimate.
// As an Expr it behaves like its row-major flattening.
type SymMatrix struct {
	m *mat.SymDense
}

// NewSymMatrix wraps m. The matrix is not copied.
func NewSymMatrix(m *mat.SymDense) *SymMatrix {
	return &SymMatrix{m: m}
}

// Matrix returns the wrapped matrix.
func (s *SymMatrix) Matrix() *mat.SymDense { return s.m }

// Order returns the number of rows (and columns).
func (s *SymMatrix) Order() int { return s.m.SymmetricDim() }

func (s *SymMatrix) Len() int {
	n := s.Order()
	return n * n
}

func (s *SymMatrix) Curvature() Curvature { return Affine }

func (s *SymMatrix) Value() ([]float64, bool) {
	n := s.Order()
	out := make([]float64, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out = append(out, s.m.At(i, j))
		}
	}
	return out, true
}

func (s *SymMatrix) lower(*lowering) (*Linear, error) {
	v, _ := s.Value()
	return Const(v...), nil
}

// PositiveSemidefinite reports whether every eigenvalue is above -tol.
func (s *SymMatrix) PositiveSemidefinite(tol float64) bool {
	var eig mat.EigenSym
	if ok := eig.Factorize(s.m, false); !ok {
		return false
	}
	for _, v := range eig.Values(nil) {
		if v < -tol {
			return false
		}
	}
	return true
}
