package expr

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Curvature classifies an expression for convexity checks.
type Curvature int

const (
	Affine Curvature = iota
	Convex
	Concave
	Unknown
)

func (c Curvature) String() string {
	switch c {
	case Affine:
		return "affine"
	case Convex:
		return "convex"
	case Concave:
		return "concave"
	default:
		return "unknown"
	}
}

func (c Curvature) plus(o Curvature) Curvature {
	switch {
	case c == Affine:
		return o
	case o == Affine, c == o:
		return c
	default:
		return Unknown
	}
}

func (c Curvature) times(k float64) Curvature {
	if k >= 0 {
		return c
	}
	switch c {
	case Convex:
		return Concave
	case Concave:
		return Convex
	}
	return c
}

// IsConvex reports whether the curvature is affine or convex.
func (c Curvature) IsConvex() bool { return c == Affine || c == Convex }

// IsConcave reports whether the curvature is affine or concave.
func (c Curvature) IsConcave() bool { return c == Affine || c == Concave }

// Expr is a vector valued expression.
//
// Lowering an expression yields affine forms L with L == e for affine e,
// L >= e for convex e and L <= e for concave e. The extra rows that make the
// bound hold are recorded on the lowering.
type Expr interface {
	Len() int
	Curvature() Curvature
	Value() ([]float64, bool)
	lower(l *lowering) (*Linear, error)
}

func broadcastLen(a, b int) int {
	switch {
	case a == b, b == 1:
		return a
	case a == 1:
		return b
	}
	panic(fmt.Errorf("%w: lengths %d and %d", ErrShape, a, b))
}

type term struct {
	coef float64
	e    Expr
}

// combo is a linear combination of expressions that are not all affine.
type combo struct {
	terms []term
	n     int
}

func (c *combo) Len() int { return c.n }

func (c *combo) Curvature() Curvature {
	curv := Affine
	for _, t := range c.terms {
		curv = curv.plus(t.e.Curvature().times(t.coef))
	}
	return curv
}

func (c *combo) Value() ([]float64, bool) {
	out := make([]float64, c.n)
	for _, t := range c.terms {
		v, ok := t.e.Value()
		if !ok {
			return nil, false
		}
		for i := range out {
			if len(v) == 1 {
				out[i] += t.coef * v[0]
			} else {
				out[i] += t.coef * v[i]
			}
		}
	}
	return out, true
}

func (c *combo) lower(l *lowering) (*Linear, error) {
	coefs := make([]float64, len(c.terms))
	lins := make([]*Linear, len(c.terms))
	for i, t := range c.terms {
		lin, err := t.e.lower(l)
		if err != nil {
			return nil, err
		}
		coefs[i], lins[i] = t.coef, lin
	}
	return combineLinear(c.n, coefs, lins), nil
}

func termsOf(e Expr, k float64) []term {
	if c, ok := e.(*combo); ok && c.n == e.Len() {
		out := make([]term, len(c.terms))
		for i, t := range c.terms {
			out[i] = term{coef: k * t.coef, e: t.e}
		}
		return out
	}
	return []term{{coef: k, e: e}}
}

func weighted(n int, ts []term) Expr {
	lins := make([]*Linear, 0, len(ts))
	coefs := make([]float64, 0, len(ts))
	for _, t := range ts {
		lin, ok := t.e.(*Linear)
		if !ok {
			return &combo{terms: ts, n: n}
		}
		lins = append(lins, lin)
		coefs = append(coefs, t.coef)
	}
	return combineLinear(n, coefs, lins)
}

// Add returns a + b. A length 1 operand is broadcast.
func Add(a, b Expr) Expr {
	n := broadcastLen(a.Len(), b.Len())
	return weighted(n, append(termsOf(a, 1), termsOf(b, 1)...))
}

// Sub returns a - b. A length 1 operand is broadcast.
func Sub(a, b Expr) Expr {
	n := broadcastLen(a.Len(), b.Len())
	return weighted(n, append(termsOf(a, 1), termsOf(b, -1)...))
}

// Scale returns k * e.
func Scale(k float64, e Expr) Expr {
	if lin, ok := e.(*Linear); ok {
		return lin.scale(k)
	}
	if k == 0 {
		return Const(make([]float64, e.Len())...)
	}
	return weighted(e.Len(), termsOf(e, k))
}

// Neg returns -e.
func Neg(e Expr) Expr { return Scale(-1, e) }

// Scalar wraps a constant as a length 1 expression.
func Scalar(v float64) *Linear { return Const(v) }

type pick struct {
	j int
	w float64
}

// selection maps its argument through a sparse matrix with non-negative entries,
// which preserves curvature.
type selection struct {
	arg  Expr
	rows [][]pick
}

func (s *selection) Len() int             { return len(s.rows) }
func (s *selection) Curvature() Curvature { return s.arg.Curvature() }

func (s *selection) Value() ([]float64, bool) {
	v, ok := s.arg.Value()
	if !ok {
		return nil, false
	}
	out := make([]float64, len(s.rows))
	for i, ps := range s.rows {
		for _, p := range ps {
			out[i] += p.w * v[p.j]
		}
	}
	return out, true
}

func (s *selection) lower(l *lowering) (*Linear, error) {
	lin, err := s.arg.lower(l)
	if err != nil {
		return nil, err
	}
	return lin.pick(s.rows), nil
}

func selectRows(e Expr, rows [][]pick) Expr {
	if lin, ok := e.(*Linear); ok {
		return lin.pick(rows)
	}
	return &selection{arg: e, rows: rows}
}

// Index returns element i of e. Negative indexes count from the end.
func Index(e Expr, i int) Expr {
	n := e.Len()
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		panic(fmt.Errorf("%w: index %d out of range for length %d", ErrShape, i, n))
	}
	return selectRows(e, [][]pick{{{j: i, w: 1}}})
}

// Last returns the final element of e.
func Last(e Expr) Expr { return Index(e, -1) }

// Slice returns elements [lo, hi) of e.
func Slice(e Expr, lo, hi int) Expr {
	n := e.Len()
	if lo < 0 || hi > n || lo >= hi {
		panic(fmt.Errorf("%w: slice [%d:%d] of length %d", ErrShape, lo, hi, n))
	}
	rows := make([][]pick, hi-lo)
	for i := range rows {
		rows[i] = []pick{{j: lo + i, w: 1}}
	}
	return selectRows(e, rows)
}

// Sum returns the sum of the elements of e.
func Sum(e Expr) Expr {
	return selectRows(e, [][]pick{uniform(e.Len(), 1)})
}

// Mean returns the arithmetic mean of the elements of e.
func Mean(e Expr) Expr {
	n := e.Len()
	return selectRows(e, [][]pick{uniform(n, 1/float64(n))})
}

func uniform(n int, w float64) []pick {
	ps := make([]pick, n)
	for j := range ps {
		ps[j] = pick{j: j, w: w}
	}
	return ps
}

// MatVec returns m * x. For a non-affine x the positive and negative entries of
// m are applied separately so that curvature follows the usual sign rules.
func MatVec(m mat.Matrix, x Expr) Expr {
	r, c := m.Dims()
	if c != x.Len() {
		panic(fmt.Errorf("%w: %dx%d matrix times length %d", ErrShape, r, c, x.Len()))
	}
	if lin, ok := x.(*Linear); ok {
		return matVecLinear(m, lin)
	}
	pos := make([][]pick, r)
	neg := make([][]pick, r)
	var hasNeg bool
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			switch a := m.At(i, j); {
			case a > 0:
				pos[i] = append(pos[i], pick{j: j, w: a})
			case a < 0:
				neg[i] = append(neg[i], pick{j: j, w: -a})
				hasNeg = true
			}
		}
	}
	out := selectRows(x, pos)
	if hasNeg {
		out = Sub(out, selectRows(x, neg))
	}
	return out
}

// bounded exposes a variable with the curvature of the expression it bounds.
type bounded struct {
	v    *Variable
	curv Curvature
}

// Bounded wraps v, which the caller constrains to lie above a convex (or below
// a concave) expression, so that downstream curvature checks see that shape.
func Bounded(v *Variable, curv Curvature) Expr {
	if curv == Affine {
		return Var(v)
	}
	return &bounded{v: v, curv: curv}
}

func (b *bounded) Len() int             { return b.v.size }
func (b *bounded) Curvature() Curvature { return b.curv }

func (b *bounded) Value() ([]float64, bool) {
	if b.v.value == nil {
		return nil, false
	}
	return b.v.Value(), true
}

func (b *bounded) lower(*lowering) (*Linear, error) { return Var(b.v), nil }
