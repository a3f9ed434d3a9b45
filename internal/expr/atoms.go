package expr

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// psdTol absorbs rounding in sample covariance estimates.
const psdTol = 1e-10

type extremum struct {
	arg Expr
	max bool
}

// Max returns the largest element of e.
func Max(e Expr) Expr { return &extremum{arg: e, max: true} }

// Min returns the smallest element of e.
func Min(e Expr) Expr { return &extremum{arg: e} }

func (x *extremum) Len() int { return 1 }

func (x *extremum) Curvature() Curvature {
	c := x.arg.Curvature()
	switch {
	case x.max && c.IsConvex():
		return Convex
	case !x.max && c.IsConcave():
		return Concave
	}
	return Unknown
}

func (x *extremum) Value() ([]float64, bool) {
	v, ok := x.arg.Value()
	if !ok {
		return nil, false
	}
	if x.max {
		return []float64{floats.Max(v)}, true
	}
	return []float64{floats.Min(v)}, true
}

func (x *extremum) lower(l *lowering) (*Linear, error) {
	if x.Curvature() == Unknown {
		return nil, fmt.Errorf("%w: %s of %s argument", ErrNotConvex, x.name(), x.arg.Curvature())
	}
	arg, err := x.arg.lower(l)
	if err != nil {
		return nil, err
	}
	if arg.IsConstant() {
		v, _ := arg.Value()
		return Const(x.pickConst(v)), nil
	}
	t := l.aux(x.name(), 1)
	tf := Var(t).rows[0]
	for _, r := range arg.rows {
		f := newForm()
		if x.max {
			// arg_i - t <= 0
			f.accumulate(r, 1)
			f.accumulate(tf, -1)
		} else {
			f.accumulate(tf, 1)
			f.accumulate(r, -1)
		}
		l.le(f)
	}
	return Var(t), nil
}

func (x *extremum) name() string {
	if x.max {
		return "max"
	}
	return "min"
}

func (x *extremum) pickConst(v []float64) float64 {
	if x.max {
		return floats.Max(v)
	}
	return floats.Min(v)
}

type cumMax struct {
	arg Expr
}

// CumMax returns the running maximum of e.
func CumMax(e Expr) Expr { return &cumMax{arg: e} }

func (c *cumMax) Len() int { return c.arg.Len() }

func (c *cumMax) Curvature() Curvature {
	if c.arg.Curvature().IsConvex() {
		return Convex
	}
	return Unknown
}

func (c *cumMax) Value() ([]float64, bool) {
	v, ok := c.arg.Value()
	if !ok {
		return nil, false
	}
	out := make([]float64, len(v))
	for i, x := range v {
		if i == 0 || x > out[i-1] {
			out[i] = x
			continue
		}
		out[i] = out[i-1]
	}
	return out, true
}

func (c *cumMax) lower(l *lowering) (*Linear, error) {
	if c.Curvature() == Unknown {
		return nil, fmt.Errorf("%w: cummax of %s argument", ErrNotConvex, c.arg.Curvature())
	}
	arg, err := c.arg.lower(l)
	if err != nil {
		return nil, err
	}
	run := l.aux("cummax", len(arg.rows))
	cur := Var(run)
	for i, r := range arg.rows {
		f := newForm()
		f.accumulate(r, 1)
		f.accumulate(cur.rows[i], -1)
		l.le(f)
		if i > 0 {
			g := newForm()
			g.accumulate(cur.rows[i-1], 1)
			g.accumulate(cur.rows[i], -1)
			l.le(g)
		}
	}
	return cur, nil
}

type quadForm struct {
	arg Expr
	p   *SymMatrix
}

// QuadForm returns x' P x.
func QuadForm(x Expr, p *SymMatrix) Expr {
	if p.Order() != x.Len() {
		panic(fmt.Errorf("%w: quadratic form of order %d with length %d", ErrShape, p.Order(), x.Len()))
	}
	return &quadForm{arg: x, p: p}
}

func (q *quadForm) Len() int { return 1 }

func (q *quadForm) Curvature() Curvature {
	if q.arg.Curvature() == Affine && q.p.PositiveSemidefinite(psdTol) {
		return Convex
	}
	return Unknown
}

func (q *quadForm) eval(x []float64) float64 {
	xv := mat.NewVecDense(len(x), x)
	return mat.Inner(xv, q.p.m, xv)
}

func (q *quadForm) grad(x []float64) []float64 {
	var g mat.VecDense
	g.MulVec(q.p.m, mat.NewVecDense(len(x), x))
	out := make([]float64, len(x))
	for i := range out {
		out[i] = 2 * g.AtVec(i)
	}
	return out
}

func (q *quadForm) Value() ([]float64, bool) {
	v, ok := q.arg.Value()
	if !ok {
		return nil, false
	}
	return []float64{q.eval(v)}, true
}

func (q *quadForm) lower(l *lowering) (*Linear, error) {
	if q.Curvature() == Unknown {
		return nil, fmt.Errorf("%w: quadratic form needs an affine argument and a PSD matrix", ErrNotConvex)
	}
	arg, err := q.arg.lower(l)
	if err != nil {
		return nil, err
	}
	return l.smoothAtom("quad_form", arg, q.eval, q.grad), nil
}

type stdDev struct {
	arg Expr
}

// Std returns the population standard deviation of the elements of e.
func Std(e Expr) Expr { return &stdDev{arg: e} }

func (s *stdDev) Len() int { return 1 }

func (s *stdDev) Curvature() Curvature {
	if s.arg.Curvature() == Affine {
		return Convex
	}
	return Unknown
}

func (s *stdDev) eval(x []float64) float64 { return stat.PopStdDev(x, nil) }

func (s *stdDev) grad(x []float64) []float64 {
	n := float64(len(x))
	sd := s.eval(x)
	g := make([]float64, len(x))
	if sd == 0 || math.IsNaN(sd) {
		return g
	}
	mean := stat.Mean(x, nil)
	for i, v := range x {
		g[i] = (v - mean) / (n * sd)
	}
	return g
}

func (s *stdDev) Value() ([]float64, bool) {
	v, ok := s.arg.Value()
	if !ok {
		return nil, false
	}
	return []float64{s.eval(v)}, true
}

func (s *stdDev) lower(l *lowering) (*Linear, error) {
	if s.Curvature() == Unknown {
		return nil, fmt.Errorf("%w: std of %s argument", ErrNotConvex, s.arg.Curvature())
	}
	arg, err := s.arg.lower(l)
	if err != nil {
		return nil, err
	}
	return l.smoothAtom("std", arg, s.eval, s.grad), nil
}

type fraction struct {
	arg       Expr
	threshold float64
	above     bool
}

// FractionAbove is the share of elements of e strictly above threshold. It can
// be evaluated but never solved for.
func FractionAbove(e Expr, threshold float64) Expr {
	return &fraction{arg: e, threshold: threshold, above: true}
}

// FractionBelow is the share of elements of e strictly below threshold.
func FractionBelow(e Expr, threshold float64) Expr {
	return &fraction{arg: e, threshold: threshold}
}

func (f *fraction) Len() int             { return 1 }
func (f *fraction) Curvature() Curvature { return Unknown }

func (f *fraction) Value() ([]float64, bool) {
	v, ok := f.arg.Value()
	if !ok {
		return nil, false
	}
	n := 0
	for _, x := range v {
		if (f.above && x > f.threshold) || (!f.above && x < f.threshold) {
			n++
		}
	}
	return []float64{float64(n) / float64(len(v))}, true
}

func (f *fraction) lower(*lowering) (*Linear, error) {
	return nil, fmt.Errorf("%w: counting elements against a threshold", ErrNotConvex)
}
