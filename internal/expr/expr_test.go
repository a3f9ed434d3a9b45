package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestLinearArithmetic(t *testing.T) {
	w := NewVariable("w", 2)
	e := Add(Scale(2, Var(w)), Const(1))
	require.Equal(t, 2, e.Len())
	assert.Equal(t, Affine, e.Curvature())

	_, ok := e.Value()
	assert.False(t, ok, "unresolved variable has no value")

	w.Assign([]float64{0.25, 0.75})
	v, ok := e.Value()
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{1.5, 2.5}, v, 1e-12)

	s, ok := Sum(Var(w)).Value()
	require.True(t, ok)
	assert.InDelta(t, 1.0, s[0], 1e-12)

	last, ok := Last(Var(w)).Value()
	require.True(t, ok)
	assert.InDelta(t, 0.75, last[0], 1e-12)
}

func TestMatVec(t *testing.T) {
	w := NewVariable("w", 2)
	w.Assign([]float64{0.5, 0.5})
	data := mat.NewDense(3, 2, []float64{
		0, 0,
		0.1, -0.1,
		0.2, 0.4,
	})
	v, ok := MatVec(data, Var(w)).Value()
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{0, 0, 0.3}, v, 1e-12)
}

func TestCurvatureRules(t *testing.T) {
	x := Var(NewVariable("x", 3))

	assert.Equal(t, Convex, Max(x).Curvature())
	assert.Equal(t, Concave, Min(x).Curvature())
	assert.Equal(t, Concave, Neg(Max(x)).Curvature())
	assert.Equal(t, Convex, Sub(CumMax(x), x).Curvature(), "drawdown is convex")
	assert.Equal(t, Convex, Max(Sub(CumMax(x), x)).Curvature())
	assert.Equal(t, Convex, Mean(Sub(CumMax(x), x)).Curvature())
	assert.Equal(t, Unknown, Add(Max(x), Min(x)).Curvature())
	assert.Equal(t, Unknown, Min(CumMax(x)).Curvature())
	assert.Equal(t, Unknown, FractionAbove(x, 0).Curvature())
	assert.Equal(t, Convex, Std(x).Curvature())
	assert.Equal(t, Unknown, Std(CumMax(x)).Curvature())

	psd := NewSymMatrix(mat.NewSymDense(3, []float64{1, 0, 0, 0, 2, 0, 0, 0, 3}))
	assert.Equal(t, Convex, QuadForm(x, psd).Curvature())
	indefinite := NewSymMatrix(mat.NewSymDense(3, []float64{1, 0, 0, 0, -2, 0, 0, 0, 3}))
	assert.Equal(t, Unknown, QuadForm(x, indefinite).Curvature())

	assert.Equal(t, Convex, Bounded(NewVariable("e", 3), Convex).Curvature())
	assert.Equal(t, Affine, Bounded(NewVariable("e", 3), Affine).Curvature())
}

func TestAtomValues(t *testing.T) {
	v := NewVariable("v", 4)
	v.Assign([]float64{0, 0.1, -0.05, 0.2})
	x := Var(v)

	got, ok := Sub(CumMax(x), x).Value()
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{0, 0, 0.15, 0}, got, 1e-12)

	mx, _ := Max(x).Value()
	mn, _ := Min(x).Value()
	assert.InDelta(t, 0.2, mx[0], 1e-12)
	assert.InDelta(t, -0.05, mn[0], 1e-12)

	frac, ok := FractionAbove(x, 0).Value()
	require.True(t, ok)
	assert.InDelta(t, 0.5, frac[0], 1e-12)
	frac, _ = FractionBelow(x, 0).Value()
	assert.InDelta(t, 0.25, frac[0], 1e-12)

	sd, _ := Std(Const(1, 3)).Value()
	assert.InDelta(t, 1.0, sd[0], 1e-12)

	w := NewVariable("w", 2)
	w.Assign([]float64{1, 2})
	q, _ := QuadForm(Var(w), NewSymMatrix(mat.NewSymDense(2, []float64{2, 1, 1, 3}))).Value()
	// 2*1 + 2*1*2*1 + 3*4
	assert.InDelta(t, 18.0, q[0], 1e-12)
}

func TestShapeMismatchPanics(t *testing.T) {
	a := Var(NewVariable("a", 2))
	b := Var(NewVariable("b", 3))
	assert.Panics(t, func() { Add(a, b) })
	assert.Panics(t, func() { Index(a, 2) })
	assert.Panics(t, func() { Slice(a, 1, 1) })
	assert.NotPanics(t, func() { Add(a, Scalar(1)) })
	assert.NotPanics(t, func() { Index(a, -2) })
}

func TestRelationCheck(t *testing.T) {
	x := Var(NewVariable("x", 3))

	assert.NoError(t, LessEq(Max(x), Scalar(1)).Check())
	assert.NoError(t, GreaterEq(Min(x), Scalar(0)).Check())
	assert.NoError(t, Equal(Sum(x), Scalar(1)).Check())

	assert.ErrorIs(t, GreaterEq(Max(x), Scalar(1)).Check(), ErrNotConvex)
	assert.ErrorIs(t, Equal(Max(x), Scalar(1)).Check(), ErrNotConvex)
	assert.ErrorIs(t, GreaterEq(FractionAbove(x, 0), Scalar(0.5)).Check(), ErrNotConvex)
}

func TestRelationViolation(t *testing.T) {
	v := NewVariable("x", 2)
	r := LessEq(Var(v), Scalar(1))
	_, ok := r.Violation()
	assert.False(t, ok)

	v.Assign([]float64{0.5, 1.25})
	got, ok := r.Violation()
	require.True(t, ok)
	assert.InDelta(t, 0.25, got, 1e-12)
}

func TestGoalCheck(t *testing.T) {
	x := Var(NewVariable("x", 3))
	assert.NoError(t, Minimize(Max(x)).Check())
	assert.NoError(t, Maximize(Min(x)).Check())
	assert.ErrorIs(t, Maximize(Max(x)).Check(), ErrNotConvex)
	assert.ErrorIs(t, Maximize(FractionAbove(x, 0)).Check(), ErrNotConvex)
	assert.Panics(t, func() { Minimize(x) })
}

func TestLower(t *testing.T) {
	w := NewVariable("w", 2)
	x := Var(w)
	budget := Equal(Sum(x), Scalar(1))
	limit := LessEq(Max(x), Scalar(0.8))

	p, err := Lower(Maximize(Min(x)), []*Relation{budget, limit})
	require.NoError(t, err)

	var owned, aux int
	for _, r := range p.Rows {
		if r.Owner == nil {
			aux++
			continue
		}
		owned++
	}
	// min: 2 rows, max: 2 rows; relations contribute one row each.
	assert.Equal(t, 4, aux)
	assert.Equal(t, 2, owned)
	assert.Empty(t, p.Smooth)

	// w[0], w[1], the min epigraph and the max epigraph.
	assert.Len(t, p.Columns(), 4)

	// Maximization is stored as a minimized, negated objective.
	for _, k := range p.Objective.Coef {
		assert.Equal(t, -1.0, k)
	}
}

func TestLower_RejectsNonConvex(t *testing.T) {
	x := Var(NewVariable("x", 3))
	_, err := Lower(Maximize(FractionAbove(x, 0)), nil)
	assert.ErrorIs(t, err, ErrNotConvex)

	_, err = Lower(Minimize(Sum(x)), []*Relation{GreaterEq(Max(x), Scalar(0))})
	assert.ErrorIs(t, err, ErrNotConvex)
}

func TestSmoothAtomCut(t *testing.T) {
	w := NewVariable("w", 2)
	p, err := Lower(Minimize(QuadForm(Var(w), NewSymMatrix(mat.NewSymDense(2, []float64{1, 0, 0, 1})))), nil)
	require.NoError(t, err)
	require.Len(t, p.Smooth, 1)

	atom := p.Smooth[0]
	vals := map[Column]float64{w.At(0): 1, w.At(1): 1, atom.Epigraph: 0}
	val := func(c Column) float64 { return vals[c] }

	gap, f := atom.Gap(val)
	assert.InDelta(t, 2.0, f, 1e-12)
	assert.InDelta(t, 2.0, gap, 1e-12)

	cut := atom.Cut(val)
	// 2 + 2(w0-1) + 2(w1-1) - t <= 0  =>  2w0 + 2w1 - t <= 2
	assert.InDelta(t, 2.0, cut.Coef[w.At(0)], 1e-12)
	assert.InDelta(t, 2.0, cut.Coef[w.At(1)], 1e-12)
	assert.InDelta(t, -1.0, cut.Coef[atom.Epigraph], 1e-12)
	assert.InDelta(t, 2.0, cut.Bound, 1e-12)
}
