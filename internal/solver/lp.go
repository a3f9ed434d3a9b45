package solver

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/aristath/investsim/internal/expr"
)

// rankTol is the relative residual below which a row counts as dependent.
const rankTol = 1e-9

// linearProgram is the general form
//
//	minimize c'x  subject to  G x <= h,  A x == b,  x free
//
// after preprocessing. ineq and eq map matrix rows back to positions in the
// row list it was built from.
type linearProgram struct {
	cols  []expr.Column
	c     []float64
	g     *mat.Dense
	h     []float64
	ineq  []int
	a     *mat.Dense
	b     []float64
	eq    []int
	fixed []expr.Column
}

type lpSolution struct {
	status Status
	x      map[expr.Column]float64
	err    error
}

// buildLP preprocesses rows into a program gonum's simplex accepts: rows with
// no coefficients are checked and dropped, dependent equality rows are
// removed, and columns that appear in no row are pinned at zero (or reported
// unbounded when the objective pushes on them).
func buildLP(objective expr.Form, rows []expr.Row, tol float64) (*linearProgram, Status) {
	inRow := make(map[expr.Column]struct{})
	var ineq, eq []int
	for i, r := range rows {
		if len(r.Coef) == 0 {
			if r.Equality && math.Abs(r.Bound) > tol {
				return nil, StatusInfeasible
			}
			if !r.Equality && r.Bound < -tol {
				return nil, StatusInfeasible
			}
			continue
		}
		for c := range r.Coef {
			inRow[c] = struct{}{}
		}
		if r.Equality {
			eq = append(eq, i)
		} else {
			ineq = append(ineq, i)
		}
	}

	p := &linearProgram{}
	for c, k := range objective.Coef {
		if _, ok := inRow[c]; !ok && k != 0 {
			return nil, StatusUnbounded
		}
	}
	for c := range inRow {
		p.cols = append(p.cols, c)
	}
	sort.Slice(p.cols, func(i, j int) bool { return p.cols[i].Less(p.cols[j]) })
	for c := range objective.Coef {
		if _, ok := inRow[c]; !ok {
			p.fixed = append(p.fixed, c)
		}
	}

	index := make(map[expr.Column]int, len(p.cols))
	for i, c := range p.cols {
		index[c] = i
	}
	n := len(p.cols)
	p.c = make([]float64, n)
	for c, k := range objective.Coef {
		if j, ok := index[c]; ok {
			p.c[j] = k
		}
	}

	fill := func(idx []int) (*mat.Dense, []float64) {
		if len(idx) == 0 || n == 0 {
			return nil, nil
		}
		m := mat.NewDense(len(idx), n, nil)
		rhs := make([]float64, len(idx))
		for i, ri := range idx {
			for c, k := range rows[ri].Coef {
				m.Set(i, index[c], k)
			}
			rhs[i] = rows[ri].Bound
		}
		return m, rhs
	}

	p.g, p.h = fill(ineq)
	p.ineq = ineq

	a, b := fill(eq)
	if a != nil {
		keep, consistent := independentRows(a, b, rankTol)
		if !consistent {
			return nil, StatusInfeasible
		}
		if len(keep) < len(eq) {
			kept := make([]int, len(keep))
			for i, k := range keep {
				kept[i] = eq[k]
			}
			eq = kept
			a, b = fill(eq)
		}
	}
	p.a, p.b, p.eq = a, b, eq
	return p, StatusOptimal
}

// solve runs gonum's simplex on the standard form of p.
func (p *linearProgram) solve(tol float64) (sol lpSolution) {
	sol.x = make(map[expr.Column]float64, len(p.cols)+len(p.fixed))
	for _, c := range p.fixed {
		sol.x[c] = 0
	}
	if len(p.cols) == 0 {
		sol.status = StatusOptimal
		return sol
	}

	defer func() {
		if r := recover(); r != nil {
			sol.status = StatusError
			sol.err = fmt.Errorf("simplex: %v", r)
		}
	}()

	var g, a mat.Matrix
	if p.g != nil {
		g = p.g
	}
	if p.a != nil {
		a = p.a
	}
	cStd, aStd, bStd := lp.Convert(p.c, g, p.h, a, p.b)
	m, n := aStd.Dims()
	if m > n {
		sol.status = StatusError
		sol.err = fmt.Errorf("standard form has %d rows and %d columns", m, n)
		return sol
	}

	_, xStd, err := lp.Simplex(cStd, aStd, bStd, tol, nil)
	if err != nil {
		sol.status = statusOf(err)
		sol.err = err
		return sol
	}

	nv := len(p.cols)
	for j, c := range p.cols {
		sol.x[c] = xStd[j] - xStd[nv+j]
	}
	sol.status = StatusOptimal
	return sol
}

func statusOf(err error) Status {
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return StatusInfeasible
	case errors.Is(err, lp.ErrUnbounded):
		return StatusUnbounded
	default:
		return StatusError
	}
}

// duals solves the dual of p,
//
//	minimize h'λ + b'ν  subject to  G'λ + A'ν == -c,  λ >= 0
//
// with ν split into non-negative parts, and returns λ and ν.
func (p *linearProgram) duals(tol float64) (lambda, nu []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dual simplex: %v", r)
		}
	}()

	nv := len(p.cols)
	ni, ne := len(p.h), len(p.b)
	if nv == 0 || ni+ne == 0 {
		return make([]float64, ni), make([]float64, ne), nil
	}

	cols := ni + 2*ne
	d := mat.NewDense(nv, cols, nil)
	for j := 0; j < nv; j++ {
		for i := 0; i < ni; i++ {
			d.Set(j, i, p.g.At(i, j))
		}
		for i := 0; i < ne; i++ {
			v := p.a.At(i, j)
			d.Set(j, ni+i, v)
			d.Set(j, ni+ne+i, -v)
		}
	}
	rhs := make([]float64, nv)
	floats.ScaleTo(rhs, -1, p.c)

	cost := make([]float64, cols)
	copy(cost, p.h)
	copy(cost[ni:], p.b)
	for i := 0; i < ne; i++ {
		cost[ni+ne+i] = -p.b[i]
	}

	keep, consistent := independentRows(d, rhs, rankTol)
	if !consistent {
		return nil, nil, errors.New("dual program is infeasible")
	}
	if len(keep) < nv {
		reduced := mat.NewDense(len(keep), cols, nil)
		r := make([]float64, len(keep))
		for i, k := range keep {
			reduced.SetRow(i, mat.Row(nil, k, d))
			r[i] = rhs[k]
		}
		d, rhs = reduced, r
	}
	if rows, _ := d.Dims(); rows > cols {
		return nil, nil, fmt.Errorf("dual program has %d rows and %d columns", rows, cols)
	}

	_, y, err := lp.Simplex(cost, d, rhs, tol, nil)
	if err != nil {
		return nil, nil, err
	}
	lambda = append([]float64(nil), y[:ni]...)
	nu = make([]float64, ne)
	for i := range nu {
		nu[i] = y[ni+i] - y[ni+ne+i]
	}
	return lambda, nu, nil
}
