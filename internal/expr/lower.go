package expr

import (
	"fmt"
	"sort"
)

// Row is one linear row of a lowered program: Coef·x <= Bound, or == Bound
// when Equality is set.
type Row struct {
	Coef     map[Column]float64
	Bound    float64
	Equality bool
	// Owner is the relation the row was generated from, nil for auxiliary rows.
	Owner   *Relation
	Element int
}

// Program is a linear program with optional smooth convex atoms that are
// approximated by cutting planes.
type Program struct {
	Goal Goal
	// Objective is always minimized; it is the negated goal for maximization.
	Objective Form
	Rows      []Row
	Smooth    []*SmoothAtom
}

// Columns returns every column referenced by the program in a stable order.
func (p *Program) Columns() []Column {
	seen := make(map[Column]struct{})
	add := func(f map[Column]float64) {
		for c := range f {
			seen[c] = struct{}{}
		}
	}
	add(p.Objective.Coef)
	for _, r := range p.Rows {
		add(r.Coef)
	}
	for _, s := range p.Smooth {
		seen[s.Epigraph] = struct{}{}
		for _, f := range s.Arg.rows {
			add(f.Coef)
		}
	}
	cols := make([]Column, 0, len(seen))
	for c := range seen {
		cols = append(cols, c)
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Less(cols[j]) })
	return cols
}

// SmoothAtom is a convex function f of an affine argument bounded by an
// epigraph column t >= f(Arg).
type SmoothAtom struct {
	Name     string
	Epigraph Column
	Arg      *Linear
	f        func([]float64) float64
	grad     func([]float64) []float64
}

func (s *SmoothAtom) point(val func(Column) float64) []float64 {
	x := make([]float64, len(s.Arg.rows))
	for i, r := range s.Arg.rows {
		x[i] = r.EvalWith(val)
	}
	return x
}

// Gap returns f(x) - t at the given column values. A positive gap means the
// linear model underestimates the atom.
func (s *SmoothAtom) Gap(val func(Column) float64) (gap, f float64) {
	f = s.f(s.point(val))
	return f - val(s.Epigraph), f
}

// Cut returns the supporting hyperplane of f at the given column values:
// f(x_k) + g·(Arg - x_k) - t <= 0.
func (s *SmoothAtom) Cut(val func(Column) float64) Row {
	xk := s.point(val)
	fk := s.f(xk)
	g := s.grad(xk)

	f := newForm()
	f.Const = fk
	for i, r := range s.Arg.rows {
		f.Const -= g[i] * xk[i]
		f.accumulate(r, g[i])
	}
	f.accumulate(Form{Coef: map[Column]float64{s.Epigraph: 1}}, -1)
	return Row{Coef: f.Coef, Bound: -f.Const}
}

type lowering struct {
	rows   []Row
	smooth []*SmoothAtom
	seq    int
}

func (l *lowering) aux(kind string, n int) *Variable {
	l.seq++
	return NewVariable(fmt.Sprintf("%s#%d", kind, l.seq), n)
}

// le records f <= 0.
func (l *lowering) le(f Form) {
	l.rows = append(l.rows, Row{Coef: f.Coef, Bound: -f.Const})
}

func (l *lowering) smoothAtom(name string, arg *Linear, f func([]float64) float64, grad func([]float64) []float64) *Linear {
	t := l.aux(name, 1)
	col := t.At(0)
	// The atoms in this package are non-negative, which also keeps the first
	// relaxation bounded.
	l.rows = append(l.rows, Row{Coef: map[Column]float64{col: -1}})
	l.smooth = append(l.smooth, &SmoothAtom{Name: name, Epigraph: col, Arg: arg, f: f, grad: grad})
	return Var(t)
}

// Lower checks goal and relations against the convexity rules and turns them
// into a Program. Relation rows carry their owner so that dual values can be
// mapped back.
func Lower(goal Goal, relations []*Relation) (*Program, error) {
	if err := goal.Check(); err != nil {
		return nil, fmt.Errorf("objective: %w", err)
	}
	for i, r := range relations {
		if err := r.Check(); err != nil {
			return nil, fmt.Errorf("relation %d: %w", i, err)
		}
	}

	l := &lowering{}
	obj, err := goal.Expr.lower(l)
	if err != nil {
		return nil, fmt.Errorf("objective: %w", err)
	}
	objective := obj.rows[0]
	if goal.Sense == Maximization {
		objective = objective.scaled(-1)
	}

	for i, r := range relations {
		gap, err := r.gap.lower(l)
		if err != nil {
			return nil, fmt.Errorf("relation %d: %w", i, err)
		}
		for j, f := range gap.rows {
			l.rows = append(l.rows, Row{
				Coef:     f.Coef,
				Bound:    -f.Const,
				Equality: r.Op == OpEqual,
				Owner:    r,
				Element:  j,
			})
		}
	}

	return &Program{
		Goal:      goal,
		Objective: objective,
		Rows:      l.rows,
		Smooth:    l.smooth,
	}, nil
}
