package expr

import "fmt"

// Op is a relation operator.
type Op int

const (
	OpLessEq Op = iota
	OpGreaterEq
	OpEqual
)

func (o Op) String() string {
	switch o {
	case OpLessEq:
		return "<="
	case OpGreaterEq:
		return ">="
	default:
		return "=="
	}
}

// Relation is an element-wise comparison between two expressions. Solvers key
// dual values by the relation pointer.
type Relation struct {
	Lhs, Rhs Expr
	Op       Op
	// gap is lhs-rhs for <= and ==, rhs-lhs for >=; it must be <= 0 (or == 0).
	gap Expr
}

// LessEq returns lhs <= rhs.
func LessEq(lhs, rhs Expr) *Relation {
	return &Relation{Lhs: lhs, Rhs: rhs, Op: OpLessEq, gap: Sub(lhs, rhs)}
}

// GreaterEq returns lhs >= rhs.
func GreaterEq(lhs, rhs Expr) *Relation {
	return &Relation{Lhs: lhs, Rhs: rhs, Op: OpGreaterEq, gap: Sub(rhs, lhs)}
}

// Equal returns lhs == rhs.
func Equal(lhs, rhs Expr) *Relation {
	return &Relation{Lhs: lhs, Rhs: rhs, Op: OpEqual, gap: Sub(lhs, rhs)}
}

// Len is the number of element-wise comparisons.
func (r *Relation) Len() int { return r.gap.Len() }

// Check returns nil when the relation is convex: a convex side below a concave
// one, or affine sides for an equality.
func (r *Relation) Check() error {
	c := r.gap.Curvature()
	if r.Op == OpEqual {
		if c != Affine {
			return fmt.Errorf("%w: equality between non-affine expressions (%s)", ErrNotConvex, c)
		}
		return nil
	}
	if !c.IsConvex() {
		return fmt.Errorf("%w: %s relation with %s gap", ErrNotConvex, r.Op, c)
	}
	return nil
}

// Violation returns the largest amount by which the relation is violated at the
// current variable values, and false while a variable is unresolved.
func (r *Relation) Violation() (float64, bool) {
	v, ok := r.gap.Value()
	if !ok {
		return 0, false
	}
	worst := 0.0
	for _, g := range v {
		if r.Op == OpEqual && g < 0 {
			g = -g
		}
		if g > worst {
			worst = g
		}
	}
	return worst, true
}

func (r *Relation) String() string {
	return fmt.Sprintf("relation[%d] %s", r.Len(), r.Op)
}

// Sense selects minimization or maximization.
type Sense int

const (
	Minimization Sense = iota
	Maximization
)

func (s Sense) String() string {
	if s == Maximization {
		return "maximize"
	}
	return "minimize"
}

// Goal is an optimization target over a scalar expression.
type Goal struct {
	Sense Sense
	Expr  Expr
}

// Minimize returns a goal minimizing e, which must be scalar.
func Minimize(e Expr) Goal { return newGoal(Minimization, e) }

// Maximize returns a goal maximizing e, which must be scalar.
func Maximize(e Expr) Goal { return newGoal(Maximization, e) }

func newGoal(s Sense, e Expr) Goal {
	if e.Len() != 1 {
		panic(fmt.Errorf("%w: goal of length %d", ErrShape, e.Len()))
	}
	return Goal{Sense: s, Expr: e}
}

// Check returns nil for a convex minimization or a concave maximization.
func (g Goal) Check() error {
	c := g.Expr.Curvature()
	if g.Sense == Minimization && !c.IsConvex() {
		return fmt.Errorf("%w: minimizing a %s expression", ErrNotConvex, c)
	}
	if g.Sense == Maximization && !c.IsConcave() {
		return fmt.Errorf("%w: maximizing a %s expression", ErrNotConvex, c)
	}
	return nil
}

// Value evaluates the goal expression.
func (g Goal) Value() (float64, bool) {
	v, ok := g.Expr.Value()
	if !ok {
		return 0, false
	}
	return v[0], true
}
