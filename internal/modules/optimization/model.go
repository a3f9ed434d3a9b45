// Package optimization assembles single-period portfolio allocation models.
//
// A Model holds four ordered, name-keyed registries (variables, metrics,
// objectives and constraints). Combinators in this package read an aligned
// market table, derive metrics from the shared "weights" variable, and
// register objectives and constraints built on top of those metrics. Optimize
// hands the registered problem to a Solver and writes values and dual values
// back onto the registered entities.
package optimization

import (
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/investsim/internal/expr"
)

// Entity kinds as they appear in rendered entities.
const (
	KindVariable   = "variable"
	KindMetric     = "metric"
	KindObjective  = "objective"
	KindConstraint = "constraint"
)

// Variable is a decision variable: a vector the solver determines.
type Variable struct {
	Name        string
	Description string
	Var         *expr.Variable
}

// NewVariable allocates a decision variable of the given size.
func NewVariable(name, description string, size int) *Variable {
	return &Variable{
		Name:        name,
		Description: description,
		Var:         expr.NewVariable(name, size),
	}
}

// Size returns the number of elements.
func (v *Variable) Size() int { return v.Var.Size() }

// Expr returns the variable as an affine expression.
func (v *Variable) Expr() *expr.Linear { return expr.Var(v.Var) }

// Value returns the solved values, or nil before a successful solve.
func (v *Variable) Value() []float64 { return v.Var.Value() }

func (v *Variable) String() string {
	return render(v.Name, KindVariable, v.Description, "Value", formatVector(v.Value()))
}

// Metric is a named expression over market data and decision variables.
type Metric struct {
	Name        string
	Description string
	Expr        expr.Expr
}

// Value evaluates the metric. It is nil while a referenced variable is unresolved.
func (m *Metric) Value() []float64 {
	v, ok := m.Expr.Value()
	if !ok {
		return nil
	}
	return v
}

// IsMatrix reports whether the metric is a constant matrix.
func (m *Metric) IsMatrix() bool {
	_, ok := m.Expr.(*expr.SymMatrix)
	return ok
}

func (m *Metric) String() string {
	value := formatVector(m.Value())
	if sym, ok := m.Expr.(*expr.SymMatrix); ok {
		value = fmt.Sprintf("\n%v", mat.Formatted(sym.Matrix(), mat.Squeeze()))
	}
	return render(m.Name, KindMetric, m.Description, "Value", value)
}

// Objective is the optimization target of a model.
type Objective struct {
	Name        string
	Description string
	Goal        expr.Goal
}

// Value evaluates the goal expression; ok is false before a solve.
func (o *Objective) Value() (float64, bool) { return o.Goal.Value() }

func (o *Objective) String() string {
	value := "None"
	if v, ok := o.Value(); ok {
		value = formatFloat(v)
	}
	return render(o.Name, KindObjective, o.Description, "Value", value)
}

// Constraint is a named relation the solution must satisfy. Dual is nil until
// the model has been optimized and then holds one value per element.
type Constraint struct {
	Name        string
	Description string
	Relation    *expr.Relation
	Dual        []float64
}

func (c *Constraint) String() string {
	return render(c.Name, KindConstraint, c.Description, "Dual value", formatVector(c.Dual))
}

func render(name, kind, description, valueLabel, value string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", name)
	fmt.Fprintf(&b, "Type: %s\n", kind)
	fmt.Fprintf(&b, "Description: %s\n", description)
	fmt.Fprintf(&b, "%s: %s", valueLabel, value)
	return b.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 8, 64)
}

func formatVector(v []float64) string {
	switch len(v) {
	case 0:
		return "None"
	case 1:
		return formatFloat(v[0])
	}
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = formatFloat(x)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
