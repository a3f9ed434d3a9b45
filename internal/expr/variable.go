// Package expr is a small convex expression algebra over vector decision
// variables. Expressions track their curvature so that a problem built from
// them can be checked against disciplined convex programming rules and lowered
// into a linear program for the solver package.
package expr

import (
	"fmt"
	"sync/atomic"
)

var variableSeq atomic.Int64

// Variable is a vector of scalar decision variables.
type Variable struct {
	id    int64
	name  string
	size  int
	value []float64
}

// NewVariable allocates a variable with size elements. It panics if size < 1.
func NewVariable(name string, size int) *Variable {
	if size < 1 {
		panic(fmt.Errorf("%w: variable %q of size %d", ErrShape, name, size))
	}
	return &Variable{
		id:   variableSeq.Add(1),
		name: name,
		size: size,
	}
}

// Name returns the variable name.
func (v *Variable) Name() string { return v.name }

// Size returns the number of elements.
func (v *Variable) Size() int { return v.size }

// Value returns a copy of the resolved values, or nil before a solve.
func (v *Variable) Value() []float64 {
	if v.value == nil {
		return nil
	}
	out := make([]float64, len(v.value))
	copy(out, v.value)
	return out
}

// Resolved reports whether the variable carries a value.
func (v *Variable) Resolved() bool { return v.value != nil }

// Assign stores values as the variable's resolved value.
func (v *Variable) Assign(values []float64) {
	if len(values) != v.size {
		panic(fmt.Errorf("%w: assigning %d values to %q of size %d", ErrShape, len(values), v.name, v.size))
	}
	v.value = append(v.value[:0:0], values...)
}

// Reset drops the resolved value.
func (v *Variable) Reset() { v.value = nil }

// At returns the column of element i.
func (v *Variable) At(i int) Column {
	if i < 0 || i >= v.size {
		panic(fmt.Errorf("%w: index %d out of range for %q", ErrShape, i, v.name))
	}
	return Column{Var: v, Index: i}
}

func (v *Variable) String() string {
	return fmt.Sprintf("%s[%d]", v.name, v.size)
}

// Column addresses one scalar element of a variable.
type Column struct {
	Var   *Variable
	Index int
}

// Less orders columns by variable creation and then by element.
func (c Column) Less(o Column) bool {
	if c.Var.id != o.Var.id {
		return c.Var.id < o.Var.id
	}
	return c.Index < o.Index
}

func (c Column) String() string {
	return fmt.Sprintf("%s[%d]", c.Var.name, c.Index)
}
