// Package solver solves problems built with package expr on top of gonum's
// simplex implementation. Smooth convex atoms are handled with cutting planes
// and dual values are recovered from the dual linear program.
package solver

import (
	"math"
	"time"

	"github.com/aristath/investsim/internal/expr"
)

// Status is the outcome of a solve.
type Status string

const (
	StatusOptimal           Status = "optimal"
	StatusOptimalInaccurate Status = "optimal_inaccurate"
	StatusInfeasible        Status = "infeasible"
	StatusUnbounded         Status = "unbounded"
	StatusError             Status = "solver_error"
)

// Solved reports whether variable values were produced.
func (s Status) Solved() bool {
	return s == StatusOptimal || s == StatusOptimalInaccurate
}

// Result of a solve. Duals holds one value per element of every relation that
// was passed in, keyed by the relation itself.
type Result struct {
	Status     Status
	Value      float64
	Duals      map[*expr.Relation][]float64
	Iterations int
	Cuts       int
	Duration   time.Duration
}

// unsolvedValue follows the usual convention: +Inf for an infeasible
// minimization, -Inf for an unbounded one, mirrored for maximization.
func unsolvedValue(status Status, sense expr.Sense) float64 {
	var v float64
	switch status {
	case StatusInfeasible:
		v = math.Inf(1)
	case StatusUnbounded:
		v = math.Inf(-1)
	default:
		return math.NaN()
	}
	if sense == expr.Maximization {
		return -v
	}
	return v
}
