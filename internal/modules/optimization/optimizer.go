package optimization

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/investsim/internal/expr"
	"github.com/aristath/investsim/internal/solver"
)

// Solver solves a goal subject to relations and reports dual values keyed by
// relation.
type Solver interface {
	Solve(ctx context.Context, goal expr.Goal, relations []*expr.Relation) (*solver.Result, error)
}

// Outcome is the result of Optimize.
type Outcome struct {
	Status     solver.Status
	Value      float64
	Objective  *Objective
	Iterations int
	Duration   time.Duration
	SolvedAt   time.Time
}

// Optimize solves the registered problem: the single registered objective
// subject to every registered constraint. Dual values are written onto the
// constraints that produced them. Infeasible and unbounded problems are
// reported through Outcome.Status.
func (m *Model) Optimize(ctx context.Context, s Solver) (*Outcome, error) {
	objectives := m.objectives.list()
	switch len(objectives) {
	case 0:
		return nil, ErrNoObjective
	case 1:
	default:
		names := make([]string, len(objectives))
		for i, o := range objectives {
			names[i] = o.Name
		}
		return nil, &MultipleObjectivesError{Names: names}
	}
	objective := objectives[0]

	constraints := m.constraints.list()
	relations := make([]*expr.Relation, len(constraints))
	for i, c := range constraints {
		relations[i] = c.Relation
		c.Dual = nil
	}
	for _, v := range m.variables.list() {
		v.Var.Reset()
	}
	m.outcome = nil

	m.log.Debug().
		Str("objective", objective.Name).
		Int("constraints", len(constraints)).
		Int("variables", m.variables.len()).
		Msg("Solving model")

	res, err := s.Solve(ctx, objective.Goal, relations)
	if err != nil {
		return nil, fmt.Errorf("failed to solve %q: %w", objective.Name, err)
	}

	for _, c := range constraints {
		if d, ok := res.Duals[c.Relation]; ok {
			c.Dual = append([]float64(nil), d...)
		}
	}

	value := res.Value
	if res.Status.Solved() && m.settleEMA() {
		if v, ok := objective.Value(); ok {
			value = v
		}
	}

	m.outcome = &Outcome{
		Status:     res.Status,
		Value:      value,
		Objective:  objective,
		Iterations: res.Iterations,
		Duration:   res.Duration,
		SolvedAt:   time.Now().UTC(),
	}
	m.log.Info().
		Str("status", string(res.Status)).
		Float64("value", value).
		Dur("duration", res.Duration).
		Msg("Model optimized")
	return m.outcome, nil
}
