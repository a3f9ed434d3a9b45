package optimization

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/investsim/internal/expr"
	"github.com/aristath/investsim/internal/modules/historical"
	"github.com/aristath/investsim/internal/solver"
)

func newTestModel() *Model {
	return NewModel(zerolog.Nop())
}

func newTestSolver() *solver.Simplex {
	return solver.NewSimplex(solver.Settings{}, zerolog.Nop())
}

// newTestTable builds a daily table starting 2024-01-01.
func newTestTable(t *testing.T, columns map[string][]float64) *historical.Table {
	t.Helper()
	var n int
	for _, c := range columns {
		n = len(c)
		break
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	tbl, err := historical.FromColumns(dates, columns)
	require.NoError(t, err)
	return tbl
}

// antiCorrelated has one asset rising and one falling by the same amount.
func antiCorrelated(t *testing.T) *historical.Table {
	return newTestTable(t, map[string][]float64{
		"A":   {100, 110, 120, 130},
		"B":   {100, 90, 80, 70},
		"SPY": {100, 102, 104, 106},
	})
}

// fakeSolver returns fixed duals per relation position and records the call.
type fakeSolver struct {
	relations []*expr.Relation
	goal      expr.Goal
}

func (f *fakeSolver) Solve(_ context.Context, goal expr.Goal, relations []*expr.Relation) (*solver.Result, error) {
	f.goal = goal
	f.relations = relations
	duals := make(map[*expr.Relation][]float64, len(relations))
	for i, r := range relations {
		d := make([]float64, r.Len())
		for j := range d {
			d[j] = float64(10 * (i + 1))
		}
		duals[r] = d
	}
	return &solver.Result{Status: solver.StatusOptimal, Value: 42, Duals: duals, Iterations: 1}, nil
}
