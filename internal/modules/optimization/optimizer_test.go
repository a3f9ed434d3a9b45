package optimization

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/investsim/internal/expr"
	"github.com/aristath/investsim/internal/modules/historical"
	"github.com/aristath/investsim/internal/solver"
)

func TestOptimize_RequiresExactlyOneObjective(t *testing.T) {
	m := newTestModel()
	tbl := antiCorrelated(t)
	tickers := []string{"A", "B"}
	_, err := m.SetWeights(tickers)
	require.NoError(t, err)

	_, err = m.Optimize(context.Background(), &fakeSolver{})
	assert.ErrorIs(t, err, ErrNoObjective)

	_, err = MaximizeReturn(m, tbl, tickers)
	require.NoError(t, err)
	_, err = MinimizeMaximalDrawdown(m, tbl, tickers)
	require.NoError(t, err)

	fake := &fakeSolver{}
	_, err = m.Optimize(context.Background(), fake)
	require.ErrorIs(t, err, ErrMultipleObjectives)
	var multi *MultipleObjectivesError
	require.True(t, errors.As(err, &multi))
	assert.Equal(t, []string{"maximize return", "minimize maximal drawdown"}, multi.Names)
	assert.Nil(t, fake.relations, "solver must not be called")
}

func TestOptimize_DualsFollowTheirConstraints(t *testing.T) {
	m := newTestModel()
	tbl := antiCorrelated(t)
	tickers := []string{"A", "B"}
	_, err := m.SetWeights(tickers)
	require.NoError(t, err)
	_, err = KeepLongPositionsOnly(m)
	require.NoError(t, err)
	_, err = KeepReturnAboveThreshold(m, tbl, tickers, 0.05)
	require.NoError(t, err)
	_, err = MaximizeAvgReturn(m, tbl, tickers)
	require.NoError(t, err)

	fake := &fakeSolver{}
	out, err := m.Optimize(context.Background(), fake)
	require.NoError(t, err)
	assert.Equal(t, 42.0, out.Value)
	assert.Equal(t, "maximize average return", out.Objective.Name)
	assert.Same(t, out, m.Outcome())

	constraints := m.Constraints()
	require.Len(t, constraints, 3)
	require.Len(t, fake.relations, 3)
	for i, c := range constraints {
		assert.Same(t, c.Relation, fake.relations[i])
	}
	assert.Equal(t, []float64{10}, constraints[0].Dual)
	assert.Equal(t, []float64{20, 20}, constraints[1].Dual)
	assert.Equal(t, []float64{30}, constraints[2].Dual)
	assert.Equal(t, expr.Maximization, fake.goal.Sense)
}

func TestOptimize_AntiCorrelatedAssets(t *testing.T) {
	m := newTestModel()
	tbl := antiCorrelated(t)
	tickers := []string{"A", "B"}
	_, err := m.SetWeights(tickers)
	require.NoError(t, err)
	_, err = KeepLongPositionsOnly(m)
	require.NoError(t, err)
	_, err = MaximizeAvgReturn(m, tbl, tickers)
	require.NoError(t, err)

	out, err := m.Optimize(context.Background(), newTestSolver())
	require.NoError(t, err)
	assert.Equal(t, solver.StatusOptimal, out.Status)
	assert.InDelta(t, 0.15, out.Value, 1e-9)
	assert.InDeltaSlice(t, []float64{1, 0}, m.Weights().Value(), 1e-9)

	avg, ok := m.Metric("simple return (historical average)")
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{0.15}, avg.Value(), 1e-9)
}

func TestOptimize_BindingLossCapHasPositiveDual(t *testing.T) {
	data := newTestTable(t, map[string][]float64{
		"A": {100, 80, 130},
		"B": {100, 100, 105},
	})
	tickers := []string{"A", "B"}

	build := func(threshold float64) (*Model, *Constraint) {
		m := newTestModel()
		_, err := m.SetWeights(tickers)
		require.NoError(t, err)
		_, err = KeepLongPositionsOnly(m)
		require.NoError(t, err)
		c, err := CapMaximalLossAtThreshold(m, data, tickers, threshold)
		require.NoError(t, err)
		_, err = MaximizeReturn(m, data, tickers)
		require.NoError(t, err)
		return m, c
	}

	m, capped := build(0.10)
	assert.Equal(t, "cap maximal loss at 10.00%", capped.Name)
	out, err := m.Optimize(context.Background(), newTestSolver())
	require.NoError(t, err)
	require.True(t, out.Status.Solved())
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, m.Weights().Value(), 1e-9)
	assert.InDelta(t, 0.175, out.Value, 1e-9)
	require.Len(t, capped.Dual, 1)
	assert.InDelta(t, 1.25, capped.Dual[0], 1e-6)

	worst, ok := m.Metric("simple return (historical min)")
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{-0.1}, worst.Value(), 1e-9)

	m, loose := build(0.50)
	out, err = m.Optimize(context.Background(), newTestSolver())
	require.NoError(t, err)
	require.True(t, out.Status.Solved())
	assert.InDeltaSlice(t, []float64{1, 0}, m.Weights().Value(), 1e-9)
	assert.InDelta(t, 0, loose.Dual[0], 1e-9)
}

func TestOptimize_InfeasibleThreshold(t *testing.T) {
	m := newTestModel()
	tbl := antiCorrelated(t)
	tickers := []string{"A", "B"}
	_, err := m.SetWeights(tickers)
	require.NoError(t, err)
	_, err = KeepLongPositionsOnly(m)
	require.NoError(t, err)
	_, err = KeepReturnAboveThreshold(m, tbl, tickers, 0.5)
	require.NoError(t, err)
	_, err = MaximizeReturn(m, tbl, tickers)
	require.NoError(t, err)

	out, err := m.Optimize(context.Background(), newTestSolver())
	require.NoError(t, err)
	assert.Equal(t, solver.StatusInfeasible, out.Status)
	assert.Nil(t, m.Weights().Value())
	for _, c := range m.Constraints() {
		assert.Nil(t, c.Dual, c.Name)
	}
}

func TestOptimize_RejectsCountingObjective(t *testing.T) {
	m := newTestModel()
	tbl := antiCorrelated(t)
	tickers := []string{"A", "B"}
	_, err := m.SetWeights(tickers)
	require.NoError(t, err)
	_, err = MaximizePercentOutperformingDays(m, tbl, tickers, "SPY")
	require.NoError(t, err)

	_, err = m.Optimize(context.Background(), newTestSolver())
	assert.ErrorIs(t, err, expr.ErrNotConvex)
	assert.Nil(t, m.Outcome())
}

func TestOptimize_MinimumVariance(t *testing.T) {
	m := newTestModel()
	tbl := newTestTable(t, map[string][]float64{
		"A": {100, 101, 99, 102, 100, 103},
		"C": {100, 99, 101, 98, 100, 97},
	})
	tickers := []string{"A", "C"}
	_, err := m.SetWeights(tickers)
	require.NoError(t, err)
	_, err = KeepLongPositionsOnly(m)
	require.NoError(t, err)
	_, err = MinimizeClassicalVolatility(m, tbl, tickers)
	require.NoError(t, err)

	out, err := m.Optimize(context.Background(), newTestSolver())
	require.NoError(t, err)
	require.True(t, out.Status.Solved())

	cov, ok := m.Metric(CovarianceMatrixName)
	require.True(t, ok)
	require.True(t, cov.IsMatrix())
	sym := cov.Expr.(*expr.SymMatrix).Matrix()
	assert.LessOrEqual(t, out.Value, sym.At(0, 0)+1e-9)
	assert.LessOrEqual(t, out.Value, sym.At(1, 1)+1e-9)
	assert.GreaterOrEqual(t, out.Value, -1e-12)

	w := m.Weights().Value()
	assert.InDelta(t, 1, w[0]+w[1], 1e-9)
}

func TestCombinators_ReinvocationKeepsRegistrySizes(t *testing.T) {
	m := newTestModel()
	tbl := antiCorrelated(t)
	tickers := []string{"A", "B"}

	register := func() {
		_, err := m.SetWeights(tickers)
		require.NoError(t, err)
		_, err = KeepLongPositionsOnly(m)
		require.NoError(t, err)
		_, err = MaximizeEMAReturnAgainstBenchmark(m, tbl, tickers, "SPY", 2)
		require.NoError(t, err)
		_, err = CapMaximalDrawdownAtThreshold(m, tbl, tickers, 0.2)
		require.NoError(t, err)
		_, err = KeepEMAReturnAboveThreshold(m, tbl, tickers, 2, 0.01)
		require.NoError(t, err)
		_, err = KeepPortfolioVarianceBelowThreshold(m, tbl, tickers, 0.01)
		require.NoError(t, err)
	}

	register()
	v1, m1, o1, c1 := m.Counts()
	register()
	v2, m2, o2, c2 := m.Counts()

	assert.Equal(t, []int{v1, m1, o1, c1}, []int{v2, m2, o2, c2})
	assert.Equal(t, 1, o1)
}

func TestCombinators_MissingPrerequisites(t *testing.T) {
	m := newTestModel()
	tbl := antiCorrelated(t)
	tickers := []string{"A", "B"}

	_, err := KeepLongPositionsOnly(m)
	assert.ErrorIs(t, err, ErrMissingPrerequisite)
	_, err = MaximizeReturn(m, tbl, tickers)
	assert.ErrorIs(t, err, ErrMissingPrerequisite)
	_, err = MinimizeClassicalVolatility(m, tbl, tickers)
	assert.ErrorIs(t, err, ErrMissingPrerequisite)

	_, err = m.SetWeights(tickers)
	require.NoError(t, err)
	_, err = MaximizeReturnAgainstBenchmark(m, tbl, tickers, "QQQ")
	assert.ErrorIs(t, err, historical.ErrUnknownColumn)
	_, err = MaximizeReturn(m, tbl, []string{"A"})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestCombinators_Names(t *testing.T) {
	m := newTestModel()
	tbl := antiCorrelated(t)
	tickers := []string{"A", "B"}
	_, err := m.SetWeights(tickers)
	require.NoError(t, err)

	c, err := KeepReturnAboveThreshold(m, tbl, tickers, 0.1)
	require.NoError(t, err)
	assert.Equal(t, "keep return above 10.00%", c.Name)

	o, err := MinimizeDaysWithLoss(m, tbl, tickers, 0.02)
	require.NoError(t, err)
	assert.Equal(t, "Minimize % of days with single-day loss exceeding  2.00%.", o.Description)

	_, err = MinimizeDaysWithLoss(m, tbl, tickers, 0.02)
	require.NoError(t, err)
	_, ok := m.Metric("DoD return (% underperforming days)")
	assert.True(t, ok)
}
