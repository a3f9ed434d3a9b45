package optimization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/investsim/internal/expr"
)

func TestRegistry_LastWriteWinsKeepsPosition(t *testing.T) {
	m := newTestModel()

	first := &Metric{Name: "a", Description: "first", Expr: expr.Const(1)}
	second := &Metric{Name: "b", Description: "second", Expr: expr.Const(2)}
	regs := m.UpdateMetrics(first, second)
	require.Len(t, regs, 2)
	assert.False(t, regs[0].Replaced)
	assert.False(t, regs[1].Replaced)

	same := &Metric{Name: "a", Description: "first", Expr: expr.Const(3)}
	regs = m.UpdateMetrics(same)
	assert.Equal(t, []Registration{{Name: "a", Replaced: true}}, regs)

	clash := &Metric{Name: "b", Description: "something else", Expr: expr.Const(4)}
	regs = m.UpdateMetrics(clash)
	assert.Equal(t, []Registration{{Name: "b", Replaced: true, Collision: true}}, regs)

	metrics := m.Metrics()
	require.Len(t, metrics, 2)
	assert.Same(t, same, metrics[0])
	assert.Same(t, clash, metrics[1])

	got, ok := m.Metric("a")
	require.True(t, ok)
	assert.Equal(t, []float64{3}, got.Value())
}

func TestRegistry_KindsAreIndependent(t *testing.T) {
	m := newTestModel()
	x := NewVariable("x", "shared name", 2)
	m.UpdateVariables(x)
	m.UpdateMetrics(&Metric{Name: "x", Description: "shared name", Expr: x.Expr()})

	vars, metrics, objectives, constraints := m.Counts()
	assert.Equal(t, 1, vars)
	assert.Equal(t, 1, metrics)
	assert.Zero(t, objectives)
	assert.Zero(t, constraints)
}

func TestModel_Clear(t *testing.T) {
	m := newTestModel()
	tbl := antiCorrelated(t)
	_, err := m.SetWeights([]string{"A", "B"})
	require.NoError(t, err)
	_, err = MaximizeEMAReturn(m, tbl, []string{"A", "B"}, 3)
	require.NoError(t, err)

	m.Clear()

	vars, metrics, objectives, constraints := m.Counts()
	assert.Zero(t, vars+metrics+objectives+constraints)
	assert.Nil(t, m.Weights())
	assert.Nil(t, m.EMAVariable())
	assert.Empty(t, m.Tickers())

	_, err = SimpleReturn(m, tbl, []string{"A", "B"})
	assert.ErrorIs(t, err, ErrMissingPrerequisite)
}

func TestEntityStrings(t *testing.T) {
	m := newTestModel()
	w, err := m.SetWeights([]string{"A", "B"})
	require.NoError(t, err)

	budget, ok := m.Constraint(BudgetName)
	require.True(t, ok)
	assert.Equal(t, "Name: sum(shares)==1\nType: constraint\nDescription: ensure portfolio shares sum to 100%\nDual value: None", budget.String())

	assert.Contains(t, w.String(), "Type: variable")
	assert.Contains(t, w.String(), "Value: None")

	w.Var.Assign([]float64{0.25, 0.75})
	assert.Contains(t, w.String(), "Value: [0.25 0.75]")

	metric := &Metric{Name: "m (x)", Description: "d", Expr: expr.Sum(w.Expr())}
	assert.Equal(t, "Name: m (x)\nType: metric\nDescription: d\nValue: 1", metric.String())
}
