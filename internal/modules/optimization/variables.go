package optimization

import (
	"fmt"
	"slices"

	"github.com/aristath/investsim/internal/expr"
	"github.com/aristath/investsim/pkg/formulas"
)

// Names of the entities registered by SetWeights and EMA.
const (
	WeightsName         = "weights"
	BudgetName          = "sum(shares)==1"
	EMAName             = "ema"
	EMABaseCaseName     = "Recursively assign ema: base case"
	EMARecursiveName    = "recursively assign ema: recursive case"
	weightsDescription  = "Portfolio allocation % for each ticker"
	budgetDescription   = "ensure portfolio shares sum to 100%"
	emaDescription      = "Exponential moving average of portfolio return"
	emaBaseDescription  = "Assign first value of ema to be the first value of the time series."
	emaRecurDescription = "Assign each subsequent value of ema to be a weighted average of the current value and the previous ema."
)

// SetWeights registers the weights variable, one element per ticker, and the
// budget constraint that its elements sum to one. Calling it again with the
// same tickers returns the existing variable without registering anything.
func (m *Model) SetWeights(tickers []string) (*Variable, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("%w: no tickers", ErrInvalidParameter)
	}
	if m.weights != nil {
		if !slices.Equal(m.tickers, tickers) {
			return nil, fmt.Errorf("%w: weights already set for %v", ErrInvalidParameter, m.tickers)
		}
		return m.weights, nil
	}

	w := NewVariable(WeightsName, weightsDescription, len(tickers))
	m.UpdateVariables(w)
	m.UpdateConstraints(&Constraint{
		Name:        BudgetName,
		Description: budgetDescription,
		Relation:    expr.Equal(expr.Sum(w.Expr()), expr.Scalar(1)),
	})
	m.weights = w
	m.tickers = append([]string(nil), tickers...)
	return w, nil
}

// requireWeights returns the weights variable, checking that it covers tickers.
func (m *Model) requireWeights(tickers []string) (*Variable, error) {
	if m.weights == nil {
		return nil, fmt.Errorf("%w: weights are not initialized", ErrMissingPrerequisite)
	}
	if !slices.Equal(m.tickers, tickers) {
		return nil, fmt.Errorf("%w: tickers %v do not match weights %v", ErrInvalidParameter, tickers, m.tickers)
	}
	return m.weights, nil
}

type emaState struct {
	variable *Variable
	source   *Metric
	window   int
	// relaxed is set when the recursion is an inequality, so solved values
	// only bound the average.
	relaxed bool
	// view is the variable as seen by downstream expressions, carrying the
	// source's curvature.
	view expr.Expr
}

// EMA returns the exponential moving average variable of source, creating it
// on first use with alpha = 2/(window+1):
//
//	ema[0] = source[0]
//	ema[i] = alpha*source[i] + (1-alpha)*ema[i-1]
//
// A model holds at most one EMA; later calls return the first one regardless
// of source and window. For an affine source both relations are equalities.
// For a convex source (drawdown) they are emitted as ema >= recursion, which
// bounds the true average from above; a concave source gets the mirrored
// relations. Optimize replaces the solved values of a relaxed EMA with the
// exact recursion over the solved source.
func (m *Model) EMA(source *Metric, window int) (*Variable, error) {
	alpha, err := formulas.EMAAlpha(window)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	if m.ema != nil {
		if m.ema.source.Name != source.Name || m.ema.window != window {
			m.log.Warn().
				Str("source", source.Name).
				Int("window", window).
				Str("existing_source", m.ema.source.Name).
				Int("existing_window", m.ema.window).
				Msg("Reusing the existing ema; only one smoothing relation per model")
		}
		return m.ema.variable, nil
	}

	if source.IsMatrix() {
		return nil, fmt.Errorf("%w: ema of matrix metric %q", ErrInvalidParameter, source.Name)
	}
	n := source.Expr.Len()
	if n < 2 {
		return nil, fmt.Errorf("%w: ema needs at least two observations, %q has %d", ErrInvalidParameter, source.Name, n)
	}
	curv := source.Expr.Curvature()
	if curv == expr.Unknown {
		return nil, fmt.Errorf("ema of %q: %w", source.Name, expr.ErrNotConvex)
	}

	v := NewVariable(EMAName, emaDescription, n)
	ema := v.Expr()
	src := source.Expr
	rel := expr.Equal
	switch curv {
	case expr.Convex:
		rel = expr.GreaterEq
	case expr.Concave:
		rel = expr.LessEq
	}

	base := rel(expr.Index(ema, 0), expr.Index(src, 0))
	recursive := rel(
		expr.Slice(ema, 1, n),
		expr.Add(
			expr.Scale(alpha, expr.Slice(src, 1, n)),
			expr.Scale(1-alpha, expr.Slice(ema, 0, n-1)),
		),
	)

	m.UpdateVariables(v)
	m.UpdateConstraints(
		&Constraint{Name: EMABaseCaseName, Description: emaBaseDescription, Relation: base},
		&Constraint{Name: EMARecursiveName, Description: emaRecurDescription, Relation: recursive},
	)
	m.ema = &emaState{
		variable: v,
		source:   source,
		window:   window,
		relaxed:  curv != expr.Affine,
		view:     expr.Bounded(v.Var, curv),
	}
	return v, nil
}

// settleEMA overwrites a relaxed EMA's solved values with the recursion
// evaluated on the solved source. The exact average lies on the inner side of
// every relaxed relation, so the assignment stays feasible.
func (m *Model) settleEMA() bool {
	if m.ema == nil || !m.ema.relaxed {
		return false
	}
	src := m.ema.source.Value()
	if src == nil {
		return false
	}
	values, err := formulas.EMA(src, m.ema.window)
	if err != nil {
		m.log.Warn().Err(err).Str("source", m.ema.source.Name).Msg("Failed to settle ema values")
		return false
	}
	m.ema.variable.Var.Assign(values)
	return true
}
