package optimization

import (
	"fmt"

	"github.com/aristath/investsim/internal/expr"
)

func qualified(ts *Metric, qualifier string) string {
	return fmt.Sprintf("%s (%s)", ts.Name, qualifier)
}

func requireSeries(ts *Metric) error {
	if ts.IsMatrix() {
		return fmt.Errorf("%w: %q is a matrix, not a time series", ErrInvalidParameter, ts.Name)
	}
	return nil
}

func aggregate(m *Model, ts *Metric, qualifier, description string, e expr.Expr) (*Metric, error) {
	if err := requireSeries(ts); err != nil {
		return nil, err
	}
	metric := &Metric{
		Name:        qualified(ts, qualifier),
		Description: description,
		Expr:        e,
	}
	m.UpdateMetrics(metric)
	return metric, nil
}

// HistoricalMin registers the smallest value of ts.
func HistoricalMin(m *Model, ts *Metric) (*Metric, error) {
	return aggregate(m, ts, "historical min", fmt.Sprintf("Historical minimum of %s.", ts.Name), expr.Min(ts.Expr))
}

// HistoricalMax registers the largest value of ts.
func HistoricalMax(m *Model, ts *Metric) (*Metric, error) {
	return aggregate(m, ts, "historical max", fmt.Sprintf("Historical maximum of %s.", ts.Name), expr.Max(ts.Expr))
}

// HistoricalAvg registers the arithmetic mean of ts.
func HistoricalAvg(m *Model, ts *Metric) (*Metric, error) {
	return aggregate(m, ts, "historical average", fmt.Sprintf("Historical average of %s.", ts.Name), expr.Mean(ts.Expr))
}

// FinalPointValue registers the last value of ts.
func FinalPointValue(m *Model, ts *Metric) (*Metric, error) {
	return aggregate(m, ts, "value on return date", fmt.Sprintf("Value of %s on return date.", ts.Name), expr.Last(ts.Expr))
}

// EMAWeightedAvg registers the exponential moving average of ts on the final
// date, creating the model's EMA if needed.
func EMAWeightedAvg(m *Model, ts *Metric, window int) (*Metric, error) {
	if err := requireSeries(ts); err != nil {
		return nil, err
	}
	if _, err := m.EMA(ts, window); err != nil {
		return nil, err
	}
	return aggregate(m, ts, "exponential weighted average",
		fmt.Sprintf("Exponential moving average of %s on return date.", ts.Name),
		expr.Last(m.ema.view))
}

// PercentOutperformingDays registers the share of dates where ts is above
// threshold. Counting metrics can be reported but not optimized.
func PercentOutperformingDays(m *Model, ts *Metric, threshold float64) (*Metric, error) {
	return aggregate(m, ts, "% outperforming days", "% days where portfolio outperforms benchmark.",
		expr.FractionAbove(ts.Expr, threshold))
}

// PercentUnderperformingDays registers the share of dates where ts is below
// threshold.
func PercentUnderperformingDays(m *Model, ts *Metric, threshold float64) (*Metric, error) {
	return aggregate(m, ts, "% underperforming days", "% days where portfolio underperforms.",
		expr.FractionBelow(ts.Expr, threshold))
}

// EMADeviation registers the population standard deviation of ts around the
// model's EMA.
func EMADeviation(m *Model, ts *Metric, window int) (*Metric, error) {
	if err := requireSeries(ts); err != nil {
		return nil, err
	}
	if _, err := m.EMA(ts, window); err != nil {
		return nil, err
	}
	if m.ema.view.Len() != ts.Expr.Len() {
		return nil, fmt.Errorf("%w: ema has %d elements, %q has %d", ErrInvalidParameter, m.ema.view.Len(), ts.Name, ts.Expr.Len())
	}
	return aggregate(m, ts, "deviation from historical weighted average",
		fmt.Sprintf("Standard deviation of %s against the ema smoothing function.", ts.Name),
		expr.Std(expr.Sub(ts.Expr, m.ema.view)))
}

// PortfolioVarianceName is the name of the quadratic-form risk metric.
const PortfolioVarianceName = "portfolio variance (classical method)"

// PortfolioVariance registers w' Σ w for the covariance metric cov.
func PortfolioVariance(m *Model, cov *Metric) (*Metric, error) {
	sym, ok := cov.Expr.(*expr.SymMatrix)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a matrix", ErrInvalidParameter, cov.Name)
	}
	if m.weights == nil {
		return nil, fmt.Errorf("%w: weights are not initialized", ErrMissingPrerequisite)
	}
	if sym.Order() != m.weights.Size() {
		return nil, fmt.Errorf("%w: covariance of order %d for %d weights", ErrInvalidParameter, sym.Order(), m.weights.Size())
	}
	metric := &Metric{
		Name:        PortfolioVarianceName,
		Description: "Quadratic form of portfolio covariance matrix.",
		Expr:        expr.QuadForm(m.weights.Expr(), sym),
	}
	m.UpdateMetrics(metric)
	return metric, nil
}
