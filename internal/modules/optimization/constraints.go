package optimization

import (
	"fmt"

	"github.com/aristath/investsim/internal/expr"
	"github.com/aristath/investsim/internal/modules/historical"
)

// LongOnlyName is the name of the no-short-selling constraint.
const LongOnlyName = "keep long positions only"

func registerConstraint(m *Model, name, description string, rel *expr.Relation) *Constraint {
	c := &Constraint{Name: name, Description: description, Relation: rel}
	m.UpdateConstraints(c)
	return c
}

func atLeast(e expr.Expr, threshold float64) *expr.Relation {
	return expr.GreaterEq(e, expr.Scalar(threshold))
}

func atMost(e expr.Expr, threshold float64) *expr.Relation {
	return expr.LessEq(e, expr.Scalar(threshold))
}

// KeepLongPositionsOnly forbids negative weights.
func KeepLongPositionsOnly(m *Model) (*Constraint, error) {
	if m.weights == nil {
		return nil, fmt.Errorf("%w: weights are not initialized", ErrMissingPrerequisite)
	}
	return registerConstraint(m, LongOnlyName, "Keep long positions only.",
		atLeast(m.weights.Expr(), 0)), nil
}

// KeepReturnAboveThreshold requires the final simple return to reach threshold.
func KeepReturnAboveThreshold(m *Model, data *historical.Table, tickers []string, threshold float64) (*Constraint, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	r, err := SimpleReturn(m, data, tickers)
	if err != nil {
		return nil, err
	}
	final, err := FinalPointValue(m, r)
	if err != nil {
		return nil, err
	}
	return registerConstraint(m, fmt.Sprintf("keep return above %s", pct(threshold)),
		fmt.Sprintf("Ensure nominal return exceeds %s on output date.", pct(threshold)),
		atLeast(final.Expr, threshold)), nil
}

// KeepAvgReturnAboveThreshold requires the mean simple return to reach threshold.
func KeepAvgReturnAboveThreshold(m *Model, data *historical.Table, tickers []string, threshold float64) (*Constraint, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	r, err := SimpleReturn(m, data, tickers)
	if err != nil {
		return nil, err
	}
	avg, err := HistoricalAvg(m, r)
	if err != nil {
		return nil, err
	}
	return registerConstraint(m, fmt.Sprintf("keep average return above %s", pct(threshold)),
		fmt.Sprintf("Ensure average historical return (arithmetic mean) exceeds %s.", pct(threshold)),
		atLeast(avg.Expr, threshold)), nil
}

// KeepEMAReturnAboveThreshold requires the final EMA of the simple return to
// reach threshold.
func KeepEMAReturnAboveThreshold(m *Model, data *historical.Table, tickers []string, window int, threshold float64) (*Constraint, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	if err := m.checkEMA(window, data.Len(), false); err != nil {
		return nil, err
	}
	r, err := SimpleReturn(m, data, tickers)
	if err != nil {
		return nil, err
	}
	ema, err := EMAWeightedAvg(m, r, window)
	if err != nil {
		return nil, err
	}
	return registerConstraint(m, fmt.Sprintf("keep ema return above %s", pct(threshold)),
		fmt.Sprintf("Ensure the exponential moving average of nominal return exceeds %s.", pct(threshold)),
		atLeast(ema.Expr, threshold)), nil
}

// KeepAvgDoDReturnAboveThreshold requires the mean day-over-day return to
// reach threshold.
func KeepAvgDoDReturnAboveThreshold(m *Model, data *historical.Table, tickers []string, threshold float64) (*Constraint, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	r, err := DoDReturn(m, data, tickers)
	if err != nil {
		return nil, err
	}
	avg, err := HistoricalAvg(m, r)
	if err != nil {
		return nil, err
	}
	return registerConstraint(m, fmt.Sprintf("keep dod return above %s", pct(threshold)),
		fmt.Sprintf("Ensure average day-over-day return exceeds %s", pct(threshold)),
		atLeast(avg.Expr, threshold)), nil
}

// KeepEMADoDReturnAboveThreshold requires the final EMA of the day-over-day
// return to reach threshold.
func KeepEMADoDReturnAboveThreshold(m *Model, data *historical.Table, tickers []string, window int, threshold float64) (*Constraint, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	if err := m.checkEMA(window, data.Len()-1, false); err != nil {
		return nil, err
	}
	r, err := DoDReturn(m, data, tickers)
	if err != nil {
		return nil, err
	}
	ema, err := EMAWeightedAvg(m, r, window)
	if err != nil {
		return nil, err
	}
	return registerConstraint(m, fmt.Sprintf("keep ema dod return above %s", pct(threshold)),
		fmt.Sprintf("Ensure the exponential moving average of day-over-day return exceeds %s.", pct(threshold)),
		atLeast(ema.Expr, threshold)), nil
}

// KeepReturnAgainstBenchmarkAboveThreshold requires the final excess return
// over benchmark to reach threshold.
func KeepReturnAgainstBenchmarkAboveThreshold(m *Model, data *historical.Table, tickers []string, benchmark string, threshold float64) (*Constraint, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	delta, err := ReturnAgainstBenchmark(m, data, tickers, benchmark)
	if err != nil {
		return nil, err
	}
	final, err := FinalPointValue(m, delta)
	if err != nil {
		return nil, err
	}
	return registerConstraint(m, fmt.Sprintf("keep return against %s above %s", benchmark, pct(threshold)),
		fmt.Sprintf("Ensure the nominal return on output date is %s greater than benchmark return (%s)", pct(threshold), benchmark),
		atLeast(final.Expr, threshold)), nil
}

// KeepAvgReturnAgainstBenchmarkAboveThreshold requires the mean excess return
// over benchmark to reach threshold.
func KeepAvgReturnAgainstBenchmarkAboveThreshold(m *Model, data *historical.Table, tickers []string, benchmark string, threshold float64) (*Constraint, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	delta, err := ReturnAgainstBenchmark(m, data, tickers, benchmark)
	if err != nil {
		return nil, err
	}
	avg, err := HistoricalAvg(m, delta)
	if err != nil {
		return nil, err
	}
	return registerConstraint(m, fmt.Sprintf("keep average return against %s above %s", benchmark, pct(threshold)),
		fmt.Sprintf("Ensure the nominal return (arithmetic mean) is %s greater than benchmark return (%s) on average.", pct(threshold), benchmark),
		atLeast(avg.Expr, threshold)), nil
}

// KeepEMAReturnAgainstBenchmarkAboveThreshold requires the final EMA of the
// excess return over benchmark to reach threshold.
func KeepEMAReturnAgainstBenchmarkAboveThreshold(m *Model, data *historical.Table, tickers []string, window int, benchmark string, threshold float64) (*Constraint, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	if err := m.checkEMA(window, data.Len(), false); err != nil {
		return nil, err
	}
	delta, err := ReturnAgainstBenchmark(m, data, tickers, benchmark)
	if err != nil {
		return nil, err
	}
	ema, err := EMAWeightedAvg(m, delta, window)
	if err != nil {
		return nil, err
	}
	return registerConstraint(m, fmt.Sprintf("keep ema return against %s above %s", benchmark, pct(threshold)),
		fmt.Sprintf("Ensure the exponential moving average of return against benchmark (nominal return minus benchmark return) exceeds %s.", pct(threshold)),
		atLeast(ema.Expr, threshold)), nil
}

// KeepPercentOutperformingDaysAboveThreshold requires the share of dates
// beating benchmark to reach threshold. Not convex; Optimize rejects it.
func KeepPercentOutperformingDaysAboveThreshold(m *Model, data *historical.Table, tickers []string, benchmark string, threshold float64) (*Constraint, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	delta, err := ReturnAgainstBenchmark(m, data, tickers, benchmark)
	if err != nil {
		return nil, err
	}
	days, err := PercentOutperformingDays(m, delta, 0)
	if err != nil {
		return nil, err
	}
	return registerConstraint(m, fmt.Sprintf("keep %% outperforming days above %s (return against %s)", pct(threshold), benchmark),
		fmt.Sprintf("Ensure %% days where nominal return outperforms benchmark return (%s) exceeds %s.", benchmark, pct(threshold)),
		atLeast(days.Expr, threshold)), nil
}

// CapMaximalLossAtThreshold keeps every simple return at or above -threshold.
func CapMaximalLossAtThreshold(m *Model, data *historical.Table, tickers []string, threshold float64) (*Constraint, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	r, err := SimpleReturn(m, data, tickers)
	if err != nil {
		return nil, err
	}
	worst, err := HistoricalMin(m, r)
	if err != nil {
		return nil, err
	}
	return registerConstraint(m, fmt.Sprintf("cap maximal loss at %s", pct(threshold)),
		fmt.Sprintf("Ensure maximal loss does not exceed %s.", pct(threshold)),
		atLeast(worst.Expr, -threshold)), nil
}

// CapMaximalDoDLossAtThreshold keeps every day-over-day return at or above -threshold.
func CapMaximalDoDLossAtThreshold(m *Model, data *historical.Table, tickers []string, threshold float64) (*Constraint, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	r, err := DoDReturn(m, data, tickers)
	if err != nil {
		return nil, err
	}
	worst, err := HistoricalMin(m, r)
	if err != nil {
		return nil, err
	}
	return registerConstraint(m, fmt.Sprintf("cap maximal single-day loss at %s", pct(threshold)),
		fmt.Sprintf("Ensure maximal single-day loss does not exceed %s.", pct(threshold)),
		atLeast(worst.Expr, -threshold)), nil
}

// CapMaximalDrawdownAtThreshold keeps every drawdown at or below threshold.
func CapMaximalDrawdownAtThreshold(m *Model, data *historical.Table, tickers []string, threshold float64) (*Constraint, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	dd, err := Drawdown(m, data, tickers)
	if err != nil {
		return nil, err
	}
	worst, err := HistoricalMax(m, dd)
	if err != nil {
		return nil, err
	}
	return registerConstraint(m, fmt.Sprintf("cap maximal drawdown at %s", pct(threshold)),
		fmt.Sprintf("Ensure maximal drawdown does not exceed %s.", pct(threshold)),
		atMost(worst.Expr, threshold)), nil
}

// CapAvgDrawdownAtThreshold keeps the mean drawdown at or below threshold.
func CapAvgDrawdownAtThreshold(m *Model, data *historical.Table, tickers []string, threshold float64) (*Constraint, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	dd, err := Drawdown(m, data, tickers)
	if err != nil {
		return nil, err
	}
	avg, err := HistoricalAvg(m, dd)
	if err != nil {
		return nil, err
	}
	return registerConstraint(m, fmt.Sprintf("cap average drawdown at %s", pct(threshold)),
		fmt.Sprintf("Ensure average drawdown does not exceed %s.", pct(threshold)),
		atMost(avg.Expr, threshold)), nil
}

// CapEMADrawdownAtThreshold keeps the final EMA of drawdown at or below threshold.
func CapEMADrawdownAtThreshold(m *Model, data *historical.Table, tickers []string, window int, threshold float64) (*Constraint, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	if err := m.checkEMA(window, data.Len(), false); err != nil {
		return nil, err
	}
	dd, err := Drawdown(m, data, tickers)
	if err != nil {
		return nil, err
	}
	ema, err := EMAWeightedAvg(m, dd, window)
	if err != nil {
		return nil, err
	}
	return registerConstraint(m, fmt.Sprintf("cap ema drawdown at %s", pct(threshold)),
		fmt.Sprintf("Ensure the exponential moving average of drawdown does not exceed %s.", pct(threshold)),
		atMost(ema.Expr, threshold)), nil
}

// CapPercentUnderperformingDaysAtThreshold keeps the share of dates trailing
// benchmark at or below threshold. Not convex; Optimize rejects it.
func CapPercentUnderperformingDaysAtThreshold(m *Model, data *historical.Table, tickers []string, benchmark string, threshold float64) (*Constraint, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	delta, err := ReturnAgainstBenchmark(m, data, tickers, benchmark)
	if err != nil {
		return nil, err
	}
	days, err := PercentUnderperformingDays(m, delta, 0)
	if err != nil {
		return nil, err
	}
	return registerConstraint(m, fmt.Sprintf("cap %% underperforming days (return against %s)", benchmark),
		fmt.Sprintf("Ensure the %% days where nominal return underperforms against benchmark return does not exceed %s.", pct(threshold)),
		atMost(days.Expr, threshold)), nil
}

// KeepEMADeviationBelowThreshold bounds the standard deviation of the simple
// return around its EMA.
func KeepEMADeviationBelowThreshold(m *Model, data *historical.Table, tickers []string, window int, threshold float64) (*Constraint, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	if err := m.checkEMA(window, data.Len(), true); err != nil {
		return nil, err
	}
	r, err := SimpleReturn(m, data, tickers)
	if err != nil {
		return nil, err
	}
	dev, err := EMADeviation(m, r, window)
	if err != nil {
		return nil, err
	}
	return registerConstraint(m, fmt.Sprintf("keep ema deviation below %s", pct(threshold)),
		fmt.Sprintf("Ensure the degree to which nominal return deviates from exponential moving average does not exceed %s.", pct(threshold)),
		atMost(dev.Expr, threshold)), nil
}

// KeepPortfolioVarianceBelowThreshold bounds w' Σ w by threshold.
func KeepPortfolioVarianceBelowThreshold(m *Model, data *historical.Table, tickers []string, threshold float64) (*Constraint, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	if _, err := m.requireWeights(tickers); err != nil {
		return nil, err
	}
	cov, err := CovarianceMatrix(m, data, tickers)
	if err != nil {
		return nil, err
	}
	variance, err := PortfolioVariance(m, cov)
	if err != nil {
		return nil, err
	}
	return registerConstraint(m, fmt.Sprintf("keep portfolio variance below %s", pct(threshold)),
		fmt.Sprintf("Ensure total portfolio variance (quadratic form of covariance) does not exceed %v.", threshold),
		atMost(variance.Expr, threshold)), nil
}
