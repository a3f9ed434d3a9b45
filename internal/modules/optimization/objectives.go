package optimization

import (
	"fmt"

	"github.com/aristath/investsim/internal/expr"
	"github.com/aristath/investsim/internal/modules/historical"
)

func registerObjective(m *Model, name, description string, goal expr.Goal) *Objective {
	o := &Objective{Name: name, Description: description, Goal: goal}
	m.UpdateObjectives(o)
	return o
}

// MaximizeReturn maximizes the simple return on the final date.
func MaximizeReturn(m *Model, data *historical.Table, tickers []string) (*Objective, error) {
	r, err := SimpleReturn(m, data, tickers)
	if err != nil {
		return nil, err
	}
	final, err := FinalPointValue(m, r)
	if err != nil {
		return nil, err
	}
	return registerObjective(m, "maximize return",
		"Maximize nominal return on output date.",
		expr.Maximize(final.Expr)), nil
}

// MaximizeAvgReturn maximizes the mean simple return.
func MaximizeAvgReturn(m *Model, data *historical.Table, tickers []string) (*Objective, error) {
	r, err := SimpleReturn(m, data, tickers)
	if err != nil {
		return nil, err
	}
	avg, err := HistoricalAvg(m, r)
	if err != nil {
		return nil, err
	}
	return registerObjective(m, "maximize average return",
		"Maximize average historical return (arithmetic mean).",
		expr.Maximize(avg.Expr)), nil
}

// MaximizeEMAReturn maximizes the exponential moving average of the simple
// return on the final date.
func MaximizeEMAReturn(m *Model, data *historical.Table, tickers []string, window int) (*Objective, error) {
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
	return registerObjective(m, "maximize ema return",
		"Maximize the exponential moving average of the return on final output date.",
		expr.Maximize(ema.Expr)), nil
}

// MaximizeAvgDoDReturn maximizes the mean day-over-day return.
func MaximizeAvgDoDReturn(m *Model, data *historical.Table, tickers []string) (*Objective, error) {
	r, err := DoDReturn(m, data, tickers)
	if err != nil {
		return nil, err
	}
	avg, err := HistoricalAvg(m, r)
	if err != nil {
		return nil, err
	}
	return registerObjective(m, "maximize average DoD return",
		"Maximize average day-over-day return (arithmetic mean).",
		expr.Maximize(avg.Expr)), nil
}

// MaximizeEMADoDReturn maximizes the final exponential moving average of the
// day-over-day return.
func MaximizeEMADoDReturn(m *Model, data *historical.Table, tickers []string, window int) (*Objective, error) {
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
	return registerObjective(m, "maximize ema DoD return",
		"Maximize the exponential moving average of the day-over-day return.",
		expr.Maximize(ema.Expr)), nil
}

// MaximizeReturnAgainstBenchmark maximizes the final return in excess of benchmark.
func MaximizeReturnAgainstBenchmark(m *Model, data *historical.Table, tickers []string, benchmark string) (*Objective, error) {
	delta, err := ReturnAgainstBenchmark(m, data, tickers, benchmark)
	if err != nil {
		return nil, err
	}
	final, err := FinalPointValue(m, delta)
	if err != nil {
		return nil, err
	}
	return registerObjective(m, fmt.Sprintf("maximize return against benchmark (%s)", benchmark),
		fmt.Sprintf("Maximize nominal return minus benchmark return (%s) on final output date.", benchmark),
		expr.Maximize(final.Expr)), nil
}

// MaximizeAvgReturnAgainstBenchmark maximizes the mean return in excess of benchmark.
func MaximizeAvgReturnAgainstBenchmark(m *Model, data *historical.Table, tickers []string, benchmark string) (*Objective, error) {
	delta, err := ReturnAgainstBenchmark(m, data, tickers, benchmark)
	if err != nil {
		return nil, err
	}
	avg, err := HistoricalAvg(m, delta)
	if err != nil {
		return nil, err
	}
	return registerObjective(m, fmt.Sprintf("maximize average return against benchmark (%s)", benchmark),
		"Maximize the historical average (arithmetic mean) of return against benchmark return (nominal return minus benchmark return).",
		expr.Maximize(avg.Expr)), nil
}

// MaximizeEMAReturnAgainstBenchmark maximizes the final exponential moving
// average of the return in excess of benchmark.
func MaximizeEMAReturnAgainstBenchmark(m *Model, data *historical.Table, tickers []string, benchmark string, window int) (*Objective, error) {
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
	return registerObjective(m, fmt.Sprintf("maximize ema return against benchmark (%s)", benchmark),
		"Maximize the exponential weighted average of return against benchmark (nominal return minus benchmark return)",
		expr.Maximize(ema.Expr)), nil
}

// MaximizePercentOutperformingDays maximizes the share of dates beating
// benchmark. The count is not convex, so Optimize rejects models using it.
func MaximizePercentOutperformingDays(m *Model, data *historical.Table, tickers []string, benchmark string) (*Objective, error) {
	delta, err := ReturnAgainstBenchmark(m, data, tickers, benchmark)
	if err != nil {
		return nil, err
	}
	days, err := PercentOutperformingDays(m, delta, 0)
	if err != nil {
		return nil, err
	}
	return registerObjective(m, fmt.Sprintf("maximize %% outperforming days (return against %s)", benchmark),
		fmt.Sprintf("Maximize %% days where nominal return outperforms benchmark return (%s).", benchmark),
		expr.Maximize(days.Expr)), nil
}

// MinimizeMaximalLoss maximizes the lowest simple return.
func MinimizeMaximalLoss(m *Model, data *historical.Table, tickers []string) (*Objective, error) {
	r, err := SimpleReturn(m, data, tickers)
	if err != nil {
		return nil, err
	}
	worst, err := HistoricalMin(m, r)
	if err != nil {
		return nil, err
	}
	return registerObjective(m, "minimize maximal loss",
		"Minimize the greatest amount of loss a portfolio could incur.",
		expr.Maximize(worst.Expr)), nil
}

// MinimizeDaysWithLoss minimizes the share of days losing more than threshold.
// The count is not convex, so Optimize rejects models using it.
func MinimizeDaysWithLoss(m *Model, data *historical.Table, tickers []string, threshold float64) (*Objective, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	r, err := DoDReturn(m, data, tickers)
	if err != nil {
		return nil, err
	}
	days, err := PercentUnderperformingDays(m, r, -threshold)
	if err != nil {
		return nil, err
	}
	return registerObjective(m, "minimize % days with loss",
		fmt.Sprintf("Minimize %% of days with single-day loss exceeding %s.", signedPct(threshold)),
		expr.Minimize(days.Expr)), nil
}

// MinimizeMaximalDrawdown minimizes the largest drawdown.
func MinimizeMaximalDrawdown(m *Model, data *historical.Table, tickers []string) (*Objective, error) {
	dd, err := Drawdown(m, data, tickers)
	if err != nil {
		return nil, err
	}
	worst, err := HistoricalMax(m, dd)
	if err != nil {
		return nil, err
	}
	return registerObjective(m, "minimize maximal drawdown",
		"Minimize maximal drop in position.",
		expr.Minimize(worst.Expr)), nil
}

// MinimizeAvgDrawdown minimizes the mean drawdown.
func MinimizeAvgDrawdown(m *Model, data *historical.Table, tickers []string) (*Objective, error) {
	dd, err := Drawdown(m, data, tickers)
	if err != nil {
		return nil, err
	}
	avg, err := HistoricalAvg(m, dd)
	if err != nil {
		return nil, err
	}
	return registerObjective(m, "minimize average drawdown",
		"Minimize average drawdown (arithmetic mean).",
		expr.Minimize(avg.Expr)), nil
}

// MinimizeEMADrawdown minimizes the final exponential moving average of drawdown.
func MinimizeEMADrawdown(m *Model, data *historical.Table, tickers []string, window int) (*Objective, error) {
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
	return registerObjective(m, "minimize ema drawdown",
		"Minimize the exponential weighted average of drawdown",
		expr.Minimize(ema.Expr)), nil
}

// MinimizeUnderperformingDays minimizes the share of dates trailing benchmark.
// The count is not convex, so Optimize rejects models using it.
func MinimizeUnderperformingDays(m *Model, data *historical.Table, tickers []string, benchmark string) (*Objective, error) {
	delta, err := ReturnAgainstBenchmark(m, data, tickers, benchmark)
	if err != nil {
		return nil, err
	}
	days, err := PercentUnderperformingDays(m, delta, 0)
	if err != nil {
		return nil, err
	}
	return registerObjective(m, fmt.Sprintf("minimize %% underperforming days (return against %s)", benchmark),
		fmt.Sprintf("Minimize %% days where nominal return underperforms benchmark return (%s).", benchmark),
		expr.Minimize(days.Expr)), nil
}

// MinimizeEMADeviation minimizes how far the simple return strays from its EMA.
func MinimizeEMADeviation(m *Model, data *historical.Table, tickers []string, window int) (*Objective, error) {
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
	return registerObjective(m, "minimize ema deviation",
		"Minimize the degree to which nominal return deviates from the exponential moving average.",
		expr.Minimize(dev.Expr)), nil
}

// MinimizeClassicalVolatility minimizes the portfolio variance w' Σ w.
func MinimizeClassicalVolatility(m *Model, data *historical.Table, tickers []string) (*Objective, error) {
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
	return registerObjective(m, "minimize classical volatility",
		"Minimize total portfolio variance (by calculating quadratic form of covariance).",
		expr.Minimize(variance.Expr)), nil
}
