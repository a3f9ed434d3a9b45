package optimization

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/investsim/internal/expr"
	"github.com/aristath/investsim/internal/modules/historical"
	"github.com/aristath/investsim/pkg/formulas"
)

// Names of the time-series metrics.
const (
	SimpleReturnName     = "simple return"
	DoDReturnName        = "DoD return"
	DrawdownName         = "drawdown"
	CovarianceMatrixName = "covariance matrix"
)

// ReturnAgainstBenchmarkName is the metric name for a benchmark-relative return.
func ReturnAgainstBenchmarkName(benchmark string) string {
	return "return against " + benchmark
}

// portfolioSeries weights a transformed price table by the weights variable.
func portfolioSeries(m *Model, data *historical.Table, tickers []string, transform func(mat.Matrix) *mat.Dense) (expr.Expr, error) {
	w, err := m.requireWeights(tickers)
	if err != nil {
		return nil, err
	}
	prices, err := data.Select(tickers...)
	if err != nil {
		return nil, err
	}
	series := transform(prices)
	if r, _ := series.Dims(); r == 0 {
		return nil, fmt.Errorf("%w: not enough observations", ErrInvalidParameter)
	}
	return expr.MatVec(series, w.Expr()), nil
}

// SimpleReturn registers the portfolio's percent change against the first date.
func SimpleReturn(m *Model, data *historical.Table, tickers []string) (*Metric, error) {
	r, err := portfolioSeries(m, data, tickers, formulas.PctChangeFromStartMatrix)
	if err != nil {
		return nil, fmt.Errorf("simple return: %w", err)
	}
	metric := &Metric{
		Name:        SimpleReturnName,
		Description: "% nominal growth or loss against initial input price.",
		Expr:        r,
	}
	m.UpdateMetrics(metric)
	return metric, nil
}

// DoDReturn registers the portfolio's day-over-day percent change. It is one
// element shorter than the table.
func DoDReturn(m *Model, data *historical.Table, tickers []string) (*Metric, error) {
	r, err := portfolioSeries(m, data, tickers, formulas.PctChangeMatrix)
	if err != nil {
		return nil, fmt.Errorf("DoD return: %w", err)
	}
	metric := &Metric{
		Name:        DoDReturnName,
		Description: "% DoD change in portfolio return.",
		Expr:        r,
	}
	m.UpdateMetrics(metric)
	return metric, nil
}

// ReturnAgainstBenchmark registers the simple return minus the benchmark's
// simple return. Any table column, such as CPI, can serve as benchmark.
func ReturnAgainstBenchmark(m *Model, data *historical.Table, tickers []string, benchmark string) (*Metric, error) {
	bench, err := data.Column(benchmark)
	if err != nil {
		return nil, fmt.Errorf("return against benchmark: %w", err)
	}
	r, err := portfolioSeries(m, data, tickers, formulas.PctChangeFromStartMatrix)
	if err != nil {
		return nil, fmt.Errorf("return against benchmark: %w", err)
	}
	metric := &Metric{
		Name:        ReturnAgainstBenchmarkName(benchmark),
		Description: fmt.Sprintf("Nominal return minus benchmark return (%s).", benchmark),
		Expr:        expr.Sub(r, expr.Const(formulas.PctChangeFromStart(bench)...)),
	}
	m.UpdateMetrics(metric)
	return metric, nil
}

// Drawdown registers the distance of the simple return from its running
// maximum. Every element is non-negative.
func Drawdown(m *Model, data *historical.Table, tickers []string) (*Metric, error) {
	r, err := portfolioSeries(m, data, tickers, formulas.PctChangeFromStartMatrix)
	if err != nil {
		return nil, fmt.Errorf("drawdown: %w", err)
	}
	metric := &Metric{
		Name:        DrawdownName,
		Description: "% drop of portfolio value since the maximum-to-date.",
		Expr:        expr.Sub(expr.CumMax(r), r),
	}
	m.UpdateMetrics(metric)
	return metric, nil
}

// CovarianceMatrix registers the sample covariance of the tickers'
// day-over-day percent changes.
func CovarianceMatrix(m *Model, data *historical.Table, tickers []string) (*Metric, error) {
	prices, err := data.Select(tickers...)
	if err != nil {
		return nil, fmt.Errorf("covariance matrix: %w", err)
	}
	if data.Len() < 3 {
		return nil, fmt.Errorf("covariance matrix: %w: need at least three dates, have %d", ErrInvalidParameter, data.Len())
	}
	cov := formulas.CovarianceMatrix(formulas.PctChangeMatrix(prices))
	metric := &Metric{
		Name:        CovarianceMatrixName,
		Description: "Covariance matrix of historical ticker prices.",
		Expr:        expr.NewSymMatrix(cov),
	}
	m.UpdateMetrics(metric)
	return metric, nil
}
