package simulator

import (
	"fmt"
	"sort"

	"github.com/aristath/investsim/internal/modules/historical"
	"github.com/aristath/investsim/internal/modules/optimization"
)

type needs uint8

const (
	needThreshold needs = 1 << iota
	needWindow
	needBenchmark
)

// params are an entry's resolved arguments.
type params struct {
	threshold float64
	window    int
	benchmark string
}

type objectiveKind struct {
	needs needs
	build func(m *optimization.Model, data *historical.Table, tickers []string, p params) (*optimization.Objective, error)
}

type constraintKind struct {
	needs needs
	build func(m *optimization.Model, data *historical.Table, tickers []string, p params) (*optimization.Constraint, error)
}

var objectiveKinds = map[string]objectiveKind{
	"maximize_return": {0, func(m *optimization.Model, d *historical.Table, t []string, _ params) (*optimization.Objective, error) {
		return optimization.MaximizeReturn(m, d, t)
	}},
	"maximize_avg_return": {0, func(m *optimization.Model, d *historical.Table, t []string, _ params) (*optimization.Objective, error) {
		return optimization.MaximizeAvgReturn(m, d, t)
	}},
	"maximize_ema_return": {needWindow, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Objective, error) {
		return optimization.MaximizeEMAReturn(m, d, t, p.window)
	}},
	"maximize_avg_dod_return": {0, func(m *optimization.Model, d *historical.Table, t []string, _ params) (*optimization.Objective, error) {
		return optimization.MaximizeAvgDoDReturn(m, d, t)
	}},
	"maximize_ema_dod_return": {needWindow, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Objective, error) {
		return optimization.MaximizeEMADoDReturn(m, d, t, p.window)
	}},
	"maximize_return_against_benchmark": {needBenchmark, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Objective, error) {
		return optimization.MaximizeReturnAgainstBenchmark(m, d, t, p.benchmark)
	}},
	"maximize_avg_return_against_benchmark": {needBenchmark, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Objective, error) {
		return optimization.MaximizeAvgReturnAgainstBenchmark(m, d, t, p.benchmark)
	}},
	"maximize_ema_return_against_benchmark": {needBenchmark | needWindow, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Objective, error) {
		return optimization.MaximizeEMAReturnAgainstBenchmark(m, d, t, p.benchmark, p.window)
	}},
	"maximize_percent_outperforming_days": {needBenchmark, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Objective, error) {
		return optimization.MaximizePercentOutperformingDays(m, d, t, p.benchmark)
	}},
	"minimize_maximal_loss": {0, func(m *optimization.Model, d *historical.Table, t []string, _ params) (*optimization.Objective, error) {
		return optimization.MinimizeMaximalLoss(m, d, t)
	}},
	"minimize_days_with_loss": {needThreshold, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Objective, error) {
		return optimization.MinimizeDaysWithLoss(m, d, t, p.threshold)
	}},
	"minimize_maximal_drawdown": {0, func(m *optimization.Model, d *historical.Table, t []string, _ params) (*optimization.Objective, error) {
		return optimization.MinimizeMaximalDrawdown(m, d, t)
	}},
	"minimize_avg_drawdown": {0, func(m *optimization.Model, d *historical.Table, t []string, _ params) (*optimization.Objective, error) {
		return optimization.MinimizeAvgDrawdown(m, d, t)
	}},
	"minimize_ema_drawdown": {needWindow, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Objective, error) {
		return optimization.MinimizeEMADrawdown(m, d, t, p.window)
	}},
	"minimize_underperforming_days": {needBenchmark, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Objective, error) {
		return optimization.MinimizeUnderperformingDays(m, d, t, p.benchmark)
	}},
	"minimize_ema_deviation": {needWindow, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Objective, error) {
		return optimization.MinimizeEMADeviation(m, d, t, p.window)
	}},
	"minimize_classical_volatility": {0, func(m *optimization.Model, d *historical.Table, t []string, _ params) (*optimization.Objective, error) {
		return optimization.MinimizeClassicalVolatility(m, d, t)
	}},
}

var constraintKinds = map[string]constraintKind{
	"keep_long_positions_only": {0, func(m *optimization.Model, _ *historical.Table, _ []string, _ params) (*optimization.Constraint, error) {
		return optimization.KeepLongPositionsOnly(m)
	}},
	"keep_return_above_threshold": {needThreshold, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Constraint, error) {
		return optimization.KeepReturnAboveThreshold(m, d, t, p.threshold)
	}},
	"keep_avg_return_above_threshold": {needThreshold, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Constraint, error) {
		return optimization.KeepAvgReturnAboveThreshold(m, d, t, p.threshold)
	}},
	"keep_ema_return_above_threshold": {needThreshold | needWindow, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Constraint, error) {
		return optimization.KeepEMAReturnAboveThreshold(m, d, t, p.window, p.threshold)
	}},
	"keep_avg_dod_return_above_threshold": {needThreshold, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Constraint, error) {
		return optimization.KeepAvgDoDReturnAboveThreshold(m, d, t, p.threshold)
	}},
	"keep_ema_dod_return_above_threshold": {needThreshold | needWindow, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Constraint, error) {
		return optimization.KeepEMADoDReturnAboveThreshold(m, d, t, p.window, p.threshold)
	}},
	"keep_return_against_benchmark_above_threshold": {needThreshold | needBenchmark, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Constraint, error) {
		return optimization.KeepReturnAgainstBenchmarkAboveThreshold(m, d, t, p.benchmark, p.threshold)
	}},
	"keep_avg_return_against_benchmark_above_threshold": {needThreshold | needBenchmark, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Constraint, error) {
		return optimization.KeepAvgReturnAgainstBenchmarkAboveThreshold(m, d, t, p.benchmark, p.threshold)
	}},
	"keep_ema_return_against_benchmark_above_threshold": {needThreshold | needBenchmark | needWindow, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Constraint, error) {
		return optimization.KeepEMAReturnAgainstBenchmarkAboveThreshold(m, d, t, p.window, p.benchmark, p.threshold)
	}},
	"keep_percent_outperforming_days_above_threshold": {needThreshold | needBenchmark, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Constraint, error) {
		return optimization.KeepPercentOutperformingDaysAboveThreshold(m, d, t, p.benchmark, p.threshold)
	}},
	"cap_maximal_loss_at_threshold": {needThreshold, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Constraint, error) {
		return optimization.CapMaximalLossAtThreshold(m, d, t, p.threshold)
	}},
	"cap_maximal_dod_loss_at_threshold": {needThreshold, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Constraint, error) {
		return optimization.CapMaximalDoDLossAtThreshold(m, d, t, p.threshold)
	}},
	"cap_maximal_drawdown_at_threshold": {needThreshold, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Constraint, error) {
		return optimization.CapMaximalDrawdownAtThreshold(m, d, t, p.threshold)
	}},
	"cap_avg_drawdown_at_threshold": {needThreshold, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Constraint, error) {
		return optimization.CapAvgDrawdownAtThreshold(m, d, t, p.threshold)
	}},
	"cap_ema_drawdown_at_threshold": {needThreshold | needWindow, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Constraint, error) {
		return optimization.CapEMADrawdownAtThreshold(m, d, t, p.window, p.threshold)
	}},
	"cap_percent_underperforming_days_at_threshold": {needThreshold | needBenchmark, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Constraint, error) {
		return optimization.CapPercentUnderperformingDaysAtThreshold(m, d, t, p.benchmark, p.threshold)
	}},
	"keep_ema_deviation_below_threshold": {needThreshold | needWindow, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Constraint, error) {
		return optimization.KeepEMADeviationBelowThreshold(m, d, t, p.window, p.threshold)
	}},
	"keep_portfolio_variance_below_threshold": {needThreshold, func(m *optimization.Model, d *historical.Table, t []string, p params) (*optimization.Constraint, error) {
		return optimization.KeepPortfolioVarianceBelowThreshold(m, d, t, p.threshold)
	}},
}

// ObjectiveKinds lists the objective kinds a script may use, sorted.
func ObjectiveKinds() []string { return sortedKeys(objectiveKinds) }

// ConstraintKinds lists the constraint kinds a script may use, sorted.
func ConstraintKinds() []string { return sortedKeys(constraintKinds) }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Script) paramsOf(e Entry) params {
	p := params{window: e.SmoothingWindow, benchmark: s.benchmarkOf(e)}
	if e.Threshold != nil {
		p.threshold = *e.Threshold
	}
	return p
}

// Apply registers the script's weights, constraints and objective on m.
func (s *Script) Apply(m *optimization.Model, data *historical.Table) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if _, err := m.SetWeights(s.Tickers); err != nil {
		return err
	}
	for _, c := range s.Constraints {
		if _, err := constraintKinds[c.Kind].build(m, data, s.Tickers, s.paramsOf(c)); err != nil {
			return fmt.Errorf("constraint %s: %w", c.Kind, err)
		}
	}
	if _, err := objectiveKinds[s.Objective.Kind].build(m, data, s.Tickers, s.paramsOf(s.Objective)); err != nil {
		return fmt.Errorf("objective %s: %w", s.Objective.Kind, err)
	}
	return nil
}
