// Package report turns a solved optimization model into a serializable
// record and persists it.
package report

import (
	"errors"
	"math"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/investsim/internal/modules/optimization"
)

// AllocationTolerance is the smallest weight reported in an allocation.
const AllocationTolerance = 1e-6

// ErrNotOptimized is returned when a report is requested before Optimize.
var ErrNotOptimized = errors.New("model has not been optimized")

// Aggregated metrics carry a qualifier in parentheses, e.g.
// "simple return (historical min)". Raw series and matrices do not.
var aggregatePattern = regexp.MustCompile(`.*\(.*\)`)

// Report is the outcome of one simulation run. Metrics and constraints are
// keyed by entity name.
type Report struct {
	ID          string             `json:"id"`
	GeneratedAt time.Time          `json:"generated_at"`
	Status      string             `json:"status"`
	Tickers     []string           `json:"tickers"`
	Value       *float64           `json:"value"`
	Objective   string             `json:"objective"`
	Allocation  map[string]float64 `json:"allocation"`
	Metrics     map[string]string  `json:"metrics"`
	Constraints map[string]string  `json:"constraints"`
}

// Generate reads the solved state of m. It does not modify the model.
func Generate(m *optimization.Model) (*Report, error) {
	outcome := m.Outcome()
	if outcome == nil {
		return nil, ErrNotOptimized
	}

	r := &Report{
		ID:          uuid.New().String(),
		GeneratedAt: time.Now().UTC(),
		Status:      string(outcome.Status),
		Tickers:     m.Tickers(),
		Allocation:  make(map[string]float64),
		Metrics:     make(map[string]string),
		Constraints: make(map[string]string),
	}
	if !math.IsNaN(outcome.Value) && !math.IsInf(outcome.Value, 0) {
		v := outcome.Value
		r.Value = &v
	}
	if outcome.Objective != nil {
		r.Objective = outcome.Objective.String()
	}

	if w := m.Weights(); w != nil {
		values := w.Value()
		for i, ticker := range r.Tickers {
			if i < len(values) && values[i] > AllocationTolerance {
				r.Allocation[ticker] = values[i]
			}
		}
	}

	for _, metric := range m.Metrics() {
		if aggregatePattern.MatchString(metric.Name) {
			r.Metrics[metric.Name] = metric.String()
		}
	}
	for _, c := range m.Constraints() {
		r.Constraints[c.Name] = c.String()
	}
	return r, nil
}
