// Package simulator runs model scripts: it loads market data, assembles an
// optimization model from the script's objective and constraints, solves it
// and stores the report.
package simulator

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aristath/investsim/internal/modules/historical"
)

// ErrInvalidScript wraps every script validation failure.
var ErrInvalidScript = errors.New("invalid model script")

// Script declares one simulation. JSON documents parse as well, being valid YAML.
type Script struct {
	Name    string   `yaml:"name" json:"name"`
	Tickers []string `yaml:"tickers" json:"tickers"`
	// Benchmark is the default for entries that compare against one. "CPI"
	// selects the consumer price index.
	Benchmark   string  `yaml:"benchmark" json:"benchmark"`
	StartDate   string  `yaml:"start_date" json:"start_date"`
	EndDate     string  `yaml:"end_date" json:"end_date"`
	Objective   Entry   `yaml:"objective" json:"objective"`
	Constraints []Entry `yaml:"constraints" json:"constraints"`
}

// Entry is an objective or constraint with its parameters.
type Entry struct {
	Kind            string   `yaml:"kind" json:"kind"`
	Threshold       *float64 `yaml:"threshold" json:"threshold,omitempty"`
	SmoothingWindow int      `yaml:"smoothing_window" json:"smoothing_window,omitempty"`
	Benchmark       string   `yaml:"benchmark" json:"benchmark,omitempty"`
}

// ParseScript decodes and validates a script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadScript reads and parses the script at path.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	s, err := ParseScript(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate checks tickers, dates and that every entry has a known kind and
// the parameters that kind needs.
func (s *Script) Validate() error {
	if len(s.Tickers) == 0 {
		return fmt.Errorf("%w: no tickers", ErrInvalidScript)
	}
	seen := make(map[string]bool, len(s.Tickers))
	for _, t := range s.Tickers {
		if t == "" || seen[t] {
			return fmt.Errorf("%w: empty or duplicate ticker %q", ErrInvalidScript, t)
		}
		seen[t] = true
	}

	from, to, err := s.dates()
	if err != nil {
		return err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return fmt.Errorf("%w: end_date before start_date", ErrInvalidScript)
	}

	kind, ok := objectiveKinds[s.Objective.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown objective kind %q", ErrInvalidScript, s.Objective.Kind)
	}
	if err := s.checkEntry("objective", s.Objective, kind.needs); err != nil {
		return err
	}
	for i, c := range s.Constraints {
		kind, ok := constraintKinds[c.Kind]
		if !ok {
			return fmt.Errorf("%w: unknown constraint kind %q", ErrInvalidScript, c.Kind)
		}
		if err := s.checkEntry(fmt.Sprintf("constraint %d", i), c, kind.needs); err != nil {
			return err
		}
	}
	return nil
}

func (s *Script) checkEntry(where string, e Entry, n needs) error {
	if n&needThreshold != 0 && e.Threshold == nil {
		return fmt.Errorf("%w: %s (%s) needs a threshold", ErrInvalidScript, where, e.Kind)
	}
	if n&needWindow != 0 && e.SmoothingWindow < 1 {
		return fmt.Errorf("%w: %s (%s) needs a smoothing_window of at least 1", ErrInvalidScript, where, e.Kind)
	}
	if n&needBenchmark != 0 && s.benchmarkOf(e) == "" {
		return fmt.Errorf("%w: %s (%s) needs a benchmark", ErrInvalidScript, where, e.Kind)
	}
	return nil
}

func (s *Script) benchmarkOf(e Entry) string {
	if e.Benchmark != "" {
		return e.Benchmark
	}
	return s.Benchmark
}

func (s *Script) dates() (from, to time.Time, err error) {
	if s.StartDate != "" {
		if from, err = time.Parse(historical.DateLayout, s.StartDate); err != nil {
			return from, to, fmt.Errorf("%w: start_date: %v", ErrInvalidScript, err)
		}
	}
	if s.EndDate != "" {
		if to, err = time.Parse(historical.DateLayout, s.EndDate); err != nil {
			return from, to, fmt.Errorf("%w: end_date: %v", ErrInvalidScript, err)
		}
	}
	return from, to, nil
}

// Request lists the market data the script needs. Benchmarks named "CPI"
// switch on the CPI series instead of a price column.
func (s *Script) Request() historical.Request {
	from, to, _ := s.dates()
	req := historical.Request{Tickers: s.Tickers, From: from, To: to}

	seen := make(map[string]bool)
	for _, t := range s.Tickers {
		seen[t] = true
	}
	add := func(b string) {
		switch {
		case b == "" || seen[b]:
		case b == historical.CPIColumn:
			req.IncludeCPI = true
		default:
			seen[b] = true
			req.Benchmarks = append(req.Benchmarks, b)
		}
	}
	if kind := objectiveKinds[s.Objective.Kind]; kind.needs&needBenchmark != 0 {
		add(s.benchmarkOf(s.Objective))
	}
	for _, c := range s.Constraints {
		if kind := constraintKinds[c.Kind]; kind.needs&needBenchmark != 0 {
			add(s.benchmarkOf(c))
		}
	}
	return req
}
