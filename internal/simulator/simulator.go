package simulator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/investsim/internal/modules/historical"
	"github.com/aristath/investsim/internal/modules/optimization"
	"github.com/aristath/investsim/internal/modules/report"
)

// MarketData produces the price table a script needs.
type MarketData interface {
	Refresh(ctx context.Context, req historical.Request) (*historical.Table, error)
}

// ReportStore persists reports and returns the stored name.
type ReportStore interface {
	Save(ctx context.Context, r *report.Report) (string, error)
}

// Result is the outcome of one run.
type Result struct {
	Report *report.Report
	// File is the stored report name, empty when no store is configured.
	File string
	Took time.Duration
}

// Simulator runs scripts end to end.
type Simulator struct {
	data   MarketData
	solver optimization.Solver
	store  ReportStore
	log    zerolog.Logger
}

// New creates a simulator. store may be nil, in which case reports are only
// returned.
func New(data MarketData, solver optimization.Solver, store ReportStore, log zerolog.Logger) *Simulator {
	return &Simulator{
		data:   data,
		solver: solver,
		store:  store,
		log:    log.With().Str("component", "simulator").Logger(),
	}
}

// Run fetches the market data the script needs and runs it.
func (s *Simulator) Run(ctx context.Context, script *Script) (*Result, error) {
	if err := script.Validate(); err != nil {
		return nil, err
	}
	if s.data == nil {
		return nil, fmt.Errorf("no market data source configured")
	}
	table, err := s.data.Refresh(ctx, script.Request())
	if err != nil {
		return nil, fmt.Errorf("failed to load market data: %w", err)
	}
	return s.RunOnTable(ctx, script, table)
}

// RunOnTable builds a fresh model over table, solves it and stores the report.
// Infeasible or unbounded problems still produce a report.
func (s *Simulator) RunOnTable(ctx context.Context, script *Script, table *historical.Table) (*Result, error) {
	start := time.Now()
	first, last := table.Span()
	s.log.Info().
		Str("script", script.Name).
		Strs("tickers", script.Tickers).
		Str("objective", script.Objective.Kind).
		Int("constraints", len(script.Constraints)).
		Int("days", table.Len()).
		Time("from", first).
		Time("to", last).
		Msg("Running simulation")

	m := optimization.NewModel(s.log)
	if err := script.Apply(m, table); err != nil {
		return nil, err
	}

	outcome, err := m.Optimize(ctx, s.solver)
	if err != nil {
		return nil, err
	}
	if !outcome.Status.Solved() {
		s.log.Warn().Str("status", string(outcome.Status)).Msg("Simulation did not reach an optimum")
	}

	r, err := report.Generate(m)
	if err != nil {
		return nil, err
	}

	res := &Result{Report: r}
	if s.store != nil {
		name, err := s.store.Save(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("failed to store report: %w", err)
		}
		res.File = name
	}
	res.Took = time.Since(start)

	s.log.Info().
		Str("status", r.Status).
		Str("file", res.File).
		Dur("took", res.Took).
		Msg("Simulation finished")
	return res, nil
}
