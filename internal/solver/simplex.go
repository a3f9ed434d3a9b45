package solver

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/investsim/internal/expr"
)

// Settings tune the simplex backend.
type Settings struct {
	// Tolerance is handed to gonum's simplex.
	Tolerance float64
	// MaxCuts bounds the number of cutting planes added for smooth atoms.
	MaxCuts int
	// CutTolerance is the relative gap f(x) - t accepted as converged.
	CutTolerance float64
	// Timeout bounds a whole solve. Zero means no limit beyond the caller's context.
	Timeout time.Duration
	// MaxConcurrent bounds the simplex runs in flight, abandoned ones included.
	MaxConcurrent int
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		Tolerance:     1e-10,
		MaxCuts:       500,
		CutTolerance:  1e-8,
		Timeout:       30 * time.Second,
		MaxConcurrent: runtime.NumCPU(),
	}
}

// Simplex solves convex problems by lowering them to linear programs.
type Simplex struct {
	settings Settings
	slots    chan struct{}
	// abandoned counts runs that timed out and are still burning CPU.
	abandoned atomic.Int64
	log       zerolog.Logger
}

// NewSimplex creates a solver. Zero fields of settings take their defaults.
func NewSimplex(settings Settings, log zerolog.Logger) *Simplex {
	def := DefaultSettings()
	if settings.Tolerance <= 0 {
		settings.Tolerance = def.Tolerance
	}
	if settings.MaxCuts <= 0 {
		settings.MaxCuts = def.MaxCuts
	}
	if settings.CutTolerance <= 0 {
		settings.CutTolerance = def.CutTolerance
	}
	if settings.MaxConcurrent <= 0 {
		settings.MaxConcurrent = def.MaxConcurrent
	}
	return &Simplex{
		settings: settings,
		slots:    make(chan struct{}, settings.MaxConcurrent),
		log:      log.With().Str("component", "simplex_solver").Logger(),
	}
}

// Solve optimizes goal subject to relations. Infeasible and unbounded problems
// are reported through Result.Status; errors are reserved for problems that
// break the convexity rules and for cancellation. On success the variables
// referenced by the problem carry their optimal values.
func (s *Simplex) Solve(ctx context.Context, goal expr.Goal, relations []*expr.Relation) (*Result, error) {
	start := time.Now()
	prog, err := expr.Lower(goal, relations)
	if err != nil {
		return nil, fmt.Errorf("failed to lower problem: %w", err)
	}

	if s.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.Timeout)
		defer cancel()
	}

	rows := append([]expr.Row(nil), prog.Rows...)
	res := &Result{Duals: make(map[*expr.Relation][]float64, len(relations))}
	for _, r := range relations {
		res.Duals[r] = make([]float64, r.Len())
	}

	var (
		program *linearProgram
		sol     lpSolution
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("solve interrupted after %d iterations: %w", res.Iterations, err)
		}

		var status Status
		program, status = buildLP(prog.Objective, rows, s.settings.Tolerance)
		if status != StatusOptimal {
			return s.unsolved(res, status, goal, start), nil
		}
		sol, err = s.solveWithContext(ctx, program)
		if err != nil {
			return nil, err
		}
		res.Iterations++
		if !sol.status.Solved() {
			if sol.status == StatusError {
				s.log.Warn().Err(sol.err).Int("iteration", res.Iterations).Msg("Simplex failed")
			}
			return s.unsolved(res, sol.status, goal, start), nil
		}

		val := valueOf(sol.x)
		added := 0
		for _, atom := range prog.Smooth {
			gap, f := atom.Gap(val)
			if gap > s.settings.CutTolerance*(1+math.Abs(f)) {
				rows = append(rows, atom.Cut(val))
				added++
			}
		}
		if added == 0 {
			res.Status = StatusOptimal
			break
		}
		res.Cuts += added
		if res.Cuts >= s.settings.MaxCuts {
			s.log.Warn().
				Int("cuts", res.Cuts).
				Msg("Cutting plane limit reached, returning approximate solution")
			res.Status = StatusOptimalInaccurate
			break
		}
	}

	assign(prog, sol.x)
	s.fillDuals(res, program, rows)

	if v, ok := goal.Value(); ok {
		res.Value = v
	} else {
		res.Value = math.NaN()
	}
	res.Duration = time.Since(start)

	s.log.Debug().
		Str("status", string(res.Status)).
		Float64("value", res.Value).
		Int("iterations", res.Iterations).
		Int("cuts", res.Cuts).
		Dur("duration", res.Duration).
		Msg("Problem solved")
	return res, nil
}

func (s *Simplex) unsolved(res *Result, status Status, goal expr.Goal, start time.Time) *Result {
	res.Status = status
	res.Value = unsolvedValue(status, goal.Sense)
	res.Duals = nil
	res.Duration = time.Since(start)
	s.log.Info().Str("status", string(status)).Msg("Problem has no solution")
	return res
}

func (s *Simplex) solveWithContext(ctx context.Context, p *linearProgram) (lpSolution, error) {
	return s.run(ctx, func() lpSolution { return p.solve(s.settings.Tolerance) })
}

const (
	runPending int32 = iota
	runFinished
	runAbandoned
)

// run executes solve on a worker slot, giving up when ctx is done. gonum
// cannot be interrupted, so an abandoned run keeps its slot until it returns
// and new solves wait for a free slot instead of piling up.
func (s *Simplex) run(ctx context.Context, solve func() lpSolution) (lpSolution, error) {
	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return lpSolution{}, fmt.Errorf("no free solver slot (%d abandoned runs): %w", s.abandoned.Load(), ctx.Err())
	}

	var state atomic.Int32
	done := make(chan lpSolution, 1)
	go func() {
		defer func() { <-s.slots }()
		done <- solve()
		if !state.CompareAndSwap(runPending, runFinished) {
			n := s.abandoned.Add(-1)
			s.log.Debug().Int64("abandoned", n).Msg("Abandoned simplex run finished")
		}
	}()

	select {
	case sol := <-done:
		return sol, nil
	case <-ctx.Done():
		if !state.CompareAndSwap(runPending, runAbandoned) {
			return <-done, nil
		}
		n := s.abandoned.Add(1)
		s.log.Warn().
			Int64("abandoned", n).
			Int("max_concurrent", s.settings.MaxConcurrent).
			Msg("Simplex run abandoned, it keeps its slot until it returns")
		return lpSolution{}, fmt.Errorf("simplex did not finish: %w", ctx.Err())
	}
}

func (s *Simplex) fillDuals(res *Result, p *linearProgram, rows []expr.Row) {
	lambda, nu, err := p.duals(s.settings.Tolerance)
	if err != nil {
		s.log.Warn().Err(err).Msg("Could not recover dual values")
		for _, d := range res.Duals {
			for i := range d {
				d[i] = math.NaN()
			}
		}
		return
	}
	set := func(ri int, v float64) {
		r := rows[ri]
		if r.Owner == nil {
			return
		}
		if d, ok := res.Duals[r.Owner]; ok {
			d[r.Element] = v
		}
	}
	for i, ri := range p.ineq {
		set(ri, lambda[i])
	}
	for i, ri := range p.eq {
		set(ri, nu[i])
	}
}

func valueOf(x map[expr.Column]float64) func(expr.Column) float64 {
	return func(c expr.Column) float64 { return x[c] }
}

// assign writes solution values to every variable the program references.
// Columns missing from the solution were pinned at zero.
func assign(prog *expr.Program, x map[expr.Column]float64) {
	values := make(map[*expr.Variable][]float64)
	for _, c := range prog.Columns() {
		v, ok := values[c.Var]
		if !ok {
			v = make([]float64, c.Var.Size())
			values[c.Var] = v
		}
		v[c.Index] = x[c]
	}
	for v, vals := range values {
		v.Assign(vals)
	}
}
