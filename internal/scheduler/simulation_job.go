package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/investsim/internal/simulator"
)

// SimulationRunner runs one script.
type SimulationRunner interface {
	Run(ctx context.Context, script *simulator.Script) (*simulator.Result, error)
}

// SimulationJob reruns a script file against fresh market data. The file is
// read on every run so edits apply without a restart.
type SimulationJob struct {
	path    string
	runner  SimulationRunner
	timeout time.Duration
	log     zerolog.Logger
}

// NewSimulationJob creates a job for the script at path.
func NewSimulationJob(path string, runner SimulationRunner, timeout time.Duration, log zerolog.Logger) *SimulationJob {
	return &SimulationJob{
		path:    path,
		runner:  runner,
		timeout: timeout,
		log:     log.With().Str("job", "scheduled_simulation").Logger(),
	}
}

// Name returns the job name
func (j *SimulationJob) Name() string {
	return "scheduled_simulation"
}

// Run executes the scheduled simulation
func (j *SimulationJob) Run() error {
	script, err := simulator.LoadScript(j.path)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	res, err := j.runner.Run(ctx, script)
	if err != nil {
		return err
	}
	j.log.Info().
		Str("script", j.path).
		Str("status", res.Report.Status).
		Str("report", res.File).
		Msg("Scheduled simulation stored")
	return nil
}
