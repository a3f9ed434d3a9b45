package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/investsim/internal/clientdata"
	"github.com/aristath/investsim/internal/clients/alphavantage"
	"github.com/aristath/investsim/internal/config"
	"github.com/aristath/investsim/internal/database"
	"github.com/aristath/investsim/internal/modules/historical"
	"github.com/aristath/investsim/internal/modules/report"
	"github.com/aristath/investsim/internal/reliability"
	"github.com/aristath/investsim/internal/scheduler"
	"github.com/aristath/investsim/internal/server"
	"github.com/aristath/investsim/internal/simulator"
	"github.com/aristath/investsim/internal/solver"
)

// app holds the wired dependencies shared by run and serve.
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	db        *database.DB
	cache     *clientdata.Repository
	client    *alphavantage.Client
	processor *historical.Processor
	store     *report.Store
	r2        *reliability.R2Client
	sim       *simulator.Simulator
}

func newApp(cfg *config.Config, log zerolog.Logger, save bool) (*app, error) {
	db, err := database.New(database.Config{
		Path:    cfg.CacheDBPath(),
		Profile: database.ProfileCache,
		Name:    database.ClientDataName,
	})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	a := &app{cfg: cfg, log: log, db: db}
	a.cache = clientdata.NewRepository(db.Conn())

	a.client = alphavantage.NewClient(cfg.AlphaVantageAPIKey, log)
	a.client.SetCacheStore(a.cache)
	a.processor = historical.NewProcessor(a.client, log)

	var uploader report.Uploader
	if cfg.R2.Enabled() {
		a.r2, err = reliability.NewR2Client(cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.SecretAccessKey, cfg.R2.BucketName, log)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create R2 client: %w", err)
		}
		uploader = a.r2
		log.Info().Str("bucket", cfg.R2.BucketName).Msg("R2 report upload enabled")
	}
	a.store = report.NewStore(cfg.ReportsDir(), uploader, log)

	solve := solver.NewSimplex(solver.Settings{
		Timeout: cfg.Solver.Timeout,
		MaxCuts: cfg.Solver.MaxCuts,
	}, log)

	var saver simulator.ReportStore
	if save {
		saver = a.store
	}
	a.sim = simulator.New(a.processor, solve, saver, log)
	return a, nil
}

// scheduler registers the background jobs enabled by configuration.
func (a *app) scheduler() (*scheduler.Scheduler, error) {
	s := scheduler.New(a.log)

	if err := s.AddJob("0 3 * * *", clientdata.NewCleanupJob(a.cache, a.db, a.log)); err != nil {
		return nil, err
	}
	if a.cfg.Schedule.Spec != "" {
		job := scheduler.NewSimulationJob(a.cfg.Schedule.Script, a.sim, 2*a.cfg.Solver.Timeout+time.Minute, a.log)
		if err := s.AddJob(a.cfg.Schedule.Spec, job); err != nil {
			return nil, err
		}
	}
	if a.r2 != nil {
		archives := reliability.NewReportArchiveService(a.r2, a.cfg.ReportsDir(), a.cfg.DataDir, a.log)
		job := reliability.NewArchiveJob(archives, a.cfg.DataDir, a.cfg.Schedule.ArchiveRetentionDays, a.log)
		if err := s.AddJob("30 3 * * *", job); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Close releases the cache database.
func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Error().Err(err).Msg("Failed to close cache database")
	}
}

// serveUntilSignal runs srv until SIGINT or SIGTERM, then shuts it down.
func serveUntilSignal(cmd *cobra.Command, srv *server.Server, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server stopped")
	return nil
}
