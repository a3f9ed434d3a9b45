package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/investsim/internal/config"
	"github.com/aristath/investsim/internal/server"
	"github.com/aristath/investsim/internal/simulator"
	"github.com/aristath/investsim/pkg/logger"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "simulator",
		Short:         "Compose and solve portfolio allocation models",
		Version:       version,
		SilenceUsage:  true,
	}
	root.AddCommand(newRunCmd(), newServeCmd(), newKindsCmd())
	return root
}

// setup loads configuration and builds the logger shared by every command.
func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)
	return cfg, log, nil
}

func newRunCmd() *cobra.Command {
	var (
		scriptPath string
		noSave     bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Solve one model script and print its report",
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := simulator.LoadScript(scriptPath)
			if err != nil {
				return err
			}
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			if cfg.AlphaVantageAPIKey == "" {
				return errors.New("ALPHAVANTAGE_API_KEY is required to fetch market data")
			}

			a, err := newApp(cfg, log, !noSave)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := a.sim.Run(ctx, script)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res.Report)
		},
	}
	cmd.Flags().StringVarP(&scriptPath, "script", "s", "", "path of the YAML or JSON model script")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "print the report without storing it")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			if port, _ := cmd.Flags().GetInt("port"); port > 0 {
				cfg.Port = port
			}
			if cfg.AlphaVantageAPIKey == "" {
				log.Warn().Msg("ALPHAVANTAGE_API_KEY not set, market data requests will fail")
			}

			a, err := newApp(cfg, log, true)
			if err != nil {
				return err
			}
			defer a.Close()

			sched, err := a.scheduler()
			if err != nil {
				return err
			}

			server.Version = version
			srv := server.New(server.Config{
				Log:       log,
				Port:      cfg.Port,
				DevMode:   cfg.LogPretty,
				DataDir:   cfg.DataDir,
				Simulator: a.sim,
				Reports:   a.store,
				Market:    a.processor,
				Jobs:      sched,
				CacheDB:   a.db,
				Budget:    a.client,
			})

			sched.Start()
			defer sched.Stop()

			return serveUntilSignal(cmd, srv, log)
		},
	}
	cmd.Flags().IntP("port", "p", 0, "listen port (overrides PORT)")
	return cmd
}

func newKindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List objective and constraint kinds",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Objectives:\n  %s\n", strings.Join(simulator.ObjectiveKinds(), "\n  "))
			fmt.Fprintf(out, "Constraints:\n  %s\n", strings.Join(simulator.ConstraintKinds(), "\n  "))
		},
	}
}
