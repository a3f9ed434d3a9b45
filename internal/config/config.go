// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	DataDir            string // Base directory for the cache database and reports (always absolute)
	AlphaVantageAPIKey string
	LogLevel           string
	LogPretty          bool
	Port               int
	Solver             SolverConfig
	Schedule           ScheduleConfig
	R2                 R2Config
}

// SolverConfig bounds each optimization.
type SolverConfig struct {
	Timeout time.Duration
	MaxCuts int
}

// ScheduleConfig configures periodic re-optimization in serve mode. An empty
// Spec disables it.
type ScheduleConfig struct {
	Spec   string // cron expression, e.g. "0 18 * * 1-5"
	Script string // path of the model script to run
	// ArchiveRetentionDays bounds how long report archives stay in R2.
	ArchiveRetentionDays int
}

// R2Config holds Cloudflare R2 credentials. Upload is disabled unless all
// fields are set.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
}

// Enabled reports whether every credential is present.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" && c.BucketName != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("INVESTSIM_DATA_DIR", "data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:            absDataDir,
		AlphaVantageAPIKey: getEnv("ALPHAVANTAGE_API_KEY", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogPretty:          getEnvAsBool("LOG_PRETTY", false),
		Port:               getEnvAsInt("PORT", 8080),
		Solver: SolverConfig{
			Timeout: getEnvAsDuration("SOLVER_TIMEOUT", 30*time.Second),
			MaxCuts: getEnvAsInt("SOLVER_MAX_CUTS", 500),
		},
		Schedule: ScheduleConfig{
			Spec:                 getEnv("SCHEDULE", ""),
			Script:               getEnv("SCHEDULE_SCRIPT", ""),
			ArchiveRetentionDays: getEnvAsInt("ARCHIVE_RETENTION_DAYS", 30),
		},
		R2: R2Config{
			AccountID:       getEnv("R2_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			BucketName:      getEnv("R2_BUCKET_NAME", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReportsDir is where reports are written.
func (c *Config) ReportsDir() string {
	return filepath.Join(c.DataDir, "reports")
}

// CacheDBPath is the API response cache database.
func (c *Config) CacheDBPath() string {
	return filepath.Join(c.DataDir, "client_data.db")
}

// Validate checks that the configuration is usable. The API key is checked
// where market data is actually fetched, so offline runs need none.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.Solver.Timeout <= 0 {
		return fmt.Errorf("SOLVER_TIMEOUT must be positive, got %s", c.Solver.Timeout)
	}
	if c.Solver.MaxCuts <= 0 {
		return fmt.Errorf("SOLVER_MAX_CUTS must be positive, got %d", c.Solver.MaxCuts)
	}
	if c.Schedule.Spec != "" {
		if _, err := cron.ParseStandard(c.Schedule.Spec); err != nil {
			return fmt.Errorf("invalid SCHEDULE %q: %w", c.Schedule.Spec, err)
		}
		if c.Schedule.Script == "" {
			return fmt.Errorf("SCHEDULE requires SCHEDULE_SCRIPT")
		}
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
