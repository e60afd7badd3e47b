// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration. All values are loaded once at
// startup and validated before any run begins; nothing here is mutated
// afterwards.
type Config struct {
	DataDir  string // Base directory for databases (snapshots.db, history/)
	LogLevel string
	Port     int
	DevMode  bool

	// Universe and allocation parameters
	Universe      []string // Ordered instrument identifiers
	RiskAversion  float64  // λ, weight of the variance penalty
	MinWeight     float64  // Per-instrument lower bound
	MaxWeight     float64  // Per-instrument upper bound
	SolverMaxIter int      // Iteration budget for the allocation solve

	// Forecasting parameters
	MinHistory            int     // Minimum trading observations per instrument
	ChangepointPriorScale float64 // Flexibility of trend changes
	SeasonalityPriorScale float64 // Strength of seasonality
	HolidayPriorScale     float64 // Strength of holiday effects
	IntervalWidth         float64 // Coverage of the uncertainty interval (0-1)

	// Return estimation parameters
	CovWindow    int // Trailing window of historical returns (trading days)
	MinWindowObs int // Minimum aligned observations for covariance
	MinUniverse  int // Minimum surviving instruments per run

	// Scheduling
	DailyRunSchedule string // Cron expression for the daily run
	BackupSchedule   string // Cron expression for backups (ignored if no bucket)

	// Backup (optional; disabled when Bucket is empty)
	BackupBucket    string
	BackupEndpoint  string // S3-compatible endpoint URL (empty for AWS)
	BackupRegion    string
	BackupAccessKey string
	BackupSecretKey string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data dir: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnvAsInt("PORT", 8010),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		Universe:      getEnvAsList("UNIVERSE", defaultUniverse),
		RiskAversion:  getEnvAsFloat("RISK_AVERSION", 3.0),
		MinWeight:     getEnvAsFloat("MIN_WEIGHT", 0.05),
		MaxWeight:     getEnvAsFloat("MAX_WEIGHT", 0.30),
		SolverMaxIter: getEnvAsInt("SOLVER_MAX_ITER", 20000),

		MinHistory:            getEnvAsInt("MIN_HISTORY", 60),
		ChangepointPriorScale: getEnvAsFloat("CHANGEPOINT_PRIOR_SCALE", 0.05),
		SeasonalityPriorScale: getEnvAsFloat("SEASONALITY_PRIOR_SCALE", 10),
		HolidayPriorScale:     getEnvAsFloat("HOLIDAY_PRIOR_SCALE", 10),
		IntervalWidth:         getEnvAsFloat("INTERVAL_WIDTH", 0.95),

		CovWindow:    getEnvAsInt("COV_WINDOW", 252),
		MinWindowObs: getEnvAsInt("MIN_WINDOW_OBS", 30),
		MinUniverse:  getEnvAsInt("MIN_UNIVERSE", 2),

		DailyRunSchedule: getEnv("DAILY_RUN_SCHEDULE", "0 0 18 * * MON-FRI"),
		BackupSchedule:   getEnv("BACKUP_SCHEDULE", "0 30 19 * * *"),

		BackupBucket:    getEnv("BACKUP_BUCKET", ""),
		BackupEndpoint:  getEnv("BACKUP_ENDPOINT", ""),
		BackupRegion:    getEnv("BACKUP_REGION", "auto"),
		BackupAccessKey: getEnv("BACKUP_ACCESS_KEY", ""),
		BackupSecretKey: getEnv("BACKUP_SECRET_KEY", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultUniverse mirrors the NSE liquid-stock set the engine was first
// deployed against. Override with the UNIVERSE env var.
var defaultUniverse = []string{
	"RELIANCE.NS", "TCS.NS", "HDFCBANK.NS", "INFY.NS", "ICICIBANK.NS",
	"HINDUNILVR.NS", "ITC.NS", "SBIN.NS", "BHARTIARTL.NS", "LT.NS",
}

// Validate checks configuration invariants. It runs once at startup so a bad
// configuration is rejected before any forecasting begins, not mid-run.
func (c *Config) Validate() error {
	var errs []string

	if c.DataDir == "" {
		errs = append(errs, "DATA_DIR is required")
	}
	if len(c.Universe) == 0 {
		errs = append(errs, "UNIVERSE cannot be empty")
	}
	if c.RiskAversion < 0 {
		errs = append(errs, "RISK_AVERSION must be >= 0")
	}
	if c.MinWeight < 0 || c.MinWeight > 1 {
		errs = append(errs, "MIN_WEIGHT must be between 0 and 1")
	}
	if c.MaxWeight < 0 || c.MaxWeight > 1 {
		errs = append(errs, "MAX_WEIGHT must be between 0 and 1")
	}
	if c.MinWeight > c.MaxWeight {
		errs = append(errs, "MIN_WEIGHT cannot exceed MAX_WEIGHT")
	}
	if n := len(c.Universe); n > 0 {
		if float64(n)*c.MinWeight > 1 {
			errs = append(errs, fmt.Sprintf(
				"impossible minimum allocation: %d instruments × %.2f = %.2f > 1.0",
				n, c.MinWeight, float64(n)*c.MinWeight))
		}
		if float64(n)*c.MaxWeight < 1 {
			errs = append(errs, fmt.Sprintf(
				"impossible maximum allocation: %d instruments × %.2f = %.2f < 1.0",
				n, c.MaxWeight, float64(n)*c.MaxWeight))
		}
	}
	if c.MinHistory < 2 {
		errs = append(errs, "MIN_HISTORY must be at least 2")
	}
	if c.CovWindow < 2 {
		errs = append(errs, "COV_WINDOW must be at least 2")
	}
	if c.MinWindowObs < 2 {
		errs = append(errs, "MIN_WINDOW_OBS must be at least 2")
	}
	if c.MinUniverse < 2 {
		errs = append(errs, "MIN_UNIVERSE must be at least 2")
	}
	if c.SolverMaxIter < 1 {
		errs = append(errs, "SOLVER_MAX_ITER must be positive")
	}
	if c.IntervalWidth <= 0 || c.IntervalWidth >= 1 {
		errs = append(errs, "INTERVAL_WIDTH must be in (0, 1)")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errs, "\n- "))
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
