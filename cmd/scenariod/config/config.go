// Package config provides configuration parsing for scenariod.
//
// It handles both command-line flags and environment variables, with flags
// taking precedence over environment variables. Credentials (the PostgreSQL
// DSN and the demand API client id/secret) are accepted via environment
// variables only and are never logged.
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables
//  3. Default values
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gridpulse/resload/pkg/forecast"
	"github.com/gridpulse/resload/pkg/scenario"
)

// Config holds all scenariod configuration.
type Config struct {
	Listen    string
	LogFormat string
	LogLevel  string

	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Retention     int

	// PostgresDSN comes from PG_DSN only; it carries credentials.
	PostgresDSN   string
	ForecastTable string
	Locations     []string

	DemandBaseURL string
	DemandCurve   string
	// Token endpoint credentials come from DEMAND_TOKEN_URL,
	// DEMAND_CLIENT_ID and DEMAND_CLIENT_SECRET only.
	DemandTokenURL     string
	DemandClientID     string
	DemandClientSecret string

	Models          []string
	Interval        time.Duration
	MinOverlapHours int
	HTTPTimeout     time.Duration
	Attempts        int
	Targets         []string
	ExportDir       string
}

// ParseFlags parses command-line flags and environment variables into a
// Config and exits on validation failure.
func ParseFlags() *Config {
	cfg := &Config{}
	var models, locations, targets string

	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8084"), "HTTP listen address")

	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Result cache backend: memory or redis")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	flag.IntVar(&cfg.Retention, "retention", getEnvInt("RETENTION", 4), "Forecast runs retained per model")

	flag.StringVar(&cfg.ForecastTable, "forecast-table", getEnv("FORECAST_TABLE", "silver.metdesk_forecasts"), "Renewable forecast table name")
	flag.StringVar(&locations, "locations", getEnv("LOCATIONS", "de"), "Comma-separated forecast locations, summed when more than one")

	flag.StringVar(&cfg.DemandBaseURL, "demand-url", getEnv("DEMAND_URL", ""), "Demand API base URL (required)")
	flag.StringVar(&cfg.DemandCurve, "demand-curve", getEnv("DEMAND_CURVE", "de consumption ens"), "Demand curve name")

	flag.StringVar(&models, "models", getEnv("MODELS", strings.Join(forecast.ModelCodes(), ",")), "Comma-separated ensemble model codes")
	flag.DurationVar(&cfg.Interval, "interval", getEnvDuration("INTERVAL", 30*time.Minute), "Refresh check interval")
	flag.IntVar(&cfg.MinOverlapHours, "min-overlap", getEnvInt("MIN_OVERLAP_HOURS", 24), "Minimum demand/renewables overlap in hours")
	flag.DurationVar(&cfg.HTTPTimeout, "http-timeout", getEnvDuration("HTTP_TIMEOUT", 30*time.Second), "Upstream HTTP request timeout")
	flag.IntVar(&cfg.Attempts, "attempts", getEnvInt("ATTEMPTS", 3), "Attempts per upstream call, including the first")
	flag.StringVar(&targets, "targets", getEnv("TARGETS", "P10,P25,P50,P75,P90"), "Comma-separated percentile scenario targets")
	flag.StringVar(&cfg.ExportDir, "export-dir", getEnv("EXPORT_DIR", ""), "Directory for CSV exports after each refresh (empty disables)")

	flag.Parse()

	cfg.PostgresDSN = os.Getenv("PG_DSN")
	cfg.DemandTokenURL = os.Getenv("DEMAND_TOKEN_URL")
	cfg.DemandClientID = os.Getenv("DEMAND_CLIENT_ID")
	cfg.DemandClientSecret = os.Getenv("DEMAND_CLIENT_SECRET")

	cfg.Models = splitList(models)
	cfg.Locations = splitList(locations)
	cfg.Targets = splitList(targets)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	return cfg
}

// Validate checks the configuration invariants. Separate from ParseFlags so
// tests can exercise it without touching the flag package.
func (cfg *Config) Validate() error {
	if cfg.Storage != "memory" && cfg.Storage != "redis" {
		return fmt.Errorf("invalid storage backend %q (must be memory or redis)", cfg.Storage)
	}
	if cfg.Retention <= 0 {
		return fmt.Errorf("retention must be > 0, got %d", cfg.Retention)
	}
	if len(cfg.Models) == 0 {
		return fmt.Errorf("at least one model is required")
	}
	seenModels := make(map[string]bool, len(cfg.Models))
	for _, code := range cfg.Models {
		if _, err := forecast.ModelByCode(code); err != nil {
			return fmt.Errorf("unknown model %q (known: %s)", code, strings.Join(forecast.ModelCodes(), ", "))
		}
		// One refresh loop per model; a duplicate would compute the same
		// run twice and collide on metric registration.
		if seenModels[code] {
			return fmt.Errorf("duplicate model %q", code)
		}
		seenModels[code] = true
	}
	if len(cfg.Locations) == 0 {
		return fmt.Errorf("at least one location is required")
	}
	seenLocations := make(map[string]bool, len(cfg.Locations))
	for _, loc := range cfg.Locations {
		if seenLocations[loc] {
			return fmt.Errorf("duplicate location %q", loc)
		}
		seenLocations[loc] = true
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("interval must be > 0, got %v", cfg.Interval)
	}
	if cfg.MinOverlapHours < 1 {
		return fmt.Errorf("min-overlap must be >= 1 hour, got %d", cfg.MinOverlapHours)
	}
	if cfg.Attempts < 1 {
		return fmt.Errorf("attempts must be >= 1, got %d", cfg.Attempts)
	}
	if len(cfg.Targets) == 0 {
		return fmt.Errorf("at least one scenario target is required")
	}
	if _, err := cfg.Crossings(); err != nil {
		return fmt.Errorf("invalid targets: %w", err)
	}
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("PG_DSN environment variable is required")
	}
	if cfg.DemandBaseURL == "" {
		return fmt.Errorf("--demand-url is required")
	}
	if cfg.DemandTokenURL == "" || cfg.DemandClientID == "" || cfg.DemandClientSecret == "" {
		return fmt.Errorf("DEMAND_TOKEN_URL, DEMAND_CLIENT_ID and DEMAND_CLIENT_SECRET environment variables are required")
	}
	return nil
}

// Crossings resolves the configured targets to crossing definitions.
func (cfg *Config) Crossings() ([]scenario.Crossing, error) {
	return scenario.CrossingsForTargets(cfg.Targets)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
