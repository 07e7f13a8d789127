// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Scoring
	ScoringBudgetMS   int     // Overall per-request scoring deadline in milliseconds
	AdapterBudgetMS   int     // Per-adapter sub-deadline in milliseconds
	BatchWorkers      int     // Concurrent events per batch job
	BatchJobTTL       time.Duration
	DefaultModule     string  // Module used when the event context omits one
	MinSurvivingWeight float64 // Below this surviving weight, the combined score is degraded

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; empty disables tracing

	// Security
	RateLimitRPM int
}

// Defaults
const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultScoringBudgetMS = 300
	DefaultAdapterBudgetMS = 250
	DefaultBatchWorkers    = 8
	DefaultBatchJobTTL     = time.Hour
	DefaultModule          = "ecommerce"
	DefaultMinWeight       = 0.5
	DefaultRateLimit       = 600
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:        os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		ScoringBudgetMS:    int(getEnvInt64("SCORING_BUDGET_MS", DefaultScoringBudgetMS)),
		AdapterBudgetMS:    int(getEnvInt64("ADAPTER_BUDGET_MS", DefaultAdapterBudgetMS)),
		BatchWorkers:       int(getEnvInt64("BATCH_WORKERS", DefaultBatchWorkers)),
		BatchJobTTL:        getEnvDuration("BATCH_JOB_TTL", DefaultBatchJobTTL),
		DefaultModule:      getEnv("DEFAULT_MODULE", DefaultModule),
		MinSurvivingWeight: getEnvFloat("MIN_SURVIVING_WEIGHT", DefaultMinWeight),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPM:       int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and coherent
func (c *Config) Validate() error {
	if c.ScoringBudgetMS <= 0 {
		return fmt.Errorf("SCORING_BUDGET_MS must be positive")
	}
	if c.AdapterBudgetMS <= 0 {
		return fmt.Errorf("ADAPTER_BUDGET_MS must be positive")
	}
	if c.AdapterBudgetMS > c.ScoringBudgetMS {
		return fmt.Errorf("ADAPTER_BUDGET_MS (%d) exceeds SCORING_BUDGET_MS (%d)", c.AdapterBudgetMS, c.ScoringBudgetMS)
	}
	if c.BatchWorkers <= 0 {
		return fmt.Errorf("BATCH_WORKERS must be positive")
	}
	if c.MinSurvivingWeight < 0 || c.MinSurvivingWeight > 1 {
		return fmt.Errorf("MIN_SURVIVING_WEIGHT must be in [0, 1]")
	}
	return nil
}

// ScoringBudget returns the overall scoring deadline as a duration.
func (c *Config) ScoringBudget() time.Duration {
	return time.Duration(c.ScoringBudgetMS) * time.Millisecond
}

// AdapterBudget returns the per-adapter sub-deadline as a duration.
func (c *Config) AdapterBudget() time.Duration {
	return time.Duration(c.AdapterBudgetMS) * time.Millisecond
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
