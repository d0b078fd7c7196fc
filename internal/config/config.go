// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir           string // Base directory for all databases, always absolute
	Port              int
	LogLevel          string
	DevMode           bool
	CORSOrigins       []string
	IdempotencyTTL    time.Duration
	IdempotencySweep  string // cron schedule for the TTL sweep
	RequestTimeout    time.Duration
	DefaultPolicyPack string // pack applied when a request names none; empty means defaults only
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("REBALANCER_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:           absDataDir,
		Port:              getEnvAsInt("GO_PORT", 8001),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		CORSOrigins:       []string{getEnv("CORS_ORIGIN", "http://localhost:3000")},
		IdempotencyTTL:    getEnvAsDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		IdempotencySweep:  getEnv("IDEMPOTENCY_SWEEP_SCHEDULE", "@hourly"),
		RequestTimeout:    getEnvAsDuration("REQUEST_TIMEOUT", 60*time.Second),
		DefaultPolicyPack: getEnv("DEFAULT_POLICY_PACK", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration for obvious misconfiguration
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.IdempotencyTTL <= 0 {
		return fmt.Errorf("invalid idempotency TTL: %s", c.IdempotencyTTL)
	}
	return nil
}

// HistoryDBPath returns the path of the run-history database
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// CacheDBPath returns the path of the idempotency cache database
func (c *Config) CacheDBPath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

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
