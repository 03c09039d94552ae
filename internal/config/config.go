// Package config loads process configuration from the environment.
// A .env file in the working directory is read first when present;
// variables already set in the environment win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Lock backends.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// Config is the full process configuration.
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Lock        LockConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Ledger      LedgerConfig
	Idempotency IdempotencyConfig
	Reconcile   ReconcileConfig
}

type AppConfig struct {
	Env      string
	LogLevel string
	Port     string
}

// Development reports whether the process runs in development mode.
func (c AppConfig) Development() bool {
	return c.Env == "development"
}

type DatabaseConfig struct {
	Backend  string
	URL      string
	MaxConns int
}

type LockConfig struct {
	Backend string
	TTL     time.Duration
	Wait    time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type LedgerConfig struct {
	// AutoApproveRule is the CEL expression granting auto-approval.
	AutoApproveRule string
	CASMaxAttempts  int
}

type IdempotencyConfig struct {
	Enabled bool
	TTL     time.Duration
}

type ReconcileConfig struct {
	Interval time.Duration
	Repair   bool
}

// Load reads configuration and validates it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Env:      getEnv("APP_ENV", "development"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
			Port:     getEnv("APP_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Backend:  strings.ToLower(getEnv("STORAGE_BACKEND", StoragePostgres)),
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt("DB_MAX_CONNS", 25),
		},
		Lock: LockConfig{
			Backend: strings.ToLower(getEnv("LOCK_BACKEND", LockLocal)),
			TTL:     getEnvDuration("LOCK_TTL", 30*time.Second),
			Wait:    getEnvDuration("LOCK_WAIT", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Ledger: LedgerConfig{
			AutoApproveRule: getEnv("AUTO_APPROVE_RULE", ""),
			CASMaxAttempts:  getEnvInt("CAS_MAX_ATTEMPTS", 5),
		},
		Idempotency: IdempotencyConfig{
			Enabled: getEnvBool("IDEMPOTENCY_ENABLED", false),
			TTL:     getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		},
		Reconcile: ReconcileConfig{
			Interval: getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),
			Repair:   getEnvBool("RECONCILE_REPAIR", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Backend {
	case StoragePostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.Database.Backend))
	}

	switch c.Lock.Backend {
	case LockLocal, LockRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown LOCK_BACKEND %q", c.Lock.Backend))
	}

	if c.JWT.Secret == "" && !c.App.Development() {
		errs = append(errs, errors.New("JWT_SECRET is required outside development"))
	}
	if c.Ledger.CASMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("CAS_MAX_ATTEMPTS must be positive, got %d", c.Ledger.CASMaxAttempts))
	}
	if c.Reconcile.Interval <= 0 {
		errs = append(errs, fmt.Errorf("RECONCILE_INTERVAL must be positive, got %s", c.Reconcile.Interval))
	}
	if c.Idempotency.Enabled && c.Database.Backend != StoragePostgres {
		errs = append(errs, errors.New("IDEMPOTENCY_ENABLED requires the postgres backend"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
