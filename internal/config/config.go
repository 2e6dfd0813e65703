package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds application runtime configuration.
type Config struct {
	Env                      string
	HTTPPort                 string
	DatabaseURL              string
	StoreDriver              string
	DefaultCurrency          string
	JWTSecret                string
	AccessTokenTTL           time.Duration
	IdempotencyTTL           time.Duration
	IdempotencyPruneInterval time.Duration
	LockTimeout              time.Duration
	VoidAllowPaidCredit      bool
	SeedDemoData             bool
	SeedManagerPassword      string
	SeedCashierPassword      string
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
	IdleTimeout              time.Duration
	ShutdownTimeout          time.Duration
	RequestTimeout           time.Duration
}

// Load reads environment variables and .env (if present).
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:                      getEnv("APP_ENV", "development"),
		HTTPPort:                 getEnv("HTTP_PORT", "8080"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		StoreDriver:              strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DefaultCurrency:          getEnv("CURRENCY_CODE", "USD"),
		JWTSecret:                os.Getenv("JWT_SECRET"),
		AccessTokenTTL:           getDuration("ACCESS_TOKEN_TTL", 12*time.Hour),
		IdempotencyTTL:           getDuration("IDEMPOTENCY_TTL", 60*time.Second),
		IdempotencyPruneInterval: getDuration("IDEMPOTENCY_PRUNE_INTERVAL", time.Minute),
		LockTimeout:              getDuration("DB_LOCK_TIMEOUT", 5*time.Second),
		VoidAllowPaidCredit:      getBool("VOID_ALLOW_PAID_CREDIT", true),
		SeedDemoData:             getBool("SEED_DEMO_DATA", false),
		SeedManagerPassword:      getEnv("SEED_MANAGER_PASSWORD", "manager123"),
		SeedCashierPassword:      getEnv("SEED_CASHIER_PASSWORD", "cashier123"),
		ReadTimeout:              getDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:             getDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:              getDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:          getDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		RequestTimeout:           getDuration("HTTP_REQUEST_TIMEOUT", 60*time.Second),
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return cfg, errors.New("DATABASE_URL is required")
		}
	case StoreDriverMemory:
		// Nothing survives a restart, so the demo data is always loaded.
		cfg.SeedDemoData = true
	default:
		return cfg, errors.New("STORE_DRIVER must be postgres or memory")
	}
	if cfg.JWTSecret == "" {
		return cfg, errors.New("JWT_SECRET is required")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be positive")
	}
	if cfg.LockTimeout >= cfg.IdempotencyTTL {
		return cfg, errors.New("DB_LOCK_TIMEOUT must be shorter than IDEMPOTENCY_TTL")
	}
	if cfg.RequestTimeout <= cfg.LockTimeout {
		return cfg, errors.New("HTTP_REQUEST_TIMEOUT must be longer than DB_LOCK_TIMEOUT")
	}
	return cfg, nil
}

// InFlightKeyTTL is how long an unfinished sale keeps its idempotency key.
// The request context is cancelled at RequestTimeout, so the attempt cannot
// still be running once this passes.
func (c Config) InFlightKeyTTL() time.Duration {
	return c.RequestTimeout + c.LockTimeout
}

func getEnv(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		// Support seconds as integer without suffix.
		if secs, convErr := strconv.Atoi(val); convErr == nil {
			return time.Duration(secs) * time.Second
		}
		return fallback
	}
	return d
}

func getBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}
