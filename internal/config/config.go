// Package config loads the immutable service configuration from the
// environment. Nothing outside this package and cmd reads environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	defaultAddr            = ":8080"
	defaultAccessTTL       = 15 * time.Minute
	defaultRefreshTTLDays  = 7
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultRateLimitPerSec = 20
	defaultRateLimitBurst  = 40
)

// Config holds everything the service needs at boot. Treated as read-only
// after Load.
type Config struct {
	Addr        string
	DatabaseURL string

	JWTSecret      string
	Issuer         string
	AccessTokenTTL time.Duration
	RefreshTTL     time.Duration
	BcryptCost     int

	IdempotencyTTL time.Duration

	RateLimitPerSecond int
	RateLimitBurst     int

	DevMode bool
}

// Load reads configuration from environment variables and fails fast on
// missing required values.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:               defaultAddr,
		Issuer:             "qarzhy",
		AccessTokenTTL:     defaultAccessTTL,
		RefreshTTL:         time.Duration(defaultRefreshTTLDays) * 24 * time.Hour,
		BcryptCost:         bcrypt.DefaultCost,
		IdempotencyTTL:     defaultIdempotencyTTL,
		RateLimitPerSecond: defaultRateLimitPerSec,
		RateLimitBurst:     defaultRateLimitBurst,
	}

	if addr := os.Getenv("QARZHY_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	cfg.DatabaseURL = os.Getenv("QARZHY_PG_DSN")
	cfg.DevMode = os.Getenv("QARZHY_DEV_MODE") == "true"

	cfg.JWTSecret = os.Getenv("QARZHY_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("QARZHY_JWT_SECRET environment variable is required")
	}
	if !cfg.DevMode && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("QARZHY_PG_DSN environment variable is required outside dev mode")
	}

	if iss := os.Getenv("QARZHY_ISSUER"); iss != "" {
		cfg.Issuer = iss
	}

	var err error
	if cfg.AccessTokenTTL, err = durationVar("QARZHY_ACCESS_TTL", cfg.AccessTokenTTL); err != nil {
		return nil, err
	}
	if days, err := intVar("QARZHY_REFRESH_TTL_DAYS", defaultRefreshTTLDays); err != nil {
		return nil, err
	} else if days > 0 {
		cfg.RefreshTTL = time.Duration(days) * 24 * time.Hour
	}
	if cfg.IdempotencyTTL, err = durationVar("QARZHY_IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return nil, err
	}
	if cfg.BcryptCost, err = intVar("QARZHY_BCRYPT_COST", cfg.BcryptCost); err != nil {
		return nil, err
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("QARZHY_BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if cfg.RateLimitPerSecond, err = intVar("QARZHY_RATE_LIMIT_PER_SECOND", cfg.RateLimitPerSecond); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = intVar("QARZHY_RATE_LIMIT_BURST", cfg.RateLimitBurst); err != nil {
		return nil, err
	}

	return cfg, nil
}

func durationVar(name string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return d, nil
}

func intVar(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}
