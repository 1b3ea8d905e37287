// Copyright (c) 2026 FieldServe. All rights reserved.

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, TokenCodec) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/nordventa/fieldserve/internal/platform/sec"
)

// # Configuration Schema

// Config holds all runtime configuration for the FieldServe API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// AppBaseURL is the public origin used to build password-reset links.
	AppBaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Cache (Redis) — login throttling and readiness checks.
	RedisURL string `env:"REDIS_URL,required,notEmpty"`

	// Independent signing secrets for the two bearer-token kinds.
	// Each must be at least 32 bytes; startup aborts otherwise.
	AccessTokenSecret  string `env:"AUTH_ACCESS_SECRET,required,notEmpty"`
	RefreshTokenSecret string `env:"AUTH_REFRESH_SECRET,required,notEmpty"`

	// Token lifetimes
	AccessTokenTTL  time.Duration `env:"AUTH_ACCESS_TTL"  envDefault:"1h"`
	RefreshTokenTTL time.Duration `env:"AUTH_REFRESH_TTL" envDefault:"720h"`

	// Brute-force lockout policy
	LockoutThreshold int           `env:"AUTH_LOCKOUT_THRESHOLD" envDefault:"5"`
	LockoutDuration  time.Duration `env:"AUTH_LOCKOUT_DURATION"  envDefault:"15m"`

	// Password reset token lifetime
	ResetTokenTTL time.Duration `env:"AUTH_RESET_TTL" envDefault:"1h"`

	// RotateRefreshTokens enables refresh-token rotation on every refresh
	// call. Disabled by default: rotation invalidates sessions on other
	// devices sharing the same refresh flow (multi-device trade-off).
	RotateRefreshTokens bool `env:"AUTH_ROTATE_REFRESH_TOKENS" envDefault:"false"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct and validates the
// security-critical fields.
//
// # Fail Fast
//
// Missing or too-short signing secrets abort process startup with a
// constructed error — they must never surface lazily per-request.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the semantic constraints that 'required' tags cannot express.
func (c *Config) Validate() error {
	if len(c.AccessTokenSecret) < sec.MinSecretLength {
		return fmt.Errorf("config: AUTH_ACCESS_SECRET must be at least %d bytes, got %d", sec.MinSecretLength, len(c.AccessTokenSecret))
	}
	if len(c.RefreshTokenSecret) < sec.MinSecretLength {
		return fmt.Errorf("config: AUTH_REFRESH_SECRET must be at least %d bytes, got %d", sec.MinSecretLength, len(c.RefreshTokenSecret))
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return fmt.Errorf("config: AUTH_ACCESS_SECRET and AUTH_REFRESH_SECRET must be distinct")
	}
	if c.LockoutThreshold < 1 {
		return fmt.Errorf("config: AUTH_LOCKOUT_THRESHOLD must be positive, got %d", c.LockoutThreshold)
	}
	if c.LockoutDuration <= 0 {
		return fmt.Errorf("config: AUTH_LOCKOUT_DURATION must be positive, got %s", c.LockoutDuration)
	}
	return nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
