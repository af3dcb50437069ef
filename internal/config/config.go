// Package config loads server settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/and161185/panel-auth/internal/errs"
)

// MinBcryptCost is the lowest password hashing cost accepted in configuration.
const MinBcryptCost = 10

// Config holds all server settings.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"prod"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":4000"`
	GRPCAddr string `env:"GRPC_ADDR"`

	DatabaseURL string `env:"DATABASE_URL"`

	JWTSecret     string `env:"JWT_SECRET"`
	AccessTTLSec  int    `env:"ACCESS_TOKEN_TTL_SEC" envDefault:"900"`
	RefreshTTLSec int    `env:"REFRESH_TOKEN_TTL_SEC" envDefault:"604800"`
	BcryptCost    int    `env:"BCRYPT_COST" envDefault:"10"`

	RefreshMaxLivePerUser int `env:"REFRESH_MAX_LIVE_PER_USER" envDefault:"10"`
	RefreshScanLimit      int `env:"REFRESH_SCAN_LIMIT" envDefault:"1000"`

	LoginMaxFails int           `env:"LOGIN_MAX_FAILS" envDefault:"5"`
	LoginWindow   time.Duration `env:"LOGIN_WINDOW" envDefault:"15m"`
	LoginBlockFor time.Duration `env:"LOGIN_BLOCK_FOR" envDefault:"15m"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// Load reads .env (if present), parses the environment and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadStore is Load for tools that only need the database settings.
func LoadStore() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrConfiguration, err)
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%w: DATABASE_URL is required", errs.ErrConfiguration)
	}
	return cfg, nil
}

// Validate checks required settings and ranges.
func (c *Config) Validate() error {
	switch {
	case c.JWTSecret == "":
		return fmt.Errorf("%w: JWT_SECRET is required", errs.ErrConfiguration)
	case c.DatabaseURL == "":
		return fmt.Errorf("%w: DATABASE_URL is required", errs.ErrConfiguration)
	case c.AccessTTLSec <= 0 || c.RefreshTTLSec <= 0:
		return fmt.Errorf("%w: token lifetimes must be positive", errs.ErrConfiguration)
	case c.BcryptCost < MinBcryptCost:
		return fmt.Errorf("%w: BCRYPT_COST must be at least %d", errs.ErrConfiguration, MinBcryptCost)
	case c.RefreshMaxLivePerUser < 1 || c.RefreshScanLimit < 1:
		return fmt.Errorf("%w: refresh limits must be positive", errs.ErrConfiguration)
	case c.LoginMaxFails < 0:
		return fmt.Errorf("%w: LOGIN_MAX_FAILS must not be negative", errs.ErrConfiguration)
	}
	return nil
}

// Dev reports whether development logging is wanted.
func (c *Config) Dev() bool { return c.AppEnv == "dev" }

// AccessTTL is the access token lifetime.
func (c *Config) AccessTTL() time.Duration { return time.Duration(c.AccessTTLSec) * time.Second }

// RefreshTTL is the refresh token lifetime.
func (c *Config) RefreshTTL() time.Duration { return time.Duration(c.RefreshTTLSec) * time.Second }

// LimiterEnabled reports whether login rate limiting is on.
func (c *Config) LimiterEnabled() bool { return c.LoginMaxFails > 0 }
