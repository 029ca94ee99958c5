package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries all process-wide settings. It is loaded once at startup and
// handed to constructors explicitly; nothing reads the environment after that.
type Config struct {
	ListenAddr  string `env:"IDENTRA_LISTEN_ADDR" envDefault:":8080"`
	DatabaseDSN string `env:"IDENTRA_PG_DSN"`

	// TokenSecret signs both session and elevated tokens. Rotating it
	// invalidates every outstanding token.
	TokenSecret string        `env:"IDENTRA_TOKEN_SECRET"`
	SessionTTL  time.Duration `env:"IDENTRA_SESSION_TTL" envDefault:"24h"`
	ElevatedTTL time.Duration `env:"IDENTRA_ELEVATED_TTL" envDefault:"15m"`

	LoginRatePerSecond int   `env:"IDENTRA_LOGIN_RATE_PER_SEC" envDefault:"5"`
	LoginRateBurst     int   `env:"IDENTRA_LOGIN_RATE_BURST" envDefault:"10"`
	MaxBodyBytes       int64 `env:"IDENTRA_MAX_BODY_BYTES" envDefault:"1048576"`
}

// Load parses configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the auth core cannot operate with.
func (c Config) Validate() error {
	if c.DatabaseDSN == "" {
		return errors.New("config: IDENTRA_PG_DSN is required")
	}
	if c.TokenSecret == "" {
		return errors.New("config: IDENTRA_TOKEN_SECRET is required")
	}
	if c.SessionTTL <= 0 {
		return errors.New("config: session TTL must be positive")
	}
	if c.ElevatedTTL <= 0 {
		return errors.New("config: elevated TTL must be positive")
	}
	return nil
}
