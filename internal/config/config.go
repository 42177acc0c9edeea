package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/devicekeep/server/internal/auth"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	Port        string `env:"PORT" envDefault:"8080"`

	AccessTokenSecret     string `env:"ACCESS_TOKEN_SECRET"`
	RefreshTokenSecret    string `env:"REFRESH_TOKEN_SECRET"`
	AccessTokenExpiresIn  string `env:"ACCESS_TOKEN_EXPIRES_IN" envDefault:"15m"`
	RefreshTokenExpiresIn string `env:"REFRESH_TOKEN_EXPIRES_IN" envDefault:"30d"`

	BcryptCost        int    `env:"BCRYPT_COST" envDefault:"10"`
	LoginMaxAttempts  int    `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginLockDuration string `env:"LOGIN_LOCK_DURATION" envDefault:"15m"`

	TokenSweepInterval string `env:"TOKEN_SWEEP_INTERVAL" envDefault:"1h"`

	DevMode   bool   `env:"DEV_MODE" envDefault:"false"`
	SentryDSN string `env:"SENTRY_DSN"`
	AppEnv    string `env:"APP_ENV" envDefault:"development"`

	// derived during Load
	lockDuration  time.Duration
	sweepInterval time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL != "" {
		log.Printf("DB connect: %s", describeDatabaseURL(cfg.DatabaseURL))
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	if c.DatabaseURL == "" && !c.DevMode {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if c.AccessTokenSecret == "" {
		return errors.New("ACCESS_TOKEN_SECRET environment variable is required")
	}
	if c.RefreshTokenSecret == "" {
		return errors.New("REFRESH_TOKEN_SECRET environment variable is required")
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	if _, err := auth.ExpirySeconds(c.AccessTokenExpiresIn); err != nil {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRES_IN: %w", err)
	}
	if _, err := auth.ExpirySeconds(c.RefreshTokenExpiresIn); err != nil {
		return fmt.Errorf("REFRESH_TOKEN_EXPIRES_IN: %w", err)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}
	if c.LoginMaxAttempts < 1 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must be positive, got %d", c.LoginMaxAttempts)
	}

	lockMs, err := auth.ParseExpiry(c.LoginLockDuration)
	if err != nil {
		return fmt.Errorf("LOGIN_LOCK_DURATION: %w", err)
	}
	c.lockDuration = time.Duration(lockMs) * time.Millisecond

	sweepMs, err := auth.ParseExpiry(c.TokenSweepInterval)
	if err != nil {
		return fmt.Errorf("TOKEN_SWEEP_INTERVAL: %w", err)
	}
	c.sweepInterval = time.Duration(sweepMs) * time.Millisecond
	return nil
}

// TokenConfig returns the signing configuration for the JWT service
func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		AccessSecret:     c.AccessTokenSecret,
		RefreshSecret:    c.RefreshTokenSecret,
		AccessExpiresIn:  c.AccessTokenExpiresIn,
		RefreshExpiresIn: c.RefreshTokenExpiresIn,
	}
}

// LockoutPolicy returns the failed-login policy
func (c *Config) LockoutPolicy() auth.LockoutPolicy {
	return auth.LockoutPolicy{
		MaxFailedAttempts: c.LoginMaxAttempts,
		LockDuration:      c.lockDuration,
	}
}

// SweepInterval is how often expired device tokens are purged
func (c *Config) SweepInterval() time.Duration {
	return c.sweepInterval
}

// UseMemoryStore reports whether to run without Postgres
func (c *Config) UseMemoryStore() bool {
	return c.DevMode && c.DatabaseURL == ""
}

// describeDatabaseURL returns connection details with the password left out
func describeDatabaseURL(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "(invalid DATABASE_URL)"
	}
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	user := u.User.Username()
	if user == "" {
		user = "(none)"
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, dbName, user)
}
