// Package config provides application configuration loaded from environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// DevSessionSecret is the fallback secret used outside production.
const DevSessionSecret = "devsessionsecret-change-me"

// Config holds all application configuration.
type Config struct {
	Port     int    `envconfig:"port" default:"8080"`
	Env      string `envconfig:"app_env" default:"development"`
	LogLevel string `envconfig:"log_level" default:"info"`

	DatabaseDSN       string        `envconfig:"database_dsn" default:"file:greasedesk.db?_foreign_keys=on"`
	DBMaxOpenConns    int           `envconfig:"db_max_open_conns" default:"25"`
	DBMaxIdleConns    int           `envconfig:"db_max_idle_conns" default:"5"`
	DBMaxConnLifetime time.Duration `envconfig:"db_max_conn_lifetime" default:"1h"`

	BaseURL        string        `envconfig:"base_url" default:"http://localhost:8080"`
	SessionSecret  string        `envconfig:"session_secret"`
	SessionTTL     time.Duration `envconfig:"session_ttl" default:"336h"`
	SecureCookies  bool          `envconfig:"secure_cookies" default:"false"`
	AllowedOrigins []string      `envconfig:"allowed_origins"`

	ResendAPIKey string `envconfig:"resend_api_key"`
	EmailFrom    string `envconfig:"email_from" default:"GreaseDesk <no-reply@greasedesk.com>"`

	VerificationTokenTTL time.Duration `envconfig:"verification_token_ttl" default:"24h"`
	InvitationLifetime   time.Duration `envconfig:"invitation_lifetime" default:"168h"`
	TrialDays            int           `envconfig:"trial_days" default:"30"`

	ReadTimeout     time.Duration `envconfig:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"write_timeout" default:"15s"`
	IdleTimeout     time.Duration `envconfig:"idle_timeout" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"shutdown_timeout" default:"10s"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.SessionSecret == "" && !c.Production() {
		c.SessionSecret = DevSessionSecret
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Production reports whether APP_ENV is production.
func (c *Config) Production() bool { return c.Env == "production" }

// Addr returns the listen address.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// Validate rejects settings that are unsafe or unusable.
func (c *Config) Validate() error {
	var errs []error
	if c.SessionSecret == "" {
		errs = append(errs, errors.New("SESSION_SECRET is required"))
	}
	if c.Production() {
		if c.SessionSecret == DevSessionSecret {
			errs = append(errs, errors.New("SESSION_SECRET must be set in production"))
		}
		if len(c.SessionSecret) < 32 {
			errs = append(errs, errors.New("SESSION_SECRET must be at least 32 bytes in production"))
		}
	}
	if c.BaseURL == "" {
		errs = append(errs, errors.New("BASE_URL is required"))
	}
	if c.TrialDays < 0 {
		errs = append(errs, errors.New("TRIAL_DAYS must not be negative"))
	}
	if c.VerificationTokenTTL <= 0 || c.InvitationLifetime <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
