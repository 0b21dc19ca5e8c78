// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"false"`

	// Cache (Redis). Empty disables the alias cache and rate limiting.
	RedisURL string `env:"REDIS_URL"`

	// Base URL for short links (e.g., https://reurl.dev)
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Status used for every redirect response (302 or 307).
	RedirectStatusCode int `env:"REDIRECT_STATUS_CODE" envDefault:"302"`

	// Identity provider session tokens. Set exactly one of secret or public key.
	IdentityJWTSecret    string        `env:"IDENTITY_JWT_SECRET"`
	IdentityJWTPublicKey string        `env:"IDENTITY_JWT_PUBLIC_KEY"`
	IdentityIssuer       string        `env:"IDENTITY_ISSUER"`
	IdentityAudience     string        `env:"IDENTITY_AUDIENCE"`
	IdentityLeeway       time.Duration `env:"IDENTITY_LEEWAY" envDefault:"30s"`
	SessionCookieName    string        `env:"SESSION_COOKIE_NAME" envDefault:"__session"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting (requires Redis)
	RateLimitAPIEnabled      bool `env:"RATE_LIMIT_API_ENABLED" envDefault:"true"`
	RateLimitAPIRPM          int  `env:"RATE_LIMIT_API_RPM" envDefault:"120"`
	RateLimitAPIBurst        int  `env:"RATE_LIMIT_API_BURST" envDefault:"30"`
	RateLimitRedirectEnabled bool `env:"RATE_LIMIT_REDIRECT_ENABLED" envDefault:"true"`
	RateLimitRedirectRPS     int  `env:"RATE_LIMIT_REDIRECT_RPS" envDefault:"20"`
	RateLimitRedirectBurst   int  `env:"RATE_LIMIT_REDIRECT_BURST" envDefault:"40"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://reurl.dev,https://app.reurl.dev")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Comma-separated proxy addresses or CIDRs whose X-Forwarded-For is
	// trusted when keying the per-IP redirect limit.
	TrustedProxies string `env:"TRUSTED_PROXIES" envDefault:""`

	// Request body size limit in bytes (default 64KB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"65536"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// GetTrustedProxies parses TRUSTED_PROXIES. Bare addresses become
// single-host prefixes.
func (c *Config) GetTrustedProxies() ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, raw := range strings.Split(c.TrustedProxies, ",") {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// CacheEnabled reports whether Redis is configured.
func (c *Config) CacheEnabled() bool {
	return c.RedisURL != ""
}

// Validate checks rules that span fields or cannot be expressed as tags.
func (c *Config) Validate() error {
	var errs []error

	if c.AppPort < 1 || c.AppPort > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be between 1 and 65535, got %d", c.AppPort))
	}

	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("BASE_URL must be an absolute http(s) URL, got %q", c.BaseURL))
	}

	switch c.RedirectStatusCode {
	case http.StatusFound, http.StatusTemporaryRedirect:
	default:
		errs = append(errs, fmt.Errorf("REDIRECT_STATUS_CODE must be 302 or 307, got %d", c.RedirectStatusCode))
	}

	switch {
	case c.IdentityJWTSecret == "" && c.IdentityJWTPublicKey == "":
		errs = append(errs, errors.New("one of IDENTITY_JWT_SECRET or IDENTITY_JWT_PUBLIC_KEY is required"))
	case c.IdentityJWTSecret != "" && c.IdentityJWTPublicKey != "":
		errs = append(errs, errors.New("IDENTITY_JWT_SECRET and IDENTITY_JWT_PUBLIC_KEY are mutually exclusive"))
	case c.IdentityJWTSecret != "" && len(c.IdentityJWTSecret) < 32:
		errs = append(errs, errors.New("IDENTITY_JWT_SECRET must be at least 32 bytes"))
	}

	if c.SessionCookieName == "" {
		errs = append(errs, errors.New("SESSION_COOKIE_NAME must not be empty"))
	}

	if c.DBMaxConns < 1 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		errs = append(errs, fmt.Errorf("DB_MIN_CONNS (%d) must be between 0 and DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns))
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}

	if _, err := c.GetTrustedProxies(); err != nil {
		errs = append(errs, err)
	}

	if c.MaxRequestBodySize <= 0 {
		errs = append(errs, errors.New("MAX_REQUEST_BODY_SIZE must be positive"))
	}

	return errors.Join(errs...)
}

// Load reads an optional .env file, parses environment variables and
// validates the result. Variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
