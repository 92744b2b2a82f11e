package token

import (
	"os"
	"strconv"
	"time"
)

// Config defines all runtime configuration for the refresh/access token subsystem.
//
// It is intentionally explicit and environment-driven so that production
// deployments can tune security parameters without code changes.
type Config struct {
	// Issuer is the value set in the "iss" claim of access tokens.
	Issuer string

	// AccessTokenTTL defines the lifetime of signed access tokens.
	AccessTokenTTL time.Duration

	// RefreshTTL is the fixed lifetime of refresh tokens. There is no
	// sliding extension; expiry is stamped once at issuance/rotation.
	RefreshTTL time.Duration

	// ClockSkew defines the allowed time skew during access-token validation.
	ClockSkew time.Duration

	// RefreshSecretBytes defines the number of random bytes used to
	// generate opaque refresh secrets (32 bytes = 256 bits minimum).
	RefreshSecretBytes int

	// JWTSecret is the HS256 signing key for access tokens.
	JWTSecret string
}

// DefaultConfig returns a secure default configuration suitable for development.
//
// Production environments should override values via environment variables.
func DefaultConfig() Config {
	return Config{
		Issuer:             "taskboard",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTTL:         7 * 24 * time.Hour,
		ClockSkew:          30 * time.Second,
		RefreshSecretBytes: 32,
	}
}

// LoadConfigFromEnv loads token configuration from environment variables.
//
// Required:
//   - TASKBOARD_JWT_SECRET
//
// Optional (durations must be valid Go duration strings):
//   - TASKBOARD_AUTH_ISSUER
//   - TASKBOARD_AUTH_ACCESS_TTL
//   - TASKBOARD_REFRESH_TTL
//   - TASKBOARD_AUTH_CLOCK_SKEW
//   - TASKBOARD_REFRESH_SECRET_BYTES
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("TASKBOARD_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("TASKBOARD_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("TASKBOARD_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTTL = d
	}

	if v := os.Getenv("TASKBOARD_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	if v := os.Getenv("TASKBOARD_REFRESH_SECRET_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 32 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.RefreshSecretBytes = n
	}

	cfg.JWTSecret = os.Getenv("TASKBOARD_JWT_SECRET")
	if len(cfg.JWTSecret) < 32 {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
