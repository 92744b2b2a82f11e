package csrf

import (
	"errors"
	"os"
	"strings"
)

// Strategy names accepted by TASKBOARD_CSRF_STRATEGY.
const (
	StrategyDoubleSubmit = "double-submit"
	StrategySigned       = "signed"
)

// ErrConfig is returned for invalid guard configuration.
var ErrConfig = errors.New("invalid csrf config")

// Config defines the guard's runtime configuration.
type Config struct {
	// APIPrefix scopes the guard; requests outside it pass through.
	APIPrefix string

	// HeaderName carries the client's CSRF proof.
	HeaderName string

	// HintName is the cookie-name family published by the hint endpoint.
	HintName string

	// Strategy selects double-submit or signed validation.
	Strategy string

	// SigningKey is required for the signed strategy (min 32 bytes).
	SigningKey string

	// ExemptPaths skip the guard entirely. These are the endpoints that must
	// work before the client holds any CSRF state (login, refresh, logout,
	// password recovery, the hint endpoint itself).
	ExemptPaths []string
}

// DefaultConfig returns the guard configuration used unless overridden.
func DefaultConfig() Config {
	return Config{
		APIPrefix:  "/api",
		HeaderName: "X-CSRF-Token",
		HintName:   "csrf-token",
		Strategy:   StrategyDoubleSubmit,
		ExemptPaths: []string{
			"/api/login",
			"/api/register",
			"/api/auth/token/refresh",
			"/api/auth/logout",
			"/api/auth/password/forgot",
			"/api/auth/password/reset",
			"/api/csrf",
		},
	}
}

// LoadConfigFromEnv loads guard configuration from environment variables.
//
// Optional:
//   - TASKBOARD_CSRF_STRATEGY ("double-submit" or "signed")
//   - TASKBOARD_CSRF_HINT
//   - TASKBOARD_CSRF_SIGNING_KEY (required when strategy is "signed")
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("TASKBOARD_CSRF_STRATEGY")); v != "" {
		if v != StrategyDoubleSubmit && v != StrategySigned {
			return Config{}, ErrConfig
		}
		cfg.Strategy = v
	}
	if v := strings.TrimSpace(os.Getenv("TASKBOARD_CSRF_HINT")); v != "" {
		cfg.HintName = v
	}
	cfg.SigningKey = os.Getenv("TASKBOARD_CSRF_SIGNING_KEY")

	if cfg.Strategy == StrategySigned && len(cfg.SigningKey) < 32 {
		return Config{}, ErrConfig
	}
	return cfg, nil
}
