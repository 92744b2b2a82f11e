package authapi

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	RefreshCookieName string
	CookiePath        string
	CookieSecure      bool

	LoginIPMax    int
	LoginIPWindow time.Duration

	PasswordResetTTL time.Duration

	// DebugErrors includes internal error detail in 500 bodies. Never enable
	// in production.
	DebugErrors bool
}

// LoadConfigFromEnv loads auth config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:        envBool("TASKBOARD_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:      envInt64("TASKBOARD_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
		RefreshCookieName: envString("TASKBOARD_REFRESH_COOKIE", "refresh_token"),
		CookiePath:        "/",
		CookieSecure:      envBool("TASKBOARD_COOKIE_SECURE", false),
		LoginIPMax:        envInt("TASKBOARD_LOGIN_IP_MAX", 20),
		LoginIPWindow:     envDuration("TASKBOARD_LOGIN_IP_WINDOW", 5*time.Minute),
		PasswordResetTTL:  envDuration("TASKBOARD_PASSWORD_RESET_TTL", time.Hour),
		DebugErrors:       envBool("TASKBOARD_DEBUG_ERRORS", false),
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.LoginIPMax <= 0 {
		cfg.LoginIPMax = 20
	}
	return cfg
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
