package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// When true, pending schema migrations run at startup before the
	// server accepts traffic.
	MigrateOnStart bool

	// RedisURL enables the Redis-backed login throttle when set.
	RedisURL string

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, TASKBOARD_JWT_SECRET MUST be set (>= 32 bytes) and refresh
	// cookies MUST carry the Secure attribute.
	StrictSecurity bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("TASKBOARD_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("TASKBOARD_LOG_LEVEL", "info"),
		LogFormat: EnvString("TASKBOARD_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("TASKBOARD_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("TASKBOARD_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("TASKBOARD_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("TASKBOARD_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("TASKBOARD_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL:    EnvString("TASKBOARD_DATABASE_URL", ""),
		DBMaxConns:     EnvInt32("TASKBOARD_DB_MAX_CONNS", 10),
		DBMinConns:     EnvInt32("TASKBOARD_DB_MIN_CONNS", 0),
		MigrateOnStart: EnvBool("TASKBOARD_DB_MIGRATE", true),

		RedisURL: EnvString("TASKBOARD_REDIS_URL", ""),

		CORSAllowedOrigins:   EnvStringSlice("TASKBOARD_CORS_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("TASKBOARD_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("TASKBOARD_CORS_MAX_AGE", 600),

		ReadinessRequireDB: EnvBool("TASKBOARD_READINESS_REQUIRE_DB", false),

		StrictSecurity: EnvBool("TASKBOARD_STRICT_SECURITY", false),
	}
}
