package app

import "time"

// Config contains the process-level runtime configuration loaded from
// SITEGATE_* environment variables. Subsystems (session, provider, auth
// cookies, realtime gateway) load their own sections.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	// PublicBaseURL is how browsers reach this server. Empty derives it from HTTPAddr.
	PublicBaseURL string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration

	// DatabaseURL enables Postgres-backed identities and memberships.
	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// RedisURL enables the Redis session store and the build event relay.
	RedisURL         string
	BuildEventsTopic string

	// /readyz returns 503 unless the required backends are configured and reachable.
	ReadinessRequireDB    bool
	ReadinessRequireRedis bool

	// CORS for the JSON session endpoint when the UI is served from another origin.
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// Security policy: provider access tokens must be sealed at rest.
	RequireTokenSealing bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("SITEGATE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("SITEGATE_LOG_LEVEL", "info"),
		LogFormat: EnvString("SITEGATE_LOG_FORMAT", "json"),

		PublicBaseURL: EnvString("SITEGATE_PUBLIC_BASE_URL", ""),

		ReadHeaderTimeout: EnvDuration("SITEGATE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("SITEGATE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("SITEGATE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("SITEGATE_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("SITEGATE_HTTP_MAX_HEADER_BYTES", 1<<20),
		ShutdownTimeout:   EnvDuration("SITEGATE_SHUTDOWN_TIMEOUT", 10*time.Second),

		DatabaseURL: EnvString("SITEGATE_DATABASE_URL", ""),
		DBSchema:    EnvString("SITEGATE_DB_SCHEMA", "sitegate"),
		DBMaxConns:  EnvInt32("SITEGATE_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("SITEGATE_DB_MIN_CONNS", 0),

		RedisURL:         EnvString("SITEGATE_REDIS_URL", ""),
		BuildEventsTopic: EnvString("SITEGATE_BUILD_EVENTS_TOPIC", "sitegate:build_status"),

		ReadinessRequireDB:    EnvBool("SITEGATE_READINESS_REQUIRE_DB", false),
		ReadinessRequireRedis: EnvBool("SITEGATE_READINESS_REQUIRE_REDIS", false),

		CORSAllowedOrigins:   EnvCSV("SITEGATE_CORS_ALLOWED_ORIGINS"),
		CORSAllowCredentials: EnvBool("SITEGATE_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("SITEGATE_CORS_MAX_AGE_SECONDS", 600),

		RequireTokenSealing: EnvBool("SITEGATE_REQUIRE_TOKEN_SEALING", false),
	}
}
