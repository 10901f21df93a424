// Package config provides application configuration loaded from environment
// variables (and an optional .env file) with defaults and validation. It
// centralizes server, logging, database, matching, push, realtime, rate
// limiting, and observability settings.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tbourn/lifeline-backend/internal/sysutil"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "lifeline-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
	Environment string  // OTEL_DEPLOYMENT_ENVIRONMENT, falls back to APP_ENV
}

// DBConfig selects the storage backend.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|postgres
	Path   string // DB_PATH, sqlite file
	DSN    string // DB_DSN, postgres connection string

	MaxOpenConns    int           // DB_MAX_OPEN_CONNS, 0 = driver default
	ConnMaxLifetime time.Duration // DB_CONN_MAX_LIFETIME
	SlowQuery       time.Duration // DB_SLOW_QUERY, statements logged at warn
}

// MatchConfig tunes donor matching and request lifetime.
type MatchConfig struct {
	RadiusKm         float64       // MATCH_RADIUS_KM
	Limit            int           // MATCH_LIMIT
	RequestTTL       time.Duration // REQUEST_TTL
	DonationCooldown time.Duration // DONATION_COOLDOWN
	SweepInterval    time.Duration // EXPIRY_SWEEP_INTERVAL
}

// PushConfig configures the push provider. Blank endpoint or key disables
// push delivery.
type PushConfig struct {
	Endpoint  string
	ServerKey string
	Timeout   time.Duration
	Retries   int
}

// RealtimeConfig configures the event router and cross-instance relay.
type RealtimeConfig struct {
	Heartbeat    time.Duration
	Buffer       int
	RedisURL     string // empty disables the relay
	RedisChannel string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DB DBConfig

	// Domain
	Match    MatchConfig
	Push     PushConfig
	Realtime RealtimeConfig
	NodeID   int64 // SNOWFLAKE_NODE, certificate serial node [0,1023]

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)
	// Separate budget for creating blood requests, which fans out alerts.
	CreateRPS   float64 // RATE_CREATE_RPS
	CreateBurst int     // RATE_CREATE_BURST

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad is Load for main packages that cannot run without configuration.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the environment, after merging an optional .env file, and
// validates the result. A variable that is set but does not parse is an
// error, not a silent default. Every problem found is reported at once.
func Load() (Config, error) {
	_ = godotenv.Load()

	e := &env{}
	cfg := Config{
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.dur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.dur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.dur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       e.dur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.int("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(e.str("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogPretty:      e.bool("LOG_PRETTY", false),
		SwaggerEnabled: e.bool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(e.str("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver:          strings.ToLower(e.str("DB_DRIVER", "sqlite")),
			Path:            e.str("DB_PATH", "lifeline.db"),
			DSN:             e.str("DB_DSN", ""),
			MaxOpenConns:    e.int("DB_MAX_OPEN_CONNS", 0),
			ConnMaxLifetime: e.dur("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			SlowQuery:       e.dur("DB_SLOW_QUERY", 500*time.Millisecond),
		},

		Match: MatchConfig{
			RadiusKm:         e.float("MATCH_RADIUS_KM", 50),
			Limit:            e.int("MATCH_LIMIT", 50),
			RequestTTL:       e.dur("REQUEST_TTL", 7*24*time.Hour),
			DonationCooldown: e.dur("DONATION_COOLDOWN", 90*24*time.Hour),
			SweepInterval:    e.dur("EXPIRY_SWEEP_INTERVAL", 5*time.Minute),
		},
		Push: PushConfig{
			Endpoint:  e.str("PUSH_ENDPOINT", ""),
			ServerKey: e.str("PUSH_SERVER_KEY", ""),
			Timeout:   e.dur("PUSH_TIMEOUT", 10*time.Second),
			Retries:   e.int("PUSH_RETRIES", 2),
		},
		Realtime: RealtimeConfig{
			Heartbeat:    e.dur("REALTIME_HEARTBEAT", 30*time.Second),
			Buffer:       e.int("REALTIME_BUFFER", 32),
			RedisURL:     e.str("REDIS_URL", ""),
			RedisChannel: e.str("REDIS_CHANNEL", "lifeline:events"),
		},
		NodeID: int64(e.int("SNOWFLAKE_NODE", 1)),

		RateRPS:     e.float("RATE_RPS", 5.0),
		RateBurst:   e.int("RATE_BURST", 10),
		CreateRPS:   e.float("RATE_CREATE_RPS", 0.2),
		CreateBurst: e.int("RATE_CREATE_BURST", 3),

		CORS: CORSConfig{AllowedOrigins: splitCSV(e.str("CORS_ALLOWED_ORIGINS", ""))},
		Security: SecurityConfig{
			EnableHSTS: e.bool("ENABLE_HSTS", false),
			HSTSMaxAge: e.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: e.dur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     e.bool("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: sysutil.FirstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), os.Getenv("SERVICE_NAME"), "lifeline-backend"),
			SampleRatio: e.float("OTEL_TRACES_SAMPLER_ARG", 1.0),
			Environment: sysutil.FirstNonEmpty(os.Getenv("OTEL_DEPLOYMENT_ENVIRONMENT"), os.Getenv("APP_ENV"), "development"),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	return cfg, errors.Join(append(e.errs, cfg.validate()...)...)
}
