package config

import (
	"errors"
	"strings"
)

// validate returns one error per violated constraint.
func (c Config) validate() []error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"))
	}
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")

	switch c.DB.Driver {
	case "sqlite":
		check(strings.TrimSpace(c.DB.Path) != "", "DB_PATH must not be empty")
	case "postgres":
		check(strings.TrimSpace(c.DB.DSN) != "", "DB_DSN must not be empty when DB_DRIVER=postgres")
	default:
		errs = append(errs, errors.New("DB_DRIVER must be one of: sqlite, postgres"))
	}
	check(c.DB.MaxOpenConns >= 0, "DB_MAX_OPEN_CONNS must be >= 0")

	check(c.Match.RadiusKm > 0, "MATCH_RADIUS_KM must be > 0")
	check(c.Match.Limit >= 1, "MATCH_LIMIT must be >= 1")
	check(c.Match.RequestTTL > 0, "REQUEST_TTL must be > 0")
	check(c.Match.DonationCooldown > 0, "DONATION_COOLDOWN must be > 0")
	check(c.Match.SweepInterval > 0, "EXPIRY_SWEEP_INTERVAL must be > 0")

	check(c.Push.Timeout > 0, "PUSH_TIMEOUT must be > 0")
	check(c.Push.Retries >= 0, "PUSH_RETRIES must be >= 0")
	check(c.Realtime.Heartbeat > 0, "REALTIME_HEARTBEAT must be > 0")
	check(c.Realtime.Buffer >= 1, "REALTIME_BUFFER must be >= 1")
	check(c.NodeID >= 0 && c.NodeID <= 1023, "SNOWFLAKE_NODE must be in [0,1023]")

	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.CreateRPS >= 0, "RATE_CREATE_RPS must be >= 0")
	check(c.CreateBurst >= 1, "RATE_CREATE_BURST must be >= 1")

	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	return errs
}
