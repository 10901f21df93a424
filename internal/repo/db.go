// Package repo is the GORM persistence layer for donors, emergency requests,
// responses, donations, and idempotency records.
package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/lifeline-backend/internal/config"
	"github.com/tbourn/lifeline-backend/internal/domain"
)

// Pool tunes database/sql and query logging. Zero fields take the driver's
// default.
type Pool struct {
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	// SlowQuery logs statements slower than this at warn.
	SlowQuery time.Duration
}

const (
	sqliteMaxOpen   = 10
	postgresMaxOpen = 25
	defaultLifetime = 30 * time.Minute
	defaultSlow     = 500 * time.Millisecond
)

func (p Pool) withDefaults(maxOpen int) Pool {
	if p.MaxOpenConns <= 0 {
		p.MaxOpenConns = maxOpen
	}
	if p.ConnMaxLifetime <= 0 {
		p.ConnMaxLifetime = defaultLifetime
	}
	if p.SlowQuery <= 0 {
		p.SlowQuery = defaultSlow
	}
	return p
}

// Open connects the backend selected by cfg.Driver: a SQLite file at
// cfg.Path, or PostgreSQL at cfg.DSN.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	pool := Pool{MaxOpenConns: cfg.MaxOpenConns, ConnMaxLifetime: cfg.ConnMaxLifetime, SlowQuery: cfg.SlowQuery}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite":
		return OpenSQLite(cfg.Path, pool)
	case "postgres", "postgresql":
		return OpenPostgres(cfg.DSN, pool)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}
}

// sqlitePragmas are applied by the driver to every pooled connection.
// busy_timeout comes first so switching to WAL waits instead of failing.
// Immediate transactions take the write lock at BEGIN, so a read inside a
// write transaction is never upgraded into SQLITE_BUSY.
var sqlitePragmas = []string{
	"_pragma=busy_timeout(5000)",
	"_pragma=foreign_keys(1)",
	"_pragma=journal_mode(WAL)",
	"_pragma=synchronous(NORMAL)",
	"_txlock=immediate",
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(sqlitePragmas, "&")
}

// OpenSQLite opens or creates the database file. WAL mode lets the expiry
// sweeper write while request lists are being read.
func OpenSQLite(path string, pool Pool) (*gorm.DB, error) {
	// sqlite reports a missing directory as "out of memory (14)"; check first.
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}
	pool = pool.withDefaults(sqliteMaxOpen)

	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), &gorm.Config{Logger: queryLogger(pool.SlowQuery)})
	if err != nil {
		return nil, err
	}
	if err := tune(db, pool); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenPostgres connects and pings, so a bad DSN fails at startup.
func OpenPostgres(dsn string, pool Pool) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres DSN must not be empty")
	}
	pool = pool.withDefaults(postgresMaxOpen)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         queryLogger(pool.SlowQuery),
	})
	if err != nil {
		return nil, err
	}
	if err := tune(db, pool); err != nil {
		return nil, err
	}
	sqlDB, _ := db.DB()
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

func tune(db *gorm.DB, pool Pool) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxOpenConns)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	return nil
}

// queryLogger routes GORM's warnings and slow statements to zerolog.
// Record-not-found is an expected outcome here, not a warning.
func queryLogger(slow time.Duration) logger.Interface {
	w := gormWriter{lg: log.With().Str("component", "gorm").Logger()}
	return logger.New(w, logger.Config{
		SlowThreshold:             slow,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

type gormWriter struct{ lg zerolog.Logger }

func (w gormWriter) Printf(format string, args ...any) {
	w.lg.Warn().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// EnableTracing makes every query a child span of the caller's context.
func EnableTracing(db *gorm.DB) error {
	return db.Use(tracing.NewPlugin(tracing.WithoutMetrics()))
}

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Donor{},
		&domain.Request{},
		&domain.Response{},
		&domain.Donation{},
		&domain.Idempotency{},
	)
}
