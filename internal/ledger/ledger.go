// Package ledger is the reference data provider: a GORM-backed store of
// trade fills, balance rows, and valuation snapshots that reporting
// scripts read through the capability functions.
//
// Two backends are supported. SQLite (default) is zero-config and uses the
// pure-Go glebarez driver, so a data directory is all it needs. PostgreSQL
// is for deployments where the ledger is ingested elsewhere and shared.
package ledger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and tunes the ledger backend.
type Config struct {
	Driver      string // "sqlite" (default) or "postgres"
	Path        string // sqlite database file path
	DSN         string // postgres connection string
	JournalMode string // sqlite journal mode, default "wal"

	MaxOpenConns int // postgres pool, default 10
	MaxIdleConns int // postgres pool, default 5
}

func (c Config) driver() string {
	if c.Driver == "" {
		return DriverSQLite
	}
	return c.Driver
}

func (c Config) journal() string {
	if c.JournalMode == "" {
		return "wal"
	}
	return c.JournalMode
}

func (c Config) maxOpen() int {
	if c.MaxOpenConns <= 0 {
		return 10
	}
	return c.MaxOpenConns
}

func (c Config) maxIdle() int {
	if c.MaxIdleConns <= 0 {
		return 5
	}
	return c.MaxIdleConns
}

// Store is the GORM-backed ledger. It implements capability.Provider
// (see provider.go) and is safe for concurrent use.
type Store struct {
	db     *gorm.DB
	driver string
	logger *slog.Logger
}

// Open connects to the configured backend and runs migrations.
func Open(cfg Config, slogger *slog.Logger) (*Store, error) {
	if slogger == nil {
		slogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	gormLogger := logger.New(
		slogAdapter{slogger},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	var db *gorm.DB
	var err error

	switch cfg.driver() {
	case DriverSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite ledger requires a database path")
		}
		if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
			if mkErr := os.MkdirAll(dir, 0750); mkErr != nil {
				return nil, fmt.Errorf("creating ledger directory: %w", mkErr)
			}
		}
		dsn := fmt.Sprintf("%s?_pragma=journal_mode(%s)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
			cfg.Path, cfg.journal())
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger:  gormLogger,
			NowFunc: func() time.Time { return time.Now().UTC() },
		})
		if err != nil {
			return nil, fmt.Errorf("opening sqlite ledger: %w", err)
		}

	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres ledger requires a DSN")
		}
		db, err = gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
			Logger:      gormLogger,
			NowFunc:     func() time.Time { return time.Now().UTC() },
			PrepareStmt: true,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres ledger: %w", err)
		}
		sqlDB, dbErr := db.DB()
		if dbErr != nil {
			return nil, fmt.Errorf("getting underlying sql.DB: %w", dbErr)
		}
		sqlDB.SetMaxOpenConns(cfg.maxOpen())
		sqlDB.SetMaxIdleConns(cfg.maxIdle())

	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Driver)
	}

	s := &Store{db: db, driver: cfg.driver(), logger: slogger}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrating ledger schema: %w", err)
	}

	slogger.Info("ledger opened",
		slog.String("driver", s.driver),
	)
	return s, nil
}

func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&TradeFillModel{},
		&BalanceRowModel{},
		&ValuationSnapshotModel{},
	)
}

// Driver reports which backend the store was opened with.
func (s *Store) Driver() string { return s.driver }

// Ping checks the database connection for health probes.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the database connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// slogAdapter wraps *slog.Logger for GORM's logger.Writer interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (s slogAdapter) Printf(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}
