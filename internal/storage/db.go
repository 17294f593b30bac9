// Package storage persists the flower catalog and recommendation history in
// SQLite or PostgreSQL.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pinkittys/flowerstory/internal/config"
)

// Common errors
var (
	ErrNotFound          = errors.New("record not found")
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// TxDB is a DB that can start transactions.
type TxDB interface {
	DB
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Driver names accepted in configuration.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func sqlDriverName(driver string) (string, error) {
	switch driver {
	case DriverSQLite, "sqlite3":
		return "sqlite3", nil
	case DriverPostgres, "postgresql":
		return "postgres", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

// Open opens and pings a database. driver is "sqlite" or "postgres".
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	name, err := sqlDriverName(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// OpenFromConfig opens the configured database, applies pool settings, and
// runs pending migrations.
func OpenFromConfig(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := Open(ctx, cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}

	switch cfg.Database.Driver {
	case DriverSQLite:
		if n := cfg.Database.SQLite.MaxOpenConns; n > 0 {
			db.SetMaxOpenConns(n)
		}
		if mode := cfg.Database.SQLite.JournalMode; mode != "" {
			if _, err := db.ExecContext(ctx, "PRAGMA journal_mode="+mode); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("set journal mode: %w", err)
			}
		}
	case DriverPostgres:
		pg := cfg.Database.Postgres
		if pg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(pg.MaxOpenConns)
		}
		if pg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(pg.MaxIdleConns)
		}
		if pg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(pg.ConnMaxLifetime)
		}
	}

	if err := Migrate(ctx, db, cfg.Database.Driver); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
