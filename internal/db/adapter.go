package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Driver identifies the database/sql driver backing a connection.
type Driver string

const (
	// DriverModernc is the pure-Go SQLite driver (modernc.org/sqlite).
	DriverModernc Driver = "modernc"

	// DriverPostgres is lib/pq.
	DriverPostgres Driver = "postgres"
)

// Config selects and parameterizes a database connection.
type Config struct {
	Driver    Driver
	Path      string // SQLite file path, or ":memory:"
	DSN       string // Postgres connection string
	EnableWAL bool
}

// Dialect returns the SQL dialect matching the configured driver.
func (c Config) Dialect() Dialect {
	if c.Driver == DriverPostgres {
		return &PostgresDialect{}
	}
	return &SQLiteDialect{}
}

// DB is the subset of *sql.DB the storage layer uses. *sql.DB
// satisfies it directly; tests substitute fakes.
type DB interface {
	Exec(query string, args ...any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

// Result, Rows, and Row alias database/sql so callers of this package
// do not import both.
type (
	Result = sql.Result
	Rows   = *sql.Rows
	Row    = *sql.Row
)

// Open dispatches on the configured driver.
func Open(cfg Config) (DB, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return OpenPostgres(cfg)
	case DriverModernc, "":
		return OpenModernc(cfg)
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}

// OpenModernc opens a SQLite database with the pure-Go driver,
// creating the parent directory when needed. WAL and the other
// pragmas are applied immediately so every connection sees them.
func OpenModernc(cfg Config) (DB, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// modernc serializes writes itself; a single connection avoids
	// SQLITE_BUSY on concurrent batches.
	database.SetMaxOpenConns(1)

	if cfg.EnableWAL && path != ":memory:" {
		if _, err := database.Exec("PRAGMA journal_mode = WAL"); err != nil {
			database.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	if _, err := database.Exec("PRAGMA foreign_keys = ON"); err != nil {
		database.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := database.Exec("PRAGMA busy_timeout = 30000"); err != nil {
		database.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return database, nil
}

// OpenPostgres opens a Postgres connection and verifies it with a ping.
func OpenPostgres(cfg Config) (DB, error) {
	database, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := database.Ping(); err != nil {
		database.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return database, nil
}
