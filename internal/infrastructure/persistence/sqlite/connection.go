// Package sqlite provides an embedded SQLite backend for the training store.
// It is used for local runs and as the store of the integration tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Config holds SQLite connection configuration.
type Config struct {
	// Path is the database file, or MemoryPath.
	Path string

	// BusyTimeout is how long a statement waits for a locked database.
	BusyTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Path:        filepath.Join("data", "planner.db"),
		BusyTimeout: 5 * time.Second,
	}
}

// DSN returns the go-sqlite3 connection string.
func (c Config) DSN() string {
	path := c.Path
	if path == MemoryPath {
		path = "file::memory:"
	}
	// _txlock=immediate takes the write lock at BEGIN, so two writers
	// queue on the busy timeout instead of failing on lock upgrade.
	return fmt.Sprintf("%s?_foreign_keys=on&_busy_timeout=%d&_txlock=immediate",
		path, c.BusyTimeout.Milliseconds())
}

// Connection wraps the sqlx database handle.
type Connection struct {
	db *sqlx.DB
}

// Open connects to the database and creates the schema if needed.
func Open(ctx context.Context, cfg Config) (*Connection, error) {
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = DefaultConfig().BusyTimeout
	}
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	if cfg.Path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite3", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has a single writer; one connection also keeps an in-memory
	// database alive for the lifetime of the handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	conn := &Connection{db: db}
	if err := conn.initializeSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return conn, nil
}

// DB returns the underlying handle.
func (c *Connection) DB() *sqlx.DB {
	return c.db
}

// Close closes the database connection.
func (c *Connection) Close() error {
	return c.db.Close()
}

// Ping verifies the database is reachable.
func (c *Connection) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// WithTx runs fn in a read-write transaction.
func (c *Connection) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) (err error) {
	tx, err := c.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: false})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit error: %w", err)
	}
	return nil
}
