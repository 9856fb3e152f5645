// Package neo4j implements the graph store of the planner.
// Trainings, sets, stages, cycles, and translations are nodes joined by
// INCLUDES relationships; each training tracks its own Active node.
//
//	(Training)-[:INCLUDES]->(Set)-[:INCLUDES]->(Translation)
//	(Training)-[:INCLUDES]->(Stage)-[:INCLUDES]->(Cycle)-[:INCLUDES]->(Translation)
//	(Training)-[:TRACKS]->(Active)-[:INCLUDES]->(Stage|Cycle)
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/config"
)

// ErrConnectionClosed indicates the driver is closed.
var ErrConnectionClosed = errors.New("neo4j: driver is closed")

// Config holds Neo4j connection configuration.
type Config struct {
	// URI is the bolt or neo4j URI (e.g., "neo4j://localhost:7687").
	URI string

	// Username and Password are used for basic auth.
	Username string
	Password string

	// Database is the target database. Empty means the server default.
	Database string

	// MaxConnectionPoolSize is the maximum number of connections per host.
	MaxConnectionPoolSize int

	// AcquireTimeout bounds how long a session waits for a connection.
	AcquireTimeout time.Duration

	// MaxConnLifetime is the maximum lifetime of a connection.
	MaxConnLifetime time.Duration
}

// DefaultConfig returns a configuration for a local server.
func DefaultConfig() Config {
	return Config{
		URI:                   "neo4j://localhost:7687",
		Username:              "neo4j",
		MaxConnectionPoolSize: 50,
		AcquireTimeout:        30 * time.Second,
		MaxConnLifetime:       time.Hour,
	}
}

// Connection wraps the driver and the target database.
type Connection struct {
	driver   neo4j.DriverWithContext
	database string
	closed   bool
	mu       sync.RWMutex
}

// NewConnection creates a driver and verifies the server is reachable.
func NewConnection(ctx context.Context, cfg Config) (*Connection, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *config.Config) {
			if cfg.MaxConnectionPoolSize > 0 {
				c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
			}
			if cfg.AcquireTimeout > 0 {
				c.ConnectionAcquisitionTimeout = cfg.AcquireTimeout
			}
			if cfg.MaxConnLifetime > 0 {
				c.MaxConnectionLifetime = cfg.MaxConnLifetime
			}
		})
	if err != nil {
		return nil, fmt.Errorf("neo4j: failed to create driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: failed to verify connectivity: %w", err)
	}

	return &Connection{driver: driver, database: cfg.Database}, nil
}

// Session opens a session with the given access mode.
// The caller must close it.
func (c *Connection) Session(ctx context.Context, mode neo4j.AccessMode) (neo4j.SessionWithContext, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrConnectionClosed
	}
	return c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: c.database,
	}), nil
}

// Ping checks if the server is reachable.
func (c *Connection) Ping(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrConnectionClosed
	}
	return c.driver.VerifyConnectivity(ctx)
}

// Close closes the driver.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.driver.Close(ctx)
}

// WithTx runs fn in an explicit write transaction and closes the session
// on every path.
func (c *Connection) WithTx(ctx context.Context, fn func(tx neo4j.ExplicitTransaction) error) (err error) {
	session, err := c.Session(ctx, neo4j.AccessModeWrite)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := session.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close session: %w", closeErr)
		}
	}()

	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit error: %w", err)
	}
	return nil
}
