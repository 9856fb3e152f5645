// Package redis holds the coordination state shared by planner processes:
//   - Locker: advisory lock around a creating build
//   - DegradedQueue: builds that ended without a training, waiting for a retry
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/training-planner/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	// Host is the Redis server hostname.
	Host string

	// Port is the Redis server port.
	Port int

	// Password is the Redis authentication password (empty if no auth).
	Password string

	// DB is the Redis database number (0-15).
	DB int

	// PoolSize is the maximum number of socket connections.
	PoolSize int

	// MaxRetries is the maximum number of retries before giving up.
	MaxRetries int

	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration

	// Prefix namespaces every key written by the planner.
	Prefix string
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		Prefix:       "planner:",
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// Options returns go-redis client options.
func (c Config) Options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr(),
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrConnection is returned when Redis cannot be reached at startup.
	ErrConnection = errors.New("redis: connection failed")

	// ErrKeyEmpty is returned when an empty key is provided.
	ErrKeyEmpty = errors.New("redis: key cannot be empty")
)

// classify maps a client error onto a build failure kind.
func classify(op string, err error) error {
	if err == nil || shared.KindOf(err) != nil {
		return err
	}
	if shared.IsContextError(err) {
		return shared.WrapError("redis", op, shared.ErrTimeout, "deadline exceeded", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return shared.WrapError("redis", op, shared.ErrTimeout, "network timeout", err)
	}
	return shared.WrapError("redis", op, shared.ErrTransportFailure, "redis unavailable", err)
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client wraps the go-redis client and the key prefix.
type Client struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rdb := redis.NewClient(cfg.Options())

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return &Client{rdb: rdb, prefix: cfg.Prefix}, nil
}

// NewClientFrom wraps an existing client without pinging it.
func NewClientFrom(rdb redis.UniversalClient, prefix string) *Client {
	return &Client{rdb: rdb, prefix: prefix}
}

// Redis returns the underlying client.
func (c *Client) Redis() redis.UniversalClient {
	return c.rdb
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks if Redis is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// KEYS
// ══════════════════════════════════════════════════════════════════════════════

// Key prefixes for namespacing Redis keys.
const (
	// PrefixLock is the prefix for advisory lock keys.
	PrefixLock = "lock:"

	// KeyDegraded is the hash of degraded builds, keyed by training id.
	KeyDegraded = "degraded"
)

// LockKey returns the lock key for a resource.
func (c *Client) LockKey(resource string) string {
	return c.prefix + PrefixLock + resource
}

// DegradedKey returns the key of the degraded-build hash.
func (c *Client) DegradedKey() string {
	return c.prefix + KeyDegraded
}
