package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/training-planner/config"
	"github.com/alem-hub/training-planner/internal/application/command"
	"github.com/alem-hub/training-planner/internal/domain/training"
	"github.com/alem-hub/training-planner/internal/infrastructure/persistence/neo4j"
	"github.com/alem-hub/training-planner/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/training-planner/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/training-planner/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/training-planner/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/training-planner/pkg/logger"
)

var (
	_ command.Locker           = (*redis.Locker)(nil)
	_ command.DegradedReporter = (*redis.DegradedQueue)(nil)
	_ jobs.DegradedQueue       = (*redis.DegradedQueue)(nil)
	_ jobs.Builder             = (*command.BuildTrainingHandler)(nil)
)

// store is what every backend provides.
type store interface {
	training.Store
	training.ContentWriter
}

// app holds the connections of one process run.
type app struct {
	cfg *config.Config
	log *slog.Logger

	store  training.Store
	writer training.ContentWriter

	// Set only for the postgres backend.
	migrator *postgres.Migrator
	applied  []int

	// Nil when redis is disabled or unreachable.
	redis  *redis.Client
	locker command.Locker
	queue  *redis.DegradedQueue
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	s, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store, a.writer = s, s

	if cfg.Redis.Disabled {
		log.Info("redis disabled, builds run without the advisory lock")
		return a, nil
	}

	client, err := redis.NewClient(ctx, redis.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MaxRetries:   redis.DefaultConfig().MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		Prefix:       cfg.Redis.Prefix,
	})
	if err != nil {
		log.Warn("failed to connect to Redis, builds run without the advisory lock", logger.Err(err))
		return a, nil
	}
	a.redis = client
	a.locker = redis.NewLocker(client)
	a.queue = redis.NewDegradedQueue(client)
	log.Info("Redis connection established")
	return a, nil
}

func (a *app) openStore(ctx context.Context) (store, error) {
	cfg := a.cfg.Store
	log := a.log.With(logger.Backend(string(cfg.Backend)))

	switch cfg.Backend {
	case config.BackendNeo4j:
		connCfg := neo4j.DefaultConfig()
		connCfg.URI = cfg.Neo4j.URI
		connCfg.Username = cfg.Neo4j.Username
		connCfg.Password = cfg.Neo4j.Password
		connCfg.Database = cfg.Neo4j.Database
		connCfg.MaxConnectionPoolSize = cfg.Neo4j.MaxConnectionPoolSize
		connCfg.AcquireTimeout = cfg.Neo4j.AcquireTimeout

		conn, err := neo4j.NewConnection(ctx, connCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
		}
		if err := conn.EnsureConstraints(ctx); err != nil {
			_ = conn.Close(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("failed to create constraints: %w", err)
		}
		log.Info("neo4j connection established")
		return neo4j.NewStore(conn), nil

	case config.BackendPostgres:
		connCfg := postgres.DefaultConfig()
		connCfg.URL = cfg.Postgres.URL
		connCfg.MaxConns = int32(cfg.Postgres.MaxConns)
		connCfg.MinConns = int32(cfg.Postgres.MinConns)
		connCfg.MaxConnLifetime = cfg.Postgres.MaxConnLifetime
		connCfg.MaxConnIdleTime = cfg.Postgres.MaxConnIdleTime

		conn, err := postgres.NewConnection(ctx, connCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.migrator = postgres.NewMigrator(conn)
		a.applied, err = a.migrator.Migrate(ctx)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date", slog.Any("applied", a.applied))
		return postgres.NewStore(conn), nil

	case config.BackendSQLite:
		conn, err := sqlite.Open(ctx, sqlite.Config{
			Path:        cfg.SQLite.Path,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		log.Info("sqlite database opened", slog.String("path", cfg.SQLite.Path))
		return sqlite.NewStore(conn), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func (a *app) buildHandler() *command.BuildTrainingHandler {
	var reporter command.DegradedReporter
	if a.queue != nil {
		reporter = a.queue
	}
	return command.NewBuildTrainingHandler(a.store, a.locker, reporter, nil, a.log, command.BuildTrainingHandlerConfig{
		TxTimeout:   a.cfg.Planner.TxTimeout,
		LockTTL:     a.cfg.Planner.LockTTL,
		MaxAttempts: a.cfg.Planner.MaxAttempts,
	})
}

// reader returns the store, behind the plan cache when redis is available.
func (a *app) reader() training.Reader {
	if a.redis == nil {
		return a.store
	}
	return redis.NewCachedReader(a.redis, a.store, a.cfg.Redis.CacheTTL, a.log)
}

// invalidate drops the cached plan of a training that was just modified.
func (a *app) invalidate(ctx context.Context, trainingID string) {
	if a.redis == nil {
		return
	}
	if err := redis.NewCachedReader(a.redis, a.store, a.cfg.Redis.CacheTTL, a.log).Invalidate(ctx, trainingID); err != nil {
		a.log.Warn("failed to invalidate cached plan", logger.TrainingID(trainingID), logger.Err(err))
	}
}

// Close releases every connection. Errors are logged.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("failed to close redis", logger.Err(err))
		}
	}
	if err := a.store.Close(ctx); err != nil {
		a.log.Warn("failed to close store", logger.Err(err))
	}
}
