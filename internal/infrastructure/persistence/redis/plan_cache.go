package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/training-planner/internal/domain/training"
	"github.com/alem-hub/training-planner/pkg/logger"
)

var (
	// ErrCacheMiss is returned when a key is not cached.
	ErrCacheMiss = errors.New("redis: cache miss")

	// ErrCacheSerialization is returned when a cached value cannot be encoded or decoded.
	ErrCacheSerialization = errors.New("redis: cache serialization failed")
)

// Cache key prefixes.
const (
	PrefixTraining = "training:"
	PrefixPlan     = "plan:"
)

// TrainingKey returns the cache key of a training.
func (c *Client) TrainingKey(id string) string {
	return c.prefix + PrefixTraining + id
}

// PlanKey returns the cache key of a training's plan.
func (c *Client) PlanKey(id string) string {
	return c.prefix + PrefixPlan + id
}

// CachedReader is a read-through cache in front of a training.Reader.
// Only planned trainings are cached, since a training without a plan is
// still being built. Cache failures are logged and fall through to the reader.
type CachedReader struct {
	client *Client
	reader training.Reader
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedReader creates a new CachedReader.
func NewCachedReader(client *Client, reader training.Reader, ttl time.Duration, log *slog.Logger) *CachedReader {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &CachedReader{
		client: client,
		reader: reader,
		ttl:    ttl,
		logger: log.With(logger.Component("plan_cache")),
	}
}

// FindTraining returns the cached training or reads and caches it.
func (r *CachedReader) FindTraining(ctx context.Context, id string) (*training.Training, error) {
	var t training.Training
	if err := r.get(ctx, r.client.TrainingKey(id), &t); err == nil {
		return &t, nil
	}

	found, err := r.reader.FindTraining(ctx, id)
	if err != nil {
		return nil, err
	}
	if found.IsPlanned() {
		r.set(ctx, r.client.TrainingKey(id), found)
	}
	return found, nil
}

// LoadPlan returns the cached plan or reads it. A plan is cached only once
// its stage count matches the pool size recorded on the training.
func (r *CachedReader) LoadPlan(ctx context.Context, trainingID string) (*training.Plan, error) {
	var plan training.Plan
	if err := r.get(ctx, r.client.PlanKey(trainingID), &plan); err == nil {
		return &plan, nil
	}

	loaded, err := r.reader.LoadPlan(ctx, trainingID)
	if err != nil {
		return nil, err
	}
	if r.complete(ctx, trainingID, loaded) {
		r.set(ctx, r.client.PlanKey(trainingID), loaded)
	}
	return loaded, nil
}

// CountItems is never cached; sets can change at any time.
func (r *CachedReader) CountItems(ctx context.Context, trainingID string) (int, error) {
	return r.reader.CountItems(ctx, trainingID)
}

// Invalidate drops the cached training and plan.
func (r *CachedReader) Invalidate(ctx context.Context, trainingID string) error {
	err := r.client.rdb.Del(ctx, r.client.TrainingKey(trainingID), r.client.PlanKey(trainingID)).Err()
	return classify("Invalidate", err)
}

func (r *CachedReader) complete(ctx context.Context, trainingID string, plan *training.Plan) bool {
	t, err := r.reader.FindTraining(ctx, trainingID)
	if err != nil || !t.IsPlanned() {
		return false
	}
	return plan.StageCount() == training.StageCount(t.PoolSize)
}

func (r *CachedReader) get(ctx context.Context, key string, dest any) error {
	data, err := r.client.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("cache read failed", slog.String("key", key), logger.Err(err))
			return classify("CacheGet", err)
		}
		return ErrCacheMiss
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return nil
}

func (r *CachedReader) set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		r.logger.Warn("cache encode failed", slog.String("key", key), logger.Err(err))
		return
	}
	if err := r.client.rdb.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.logger.Warn("cache write failed", slog.String("key", key), logger.Err(err))
	}
}

var _ training.Reader = (*CachedReader)(nil)
