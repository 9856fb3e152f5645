// Package jobs contains the planner's scheduled jobs.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/training-planner/internal/application/command"
	"github.com/alem-hub/training-planner/internal/domain/training"
	"github.com/alem-hub/training-planner/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RETRY DEGRADED BUILDS JOB
// ══════════════════════════════════════════════════════════════════════════════

// DegradedQueue is the source of builds to retry.
type DegradedQueue interface {
	Pending(ctx context.Context, limit int) ([]training.DegradedBuild, error)
	Resolve(ctx context.Context, trainingID string) error
}

// Builder runs a build. *command.BuildTrainingHandler implements it.
type Builder interface {
	Handle(ctx context.Context, cmd command.BuildTrainingCommand) *command.BuildTrainingResult
}

// RetryDegradedBuildsConfig contains configuration for the job.
type RetryDegradedBuildsConfig struct {
	// BatchSize is the number of queued builds picked per run.
	BatchSize int

	// Concurrency bounds the builds running at once.
	Concurrency int
}

// DefaultRetryDegradedBuildsConfig returns sensible defaults.
func DefaultRetryDegradedBuildsConfig() RetryDegradedBuildsConfig {
	return RetryDegradedBuildsConfig{
		BatchSize:   50,
		Concurrency: 4,
	}
}

// RetryStats summarizes one run.
type RetryStats struct {
	Picked    int
	Recovered int
	Degraded  int
	Duration  time.Duration
}

// RetryDegradedBuildsJob rebuilds trainings whose build ended degraded.
// A recovered build is removed from the queue; a build that fails again is
// re-reported by the handler with a fresh failure time.
type RetryDegradedBuildsJob struct {
	queue   DegradedQueue
	builder Builder
	logger  *slog.Logger
	config  RetryDegradedBuildsConfig

	lastStats atomic.Value // RetryStats
}

// NewRetryDegradedBuildsJob creates a new RetryDegradedBuildsJob.
func NewRetryDegradedBuildsJob(queue DegradedQueue, builder Builder, log *slog.Logger, config RetryDegradedBuildsConfig) *RetryDegradedBuildsJob {
	defaults := DefaultRetryDegradedBuildsConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if log == nil {
		log = slog.Default()
	}
	return &RetryDegradedBuildsJob{
		queue:   queue,
		builder: builder,
		logger:  log.With(logger.Component("retry_degraded_builds")),
		config:  config,
	}
}

// Name returns the job name.
func (j *RetryDegradedBuildsJob) Name() string {
	return "retry_degraded_builds"
}

// Description returns the job description.
func (j *RetryDegradedBuildsJob) Description() string {
	return "Rebuilds trainings whose previous build ended without a plan"
}

// Run executes the job.
func (j *RetryDegradedBuildsJob) Run(ctx context.Context) error {
	start := time.Now()

	builds, err := j.queue.Pending(ctx, j.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to read degraded builds: %w", err)
	}
	if len(builds) == 0 {
		j.lastStats.Store(RetryStats{})
		return nil
	}

	var recovered, stillDegraded atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Concurrency)
	for _, build := range builds {
		g.Go(func() error {
			if j.retry(gctx, build) {
				recovered.Add(1)
			} else {
				stillDegraded.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats := RetryStats{
		Picked:    len(builds),
		Recovered: int(recovered.Load()),
		Degraded:  int(stillDegraded.Load()),
		Duration:  time.Since(start),
	}
	j.lastStats.Store(stats)

	j.logger.Info("degraded builds retried",
		slog.Int("picked", stats.Picked),
		slog.Int("recovered", stats.Recovered),
		slog.Int("degraded", stats.Degraded),
		logger.Latency(stats.Duration),
	)
	return ctx.Err()
}

// retry rebuilds one training and reports whether it left the queue.
func (j *RetryDegradedBuildsJob) retry(ctx context.Context, build training.DegradedBuild) bool {
	if ctx.Err() != nil {
		return false
	}
	log := j.logger.With(logger.TrainingID(build.TrainingID))

	result := j.builder.Handle(ctx, command.BuildTrainingCommand{
		TrainingID:    build.TrainingID,
		SetIDs:        build.SetIDs,
		Seed:          build.Seed,
		CorrelationID: j.Name(),
	})
	if !result.OK() {
		log.Debug("build still degraded", slog.String("kind", fmt.Sprint(result.Kind())))
		return false
	}

	if err := j.queue.Resolve(ctx, build.TrainingID); err != nil {
		log.Warn("failed to resolve degraded build", logger.Err(err))
		return false
	}
	log.Info("degraded build recovered", slog.String("status", string(result.Status)))
	return true
}

// LastStats returns the stats of the most recent run.
func (j *RetryDegradedBuildsJob) LastStats() RetryStats {
	if stats, ok := j.lastStats.Load().(RetryStats); ok {
		return stats
	}
	return RetryStats{}
}
