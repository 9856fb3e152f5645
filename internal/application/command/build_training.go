// Package command contains write operations (CQRS - Commands).
// Commands change the state of the training store.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/alem-hub/training-planner/internal/domain/shared"
	"github.com/alem-hub/training-planner/internal/domain/training"
	"github.com/alem-hub/training-planner/pkg/circuitbreaker"
	"github.com/alem-hub/training-planner/pkg/logger"
	"github.com/alem-hub/training-planner/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// BUILD TRAINING COMMAND
// Plans a training from the items of its sets and persists the plan once.
// A second build for the same id never touches the stored plan.
// ══════════════════════════════════════════════════════════════════════════════

// BuildTrainingCommand contains the data needed to build a training.
type BuildTrainingCommand struct {
	// TrainingID is the external id of the training.
	TrainingID string

	// SetIDs are the content sets whose items form the pool.
	SetIDs []string

	// Seed fixes the shuffle. If nil, a random seed is drawn and stored.
	Seed *int64

	// CorrelationID for tracing across services.
	CorrelationID string
}

// Validate validates the command.
func (c BuildTrainingCommand) Validate() error {
	if err := training.ValidateID(c.TrainingID); err != nil {
		return err
	}
	if len(training.NormalizeIDs(c.SetIDs)) == 0 {
		return training.ErrNoSets
	}
	return nil
}

// BuildStatus tells the caller what a build did.
type BuildStatus string

const (
	// BuildStatusCreated means this call created the training and its plan.
	BuildStatusCreated BuildStatus = "created"
	// BuildStatusExisting means the training was already stored; nothing was written.
	BuildStatusExisting BuildStatus = "existing"
	// BuildStatusDegraded means no training is available; Err says why.
	BuildStatusDegraded BuildStatus = "degraded"
)

// BuildTrainingResult contains the outcome of a build.
type BuildTrainingResult struct {
	TrainingID string
	Status     BuildStatus

	// Training is nil when the build is degraded.
	Training *training.Training

	// Plan is the persisted plan. Set only when Status is created.
	Plan *training.Plan

	// CreatedStageIDs are the stages written by this build.
	CreatedStageIDs []int

	// PoolSize is the number of distinct items the plan was built from.
	PoolSize int

	Attempts int
	Duration time.Duration

	// Err is the classified cause of a degraded build: one of
	// shared.ErrPoolUnavailable, ErrPersistenceConflict, ErrTransportFailure,
	// ErrTimeout, or ErrInvalidInput.
	Err error
}

// OK reports whether a training is available after the build.
func (r *BuildTrainingResult) OK() bool {
	return r.Status != BuildStatusDegraded
}

// Kind returns the failure kind of a degraded build.
func (r *BuildTrainingResult) Kind() error {
	return shared.KindOf(r.Err)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// Locker takes an advisory lock around the creating transaction.
type Locker interface {
	// Acquire returns an error of kind shared.ErrPersistenceConflict when the
	// lock is held by someone else.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// DegradedReporter records builds that ended without a training.
type DegradedReporter interface {
	ReportDegraded(ctx context.Context, build training.DegradedBuild) error
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// BuildTrainingHandlerConfig contains configuration for the handler.
type BuildTrainingHandlerConfig struct {
	// TxTimeout bounds the whole build including retries.
	TxTimeout time.Duration

	// LockTTL is how long the advisory lock outlives a crashed holder.
	LockTTL time.Duration

	// MaxAttempts includes the first attempt.
	MaxAttempts int

	// SeedSource draws seeds for commands without one.
	SeedSource func() int64

	// Clock is used for created_at and durations.
	Clock func() time.Time
}

// DefaultBuildTrainingHandlerConfig returns default configuration.
func DefaultBuildTrainingHandlerConfig() BuildTrainingHandlerConfig {
	return BuildTrainingHandlerConfig{
		TxTimeout:   30 * time.Second,
		LockTTL:     time.Minute,
		MaxAttempts: 3,
		SeedSource:  rand.Int64,
		Clock:       time.Now,
	}
}

// BuildTrainingHandler handles the BuildTrainingCommand.
type BuildTrainingHandler struct {
	store    training.Store
	locker   Locker
	reporter DegradedReporter
	breaker  *circuitbreaker.CircuitBreaker
	retrier  *retry.Retrier
	logger   *slog.Logger
	config   BuildTrainingHandlerConfig
}

// NewBuildTrainingHandler creates a new BuildTrainingHandler.
// locker, reporter, and breaker are optional.
func NewBuildTrainingHandler(
	store training.Store,
	locker Locker,
	reporter DegradedReporter,
	breaker *circuitbreaker.CircuitBreaker,
	log *slog.Logger,
	config BuildTrainingHandlerConfig,
) *BuildTrainingHandler {
	defaults := DefaultBuildTrainingHandlerConfig()
	if config.TxTimeout <= 0 {
		config.TxTimeout = defaults.TxTimeout
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaults.LockTTL
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.SeedSource == nil {
		config.SeedSource = defaults.SeedSource
	}
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With(logger.Component("build_training"))
	if breaker == nil {
		breaker = circuitbreaker.StoreBreaker("training-store", isTransportFailure, nil)
	}

	return &BuildTrainingHandler{
		store:    store,
		locker:   locker,
		reporter: reporter,
		breaker:  breaker,
		retrier:  retry.StoreRetrier(config.MaxAttempts),
		logger:   log,
		config:   config,
	}
}

// Handle executes the build. It never returns a nil result and never panics;
// failures are reported through BuildStatusDegraded.
func (h *BuildTrainingHandler) Handle(ctx context.Context, cmd BuildTrainingCommand) (result *BuildTrainingResult) {
	start := h.config.Clock()
	log := h.logger.With(logger.TrainingID(cmd.TrainingID))
	if cmd.CorrelationID != "" {
		log = log.With(slog.String("correlation_id", cmd.CorrelationID))
	}

	defer func() {
		if p := recover(); p != nil {
			result = degraded(cmd.TrainingID, shared.NewDomainError("training", "Build",
				shared.ErrPersistenceConflict, fmt.Sprintf("panic during build: %v", p)), 0)
		}
		result.Duration = h.config.Clock().Sub(start)
		h.finish(ctx, cmd, result, log)
	}()

	return h.build(ctx, cmd, log)
}

func (h *BuildTrainingHandler) build(ctx context.Context, cmd BuildTrainingCommand, log *slog.Logger) *BuildTrainingResult {
	if err := cmd.Validate(); err != nil {
		return degraded(cmd.TrainingID, err, 0)
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.TxTimeout)
	defer cancel()

	var result *BuildTrainingResult
	attempts := 0
	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		attempts++
		r, err := h.attempt(ctx, cmd)
		if err != nil {
			err = classify(ctx, err)
			if shared.IsRetryable(err) && attempts < h.retrier.MaxAttempts() {
				log.Warn("build attempt failed, retrying", logger.Attempt(attempts), logger.Err(err))
				return retry.Retryable(err)
			}
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return degraded(cmd.TrainingID, classify(ctx, err), attempts)
	}

	result.Attempts = attempts
	return result
}

// attempt runs steps 1 and 2 once.
func (h *BuildTrainingHandler) attempt(ctx context.Context, cmd BuildTrainingCommand) (*BuildTrainingResult, error) {
	existing, err := h.findExisting(ctx, cmd.TrainingID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existingResult(existing), nil
	}

	release, err := h.acquire(ctx, cmd.TrainingID)
	if err != nil {
		return nil, err
	}
	defer release()

	seed := h.config.SeedSource()
	if cmd.Seed != nil {
		seed = *cmd.Seed
	}

	var result *BuildTrainingResult
	err = h.breaker.Execute(ctx, func(ctx context.Context) error {
		return h.store.WithinTx(ctx, func(ctx context.Context, uow training.UnitOfWork) error {
			r, err := h.create(ctx, uow, cmd, seed)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (h *BuildTrainingHandler) create(ctx context.Context, uow training.UnitOfWork, cmd BuildTrainingCommand, seed int64) (*BuildTrainingResult, error) {
	t, err := training.NewTraining(cmd.TrainingID, seed, cmd.SetIDs, h.config.Clock())
	if err != nil {
		return nil, err
	}

	created, err := uow.AssignSets(ctx, t, t.SetIDs)
	if err != nil {
		return nil, stepError("AssignSets", shared.ErrPersistenceConflict, err)
	}
	if !created {
		// Another build committed this training after our lookup.
		return existingResult(t), nil
	}

	itemIDs, err := uow.ListItemIDs(ctx, t.ID)
	if err != nil {
		return nil, stepError("ListItemIDs", shared.ErrPoolUnavailable, err)
	}
	if len(itemIDs) == 0 {
		return nil, training.ErrEmptyPool
	}

	plan := training.NewPlan(itemIDs, t.Seed)
	createdStages, err := uow.PersistPlan(ctx, t.ID, plan)
	if err != nil {
		return nil, stepError("PersistPlan", shared.ErrPersistenceConflict, err)
	}

	t.PoolSize = plan.PoolSize()
	if slices.Contains(createdStages, 1) {
		start := training.StartPosition
		t.Active = &start
	}

	return &BuildTrainingResult{
		TrainingID:      t.ID,
		Status:          BuildStatusCreated,
		Training:        t,
		Plan:            &plan,
		CreatedStageIDs: createdStages,
		PoolSize:        t.PoolSize,
	}, nil
}

func (h *BuildTrainingHandler) findExisting(ctx context.Context, id string) (*training.Training, error) {
	var found *training.Training
	err := h.breaker.Execute(ctx, func(ctx context.Context) error {
		t, err := h.store.FindTraining(ctx, id)
		if err != nil {
			return err
		}
		found = t
		return nil
	})
	if shared.IsNotFound(err) {
		return nil, nil
	}
	return found, err
}

func (h *BuildTrainingHandler) acquire(ctx context.Context, id string) (func(), error) {
	if h.locker == nil {
		return func() {}, nil
	}

	release, err := h.locker.Acquire(ctx, "training:"+id, h.config.LockTTL)
	if err != nil {
		return nil, err
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := release(ctx); err != nil {
			h.logger.Warn("failed to release build lock", logger.TrainingID(id), logger.Err(err))
		}
	}, nil
}

func (h *BuildTrainingHandler) finish(ctx context.Context, cmd BuildTrainingCommand, result *BuildTrainingResult, log *slog.Logger) {
	switch result.Status {
	case BuildStatusCreated:
		log.Info("training created",
			logger.PoolSize(result.PoolSize),
			logger.StageCount(result.Plan.StageCount()),
			logger.CycleCount(result.Plan.CycleCount()),
			slog.Any("created_stages", result.CreatedStageIDs),
			logger.Attempt(result.Attempts),
			logger.Latency(result.Duration),
		)
	case BuildStatusExisting:
		log.Info("training already exists",
			logger.PoolSize(result.Training.PoolSize),
			logger.Latency(result.Duration),
		)
	default:
		log.Error("training build degraded",
			slog.String("kind", kindName(result.Err)),
			logger.Attempt(result.Attempts),
			logger.Err(result.Err),
			logger.Latency(result.Duration),
		)
		h.report(ctx, cmd, result, log)
	}
}

func (h *BuildTrainingHandler) report(ctx context.Context, cmd BuildTrainingCommand, result *BuildTrainingResult, log *slog.Logger) {
	if h.reporter == nil || shared.IsValidation(result.Err) {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	err := h.reporter.ReportDegraded(ctx, training.DegradedBuild{
		TrainingID: cmd.TrainingID,
		SetIDs:     training.NormalizeIDs(cmd.SetIDs),
		Seed:       cmd.Seed,
		Reason:     result.Err.Error(),
		Kind:       kindName(result.Err),
		FailedAt:   h.config.Clock().UTC(),
		Attempts:   result.Attempts,
	})
	if err != nil {
		log.Warn("failed to report degraded build", logger.Err(err))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR CLASSIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// classify maps any error of an attempt onto one of the build failure kinds.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, shared.ErrTimeout) {
		return err
	}
	if shared.IsContextError(err) || ctx.Err() != nil {
		return shared.WrapError("training", "Build", shared.ErrTimeout, "build did not finish in time", err)
	}
	if circuitbreaker.IsRejection(err) {
		return shared.WrapError("training", "Build", shared.ErrTransportFailure, "store circuit is open", err)
	}
	if shared.KindOf(err) != nil {
		return err
	}
	return shared.WrapError("training", "Build", shared.ErrTransportFailure, "store call failed", err)
}

// stepError keeps a kind the backend already assigned and applies fallback otherwise.
func stepError(op string, fallback, err error) error {
	if shared.KindOf(err) != nil || shared.IsContextError(err) {
		return err
	}
	return shared.WrapError("training", op, fallback, "step failed", err)
}

func isTransportFailure(err error) bool {
	return errors.Is(err, shared.ErrTransportFailure)
}

func kindName(err error) string {
	if kind := shared.KindOf(err); kind != nil {
		return kind.Error()
	}
	return "unknown"
}

func degraded(trainingID string, err error, attempts int) *BuildTrainingResult {
	return &BuildTrainingResult{
		TrainingID: trainingID,
		Status:     BuildStatusDegraded,
		Attempts:   attempts,
		Err:        err,
	}
}

func existingResult(t *training.Training) *BuildTrainingResult {
	return &BuildTrainingResult{
		TrainingID: t.ID,
		Status:     BuildStatusExisting,
		Training:   t,
		PoolSize:   t.PoolSize,
	}
}
