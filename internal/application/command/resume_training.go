package command

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/alem-hub/training-planner/internal/domain/shared"
	"github.com/alem-hub/training-planner/internal/domain/training"
	"github.com/alem-hub/training-planner/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESUME TRAINING COMMAND
// Re-runs persistence for a stored training from its seed. Every write is an
// upsert, so stages that already exist are matched and only missing structure
// is created.
// ══════════════════════════════════════════════════════════════════════════════

// ResumeTrainingCommand identifies the training to repair.
type ResumeTrainingCommand struct {
	TrainingID string
}

// Validate validates the command.
func (c ResumeTrainingCommand) Validate() error {
	return training.ValidateID(c.TrainingID)
}

// ResumeTrainingResult contains the outcome of a resume.
type ResumeTrainingResult struct {
	Training        *training.Training
	Plan            training.Plan
	CreatedStageIDs []int
	ResumedAt       time.Time
}

// ResumeTrainingHandler handles the ResumeTrainingCommand.
type ResumeTrainingHandler struct {
	store     training.Store
	logger    *slog.Logger
	txTimeout time.Duration
}

// NewResumeTrainingHandler creates a new ResumeTrainingHandler.
func NewResumeTrainingHandler(store training.Store, log *slog.Logger, txTimeout time.Duration) *ResumeTrainingHandler {
	if log == nil {
		log = slog.Default()
	}
	if txTimeout <= 0 {
		txTimeout = DefaultBuildTrainingHandlerConfig().TxTimeout
	}
	return &ResumeTrainingHandler{
		store:     store,
		logger:    log.With(logger.Component("resume_training")),
		txTimeout: txTimeout,
	}
}

// Handle executes the resume command.
func (h *ResumeTrainingHandler) Handle(ctx context.Context, cmd ResumeTrainingCommand) (*ResumeTrainingResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("resume_training: validation failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.txTimeout)
	defer cancel()

	var result *ResumeTrainingResult
	err := h.store.WithinTx(ctx, func(ctx context.Context, uow training.UnitOfWork) error {
		t, err := uow.FindTraining(ctx, cmd.TrainingID)
		if err != nil {
			return err
		}

		count, err := uow.CountItems(ctx, t.ID)
		if err != nil {
			return stepError("CountItems", shared.ErrPoolUnavailable, err)
		}
		if count == 0 {
			return training.ErrEmptyPool
		}
		// A different pool shuffles differently and would link items into
		// cycles that already hold others.
		if t.IsPlanned() && t.PoolSize != count {
			return training.ErrPoolChanged
		}

		itemIDs, err := uow.ListItemIDs(ctx, t.ID)
		if err != nil {
			return stepError("ListItemIDs", shared.ErrPoolUnavailable, err)
		}
		planned, err := uow.PlannedItemIDs(ctx, t.ID)
		if err != nil {
			return stepError("PlannedItemIDs", shared.ErrPoolUnavailable, err)
		}
		if !t.PoolMatches(itemIDs, planned) {
			return training.ErrPoolChanged
		}

		plan := training.NewPlan(itemIDs, t.Seed)
		created, err := uow.PersistPlan(ctx, t.ID, plan)
		if err != nil {
			return stepError("PersistPlan", shared.ErrPersistenceConflict, err)
		}

		t.PoolSize = plan.PoolSize()
		if t.Active == nil && slices.Contains(created, 1) {
			start := training.StartPosition
			t.Active = &start
		}
		result = &ResumeTrainingResult{
			Training:        t,
			Plan:            plan,
			CreatedStageIDs: created,
			ResumedAt:       time.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		err = classify(ctx, err)
		h.logger.Error("resume failed", logger.TrainingID(cmd.TrainingID), logger.Err(err))
		return nil, fmt.Errorf("resume_training: %w", err)
	}

	h.logger.Info("training resumed",
		logger.TrainingID(cmd.TrainingID),
		logger.StageCount(result.Plan.StageCount()),
		slog.Any("created_stages", result.CreatedStageIDs),
	)
	return result, nil
}
