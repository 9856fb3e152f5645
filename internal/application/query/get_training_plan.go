// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/training-planner/internal/domain/training"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET TRAINING PLAN QUERY
// Reads a stored training back as Training → Stage → Cycle → items together
// with its Active position and the current size of its item pool.
// ══════════════════════════════════════════════════════════════════════════════

// GetTrainingPlanQuery contains the parameters of the query.
type GetTrainingPlanQuery struct {
	TrainingID string

	// IncludeItems adds the item ids of every cycle to the result.
	IncludeItems bool
}

// Validate validates the query.
func (q GetTrainingPlanQuery) Validate() error {
	return training.ValidateID(q.TrainingID)
}

// TrainingPlanDTO is the read model of a stored training.
type TrainingPlanDTO struct {
	TrainingID string    `json:"training_id"`
	Seed       int64     `json:"seed"`
	SetIDs     []string  `json:"set_ids"`
	CreatedAt  time.Time `json:"created_at"`

	// PlannedPoolSize is the pool size recorded when the plan was persisted.
	PlannedPoolSize int `json:"planned_pool_size"`

	// CurrentPoolSize is the pool size right now. It differs from
	// PlannedPoolSize when sets changed after the build.
	CurrentPoolSize int `json:"current_pool_size"`

	Active *PositionDTO `json:"active,omitempty"`
	Stages []StageDTO   `json:"stages"`

	StageCount int `json:"stage_count"`
	CycleCount int `json:"cycle_count"`

	// Plan is the full plan, ordered by stage, cycle, and item id.
	Plan *training.Plan `json:"-"`
}

// PositionDTO is the Active position.
type PositionDTO struct {
	StageID int `json:"stage_id"`
	CycleID int `json:"cycle_id"`
}

// StageDTO summarises one stage.
type StageDTO struct {
	ID         int        `json:"id"`
	CycleCount int        `json:"cycle_count"`
	ItemCount  int        `json:"item_count"`
	Cycles     []CycleDTO `json:"cycles,omitempty"`
}

// CycleDTO is one cycle of a stage.
type CycleDTO struct {
	ID      int      `json:"id"`
	ItemIDs []string `json:"item_ids"`
}

// GetTrainingPlanHandler handles the GetTrainingPlanQuery.
type GetTrainingPlanHandler struct {
	reader training.Reader
}

// NewGetTrainingPlanHandler creates a new GetTrainingPlanHandler.
func NewGetTrainingPlanHandler(reader training.Reader) *GetTrainingPlanHandler {
	return &GetTrainingPlanHandler{reader: reader}
}

// Handle executes the query.
func (h *GetTrainingPlanHandler) Handle(ctx context.Context, q GetTrainingPlanQuery) (*TrainingPlanDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_training_plan: %w", err)
	}

	t, err := h.reader.FindTraining(ctx, q.TrainingID)
	if err != nil {
		return nil, fmt.Errorf("get_training_plan: %w", err)
	}

	plan, err := h.reader.LoadPlan(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("get_training_plan: failed to load plan: %w", err)
	}

	poolSize, err := h.reader.CountItems(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("get_training_plan: failed to count items: %w", err)
	}

	dto := &TrainingPlanDTO{
		TrainingID:      t.ID,
		Seed:            t.Seed,
		SetIDs:          t.SetIDs,
		CreatedAt:       t.CreatedAt,
		PlannedPoolSize: t.PoolSize,
		CurrentPoolSize: poolSize,
		Stages:          make([]StageDTO, 0, len(plan.Stages)),
		StageCount:      plan.StageCount(),
		CycleCount:      plan.CycleCount(),
		Plan:            plan,
	}
	if t.Active != nil {
		dto.Active = &PositionDTO{StageID: t.Active.StageID, CycleID: t.Active.CycleID}
	}

	for _, stage := range plan.Stages {
		s := StageDTO{ID: stage.ID, CycleCount: len(stage.Cycles)}
		for _, cycle := range stage.Cycles {
			s.ItemCount += len(cycle.ItemIDs)
			if q.IncludeItems {
				s.Cycles = append(s.Cycles, CycleDTO{ID: cycle.ID, ItemIDs: cycle.ItemIDs})
			}
		}
		dto.Stages = append(dto.Stages, s)
	}

	return dto, nil
}
