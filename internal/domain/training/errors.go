package training

import "github.com/alem-hub/training-planner/internal/domain/shared"

// Training domain errors
var (
	ErrTrainingNotFound  = shared.NewDomainError("training", "Find", shared.ErrNotFound, "training not found")
	ErrInvalidTrainingID = shared.NewDomainError("training", "Validate", shared.ErrInvalidID, "invalid training ID")
	ErrNoSets            = shared.NewDomainError("training", "Validate", shared.ErrInvalidInput, "at least one set is required")
	ErrEmptyPool         = shared.NewDomainError("training", "ListItems", shared.ErrPoolUnavailable, "no items reachable from training sets")
	ErrPoolChanged       = shared.NewDomainError("training", "Resume", shared.ErrPoolUnavailable, "item pool changed since the plan was built")
)
