package training

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implemented by infrastructure/persistence (neo4j, postgres, sqlite).
// ══════════════════════════════════════════════════════════════════════════════

// Reader reads persisted trainings outside of a unit of work.
type Reader interface {
	// FindTraining returns the training with the given id.
	// Returns ErrTrainingNotFound if it does not exist.
	FindTraining(ctx context.Context, id string) (*Training, error)

	// LoadPlan returns the persisted stages, cycles, and item links of a training,
	// ordered by stage, cycle, and item id.
	LoadPlan(ctx context.Context, trainingID string) (*Plan, error)

	// CountItems returns the number of distinct items reachable from the
	// training through its sets.
	CountItems(ctx context.Context, trainingID string) (int, error)
}

// Store is the entry point of a persistence backend.
type Store interface {
	Reader

	// WithinTx runs fn in a single read-write transaction. The transaction is
	// committed if fn returns nil and rolled back otherwise; the underlying
	// session is released on every path.
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error

	// Close releases the backend's connections.
	Close(ctx context.Context) error
}

// UnitOfWork is the set of writes a build performs atomically.
type UnitOfWork interface {
	// AssignSets creates t and links it to the sets that exist among setIDs.
	// created is false when a training with the same id is already stored;
	// in that case t is overwritten with the stored training and nothing is written.
	AssignSets(ctx context.Context, t *Training, setIDs []string) (created bool, err error)

	// FindTraining reads a training inside the transaction.
	FindTraining(ctx context.Context, id string) (*Training, error)

	// CountItems returns the number of distinct items reachable from the training.
	CountItems(ctx context.Context, trainingID string) (int, error)

	// ListItemIDs returns the distinct items reachable from the training, ascending.
	ListItemIDs(ctx context.Context, trainingID string) ([]string, error)

	// PlannedItemIDs returns the distinct items linked from the persisted
	// cycles of the training, ascending. Empty before the first PersistPlan.
	PlannedItemIDs(ctx context.Context, trainingID string) ([]string, error)

	// PersistPlan upserts every stage, cycle, and item link of plan and records
	// the pool size on the training. Stage 1 and cycle 1 of stage 1 are linked
	// from the training's Active position only when this call created them.
	// Returns the ids of the stages this call created.
	PersistPlan(ctx context.Context, trainingID string, plan Plan) (createdStageIDs []int, err error)
}

// ContentWriter upserts the content that item pools are read from.
type ContentWriter interface {
	// UpsertSet creates or renames a set.
	UpsertSet(ctx context.Context, set ContentSet) error

	// UpsertTranslation creates or updates an item and links it to the set.
	UpsertTranslation(ctx context.Context, setID string, item Translation) error
}
