package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/training-planner/internal/domain/training"
)

// Store implements training.Store and training.ContentWriter on PostgreSQL.
type Store struct {
	conn *Connection
}

// NewStore creates a new Store.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// ══════════════════════════════════════════════════════════════════════════════
// SQL
// ══════════════════════════════════════════════════════════════════════════════

const (
	lockTrainingSQL = `SELECT pg_advisory_xact_lock(hashtext($1))`

	insertTrainingSQL = `
		INSERT INTO trainings (id, seed, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
		RETURNING id`

	assignSetsSQL = `
		INSERT INTO training_sets (training_id, set_id)
		SELECT $1, id FROM sets WHERE id = ANY($2)
		ON CONFLICT DO NOTHING`

	selectTrainingSQL = `
		SELECT id, seed, pool_size, current_stage_id, current_cycle_id, created_at
		FROM trainings WHERE id = $1`

	selectTrainingSetsSQL = `
		SELECT set_id FROM training_sets WHERE training_id = $1 ORDER BY set_id`

	countItemsSQL = `
		SELECT COUNT(DISTINCT st.translation_id)
		FROM training_sets ts
		JOIN set_translations st ON st.set_id = ts.set_id
		WHERE ts.training_id = $1`

	listItemsSQL = `
		SELECT DISTINCT st.translation_id
		FROM training_sets ts
		JOIN set_translations st ON st.set_id = ts.set_id
		WHERE ts.training_id = $1
		ORDER BY st.translation_id`

	plannedItemsSQL = `
		SELECT DISTINCT translation_id
		FROM cycle_translations
		WHERE training_id = $1
		ORDER BY translation_id`

	updatePoolSizeSQL = `UPDATE trainings SET pool_size = $2 WHERE id = $1`

	// The UPDATE only sees a row in "inserted" when this statement created
	// the stage, so the Active stage is set once and never moved.
	upsertStageSQL = `
		WITH inserted AS (
			INSERT INTO stages (training_id, stage_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
			RETURNING stage_id
		), active AS (
			UPDATE trainings SET current_stage_id = inserted.stage_id
			FROM inserted
			WHERE trainings.id = $1
				AND inserted.stage_id = 1
				AND trainings.current_stage_id IS NULL
			RETURNING trainings.id
		)
		SELECT COUNT(*) FROM inserted`

	upsertCycleSQL = `
		WITH inserted AS (
			INSERT INTO cycles (training_id, stage_id, cycle_id)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
			RETURNING stage_id, cycle_id
		), active AS (
			UPDATE trainings SET current_cycle_id = inserted.cycle_id
			FROM inserted
			WHERE trainings.id = $1
				AND inserted.stage_id = 1
				AND inserted.cycle_id = 1
				AND trainings.current_cycle_id IS NULL
			RETURNING trainings.id
		)
		SELECT COUNT(*) FROM inserted`

	// Items are matched, never created; unknown ids are skipped.
	linkItemsSQL = `
		INSERT INTO cycle_translations (training_id, stage_id, cycle_id, translation_id)
		SELECT $1, $2, $3, t.id FROM translations t WHERE t.id = ANY($4)
		ON CONFLICT DO NOTHING`

	loadPlanSQL = `
		SELECT c.stage_id, c.cycle_id, ct.translation_id
		FROM cycles c
		LEFT JOIN cycle_translations ct
			ON ct.training_id = c.training_id
			AND ct.stage_id = c.stage_id
			AND ct.cycle_id = c.cycle_id
		WHERE c.training_id = $1
		ORDER BY c.stage_id, c.cycle_id, ct.translation_id`

	upsertSetSQL = `
		INSERT INTO sets (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

	upsertTranslationSQL = `
		INSERT INTO translations (id, word, translation) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET word = EXCLUDED.word, translation = EXCLUDED.translation, updated_at = NOW()`

	ensureSetSQL = `
		INSERT INTO sets (id, name) VALUES ($1, $1)
		ON CONFLICT DO NOTHING`

	linkTranslationSQL = `
		INSERT INTO set_translations (set_id, translation_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`
)

// ══════════════════════════════════════════════════════════════════════════════
// READER
// ══════════════════════════════════════════════════════════════════════════════

// FindTraining returns the training with the given id.
func (s *Store) FindTraining(ctx context.Context, id string) (*training.Training, error) {
	if s.conn.IsClosed() {
		return nil, classify("FindTraining", ErrConnectionClosed)
	}
	t, err := findTraining(ctx, s.conn.Pool(), id)
	return t, classify("FindTraining", err)
}

// LoadPlan returns the persisted plan of a training.
func (s *Store) LoadPlan(ctx context.Context, trainingID string) (*training.Plan, error) {
	rows, err := s.conn.Query(ctx, loadPlanSQL, trainingID)
	if err != nil {
		return nil, classify("LoadPlan", err)
	}
	defer rows.Close()

	plan := &training.Plan{}
	for rows.Next() {
		var stageID, cycleID int
		var itemID *string
		if err := rows.Scan(&stageID, &cycleID, &itemID); err != nil {
			return nil, classify("LoadPlan", err)
		}
		if itemID == nil {
			plan.AddLink(stageID, cycleID, "")
		} else {
			plan.AddLink(stageID, cycleID, *itemID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classify("LoadPlan", err)
	}
	return plan, nil
}

// CountItems returns the number of distinct items reachable from the training.
func (s *Store) CountItems(ctx context.Context, trainingID string) (int, error) {
	if s.conn.IsClosed() {
		return 0, classify("CountItems", ErrConnectionClosed)
	}
	n, err := countItems(ctx, s.conn.Pool(), trainingID)
	return n, classify("CountItems", err)
}

// WithinTx runs fn in a read-write transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, uow training.UnitOfWork) error) error {
	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(ctx, &unit{tx: tx})
	})
	return classify("WithinTx", err)
}

// Close closes the pool.
func (s *Store) Close(context.Context) error {
	s.conn.Close()
	return nil
}

func findTraining(ctx context.Context, q Querier, id string) (*training.Training, error) {
	var (
		t                training.Training
		stageID, cycleID *int
		createdAt        time.Time
	)
	err := q.QueryRow(ctx, selectTrainingSQL, id).
		Scan(&t.ID, &t.Seed, &t.PoolSize, &stageID, &cycleID, &createdAt)
	if IsNoRows(err) {
		return nil, training.ErrTrainingNotFound
	}
	if err != nil {
		return nil, err
	}
	t.CreatedAt = createdAt.UTC()
	if stageID != nil {
		t.Active = &training.Position{StageID: *stageID}
		if cycleID != nil {
			t.Active.CycleID = *cycleID
		}
	}

	rows, err := q.Query(ctx, selectTrainingSetsSQL, id)
	if err != nil {
		return nil, err
	}
	t.SetIDs, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func countItems(ctx context.Context, q Querier, trainingID string) (int, error) {
	var n int
	err := q.QueryRow(ctx, countItemsSQL, trainingID).Scan(&n)
	return n, err
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

type unit struct {
	tx pgx.Tx
}

// AssignSets inserts the training under a per-training advisory lock and
// links it to the sets that exist.
func (u *unit) AssignSets(ctx context.Context, t *training.Training, setIDs []string) (bool, error) {
	if _, err := u.tx.Exec(ctx, lockTrainingSQL, t.ID); err != nil {
		return false, classify("AssignSets", err)
	}

	var id string
	err := u.tx.QueryRow(ctx, insertTrainingSQL, t.ID, t.Seed, t.CreatedAt).Scan(&id)
	if IsNoRows(err) {
		stored, err := findTraining(ctx, u.tx, t.ID)
		if err != nil {
			return false, classify("AssignSets", err)
		}
		*t = *stored
		return false, nil
	}
	if err != nil {
		return false, classify("AssignSets", err)
	}

	if _, err := u.tx.Exec(ctx, assignSetsSQL, t.ID, setIDs); err != nil {
		return false, classify("AssignSets", err)
	}

	rows, err := u.tx.Query(ctx, selectTrainingSetsSQL, t.ID)
	if err != nil {
		return false, classify("AssignSets", err)
	}
	linked, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return false, classify("AssignSets", err)
	}
	t.SetIDs = linked
	return true, nil
}

func (u *unit) FindTraining(ctx context.Context, id string) (*training.Training, error) {
	t, err := findTraining(ctx, u.tx, id)
	return t, classify("FindTraining", err)
}

func (u *unit) CountItems(ctx context.Context, trainingID string) (int, error) {
	n, err := countItems(ctx, u.tx, trainingID)
	return n, classify("CountItems", err)
}

func (u *unit) ListItemIDs(ctx context.Context, trainingID string) ([]string, error) {
	ids, err := u.collectIDs(ctx, listItemsSQL, trainingID)
	return ids, classify("ListItemIDs", err)
}

func (u *unit) PlannedItemIDs(ctx context.Context, trainingID string) ([]string, error) {
	ids, err := u.collectIDs(ctx, plannedItemsSQL, trainingID)
	return ids, classify("PlannedItemIDs", err)
}

func (u *unit) collectIDs(ctx context.Context, query, trainingID string) ([]string, error) {
	rows, err := u.tx.Query(ctx, query, trainingID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// PersistPlan sends the whole plan as one batch.
func (u *unit) PersistPlan(ctx context.Context, trainingID string, plan training.Plan) ([]int, error) {
	created := []int{}
	batch := planBatch(trainingID, plan, func(stageID int) {
		created = append(created, stageID)
	})
	if err := u.tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, classify("PersistPlan", err)
	}
	return created, nil
}

// planBatch queues the statements of a plan in stage, cycle, link order.
// onCreated is called for every stage the batch inserted.
func planBatch(trainingID string, plan training.Plan, onCreated func(stageID int)) *pgx.Batch {
	batch := &pgx.Batch{}
	batch.Queue(updatePoolSizeSQL, trainingID, plan.PoolSize())

	for _, stage := range plan.Stages {
		stageID := stage.ID
		batch.Queue(upsertStageSQL, trainingID, stageID).QueryRow(func(row pgx.Row) error {
			var inserted int
			if err := row.Scan(&inserted); err != nil {
				return err
			}
			if inserted > 0 {
				onCreated(stageID)
			}
			return nil
		})

		for _, cycle := range stage.Cycles {
			batch.Queue(upsertCycleSQL, trainingID, stageID, cycle.ID)
			if len(cycle.ItemIDs) > 0 {
				batch.Queue(linkItemsSQL, trainingID, stageID, cycle.ID, cycle.ItemIDs)
			}
		}
	}
	return batch
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTENT
// ══════════════════════════════════════════════════════════════════════════════

// UpsertSet creates or renames a set.
func (s *Store) UpsertSet(ctx context.Context, set training.ContentSet) error {
	_, err := s.conn.Exec(ctx, upsertSetSQL, set.ID, set.Name)
	return classify("UpsertSet", err)
}

// UpsertTranslation creates or updates an item and links it to the set.
func (s *Store) UpsertTranslation(ctx context.Context, setID string, item training.Translation) error {
	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, ensureSetSQL, setID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, upsertTranslationSQL, item.ID, item.Word, item.Translation); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, linkTranslationSQL, setID, item.ID)
		return err
	})
	return classify("UpsertTranslation", err)
}

var (
	_ training.Store         = (*Store)(nil)
	_ training.ContentWriter = (*Store)(nil)
)
