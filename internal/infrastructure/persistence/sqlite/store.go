package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/alem-hub/training-planner/internal/domain/training"
)

// Store implements training.Store and training.ContentWriter on SQLite.
type Store struct {
	conn *Connection
}

// NewStore creates a new Store.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// querier is satisfied by both *sqlx.DB and *sqlx.Tx.
type querier interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

type trainingRow struct {
	ID             string        `db:"id"`
	Seed           int64         `db:"seed"`
	PoolSize       int           `db:"pool_size"`
	CurrentStageID sql.NullInt64 `db:"current_stage_id"`
	CurrentCycleID sql.NullInt64 `db:"current_cycle_id"`
	CreatedAt      time.Time     `db:"created_at"`
}

func (r trainingRow) toEntity(setIDs []string) *training.Training {
	t := &training.Training{
		ID:        r.ID,
		Seed:      r.Seed,
		SetIDs:    setIDs,
		PoolSize:  r.PoolSize,
		CreatedAt: r.CreatedAt.UTC(),
	}
	if r.CurrentStageID.Valid {
		t.Active = &training.Position{
			StageID: int(r.CurrentStageID.Int64),
			CycleID: int(r.CurrentCycleID.Int64),
		}
	}
	return t
}

// ══════════════════════════════════════════════════════════════════════════════
// READER
// ══════════════════════════════════════════════════════════════════════════════

// FindTraining returns the training with the given id.
func (s *Store) FindTraining(ctx context.Context, id string) (*training.Training, error) {
	t, err := findTraining(ctx, s.conn.db, id)
	return t, classify("FindTraining", err)
}

// LoadPlan returns the persisted plan of a training.
func (s *Store) LoadPlan(ctx context.Context, trainingID string) (*training.Plan, error) {
	var rows []struct {
		StageID       int            `db:"stage_id"`
		CycleID       int            `db:"cycle_id"`
		TranslationID sql.NullString `db:"translation_id"`
	}
	err := sqlx.SelectContext(ctx, s.conn.db, &rows, `
		SELECT c.stage_id, c.cycle_id, ct.translation_id
		FROM cycles c
		LEFT JOIN cycle_translations ct
			ON ct.training_id = c.training_id
			AND ct.stage_id = c.stage_id
			AND ct.cycle_id = c.cycle_id
		WHERE c.training_id = ?
		ORDER BY c.stage_id, c.cycle_id, ct.translation_id`, trainingID)
	if err != nil {
		return nil, classify("LoadPlan", err)
	}

	plan := &training.Plan{}
	for _, row := range rows {
		plan.AddLink(row.StageID, row.CycleID, row.TranslationID.String)
	}
	return plan, nil
}

// CountItems returns the number of distinct items reachable from the training.
func (s *Store) CountItems(ctx context.Context, trainingID string) (int, error) {
	n, err := countItems(ctx, s.conn.db, trainingID)
	return n, classify("CountItems", err)
}

// WithinTx runs fn in a read-write transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, uow training.UnitOfWork) error) error {
	err := s.conn.WithTx(ctx, func(tx *sqlx.Tx) error {
		return fn(ctx, &unit{tx: tx})
	})
	return classify("WithinTx", err)
}

// Close closes the connection.
func (s *Store) Close(context.Context) error {
	return s.conn.Close()
}

func findTraining(ctx context.Context, q querier, id string) (*training.Training, error) {
	var row trainingRow
	err := sqlx.GetContext(ctx, q, &row, `
		SELECT id, seed, pool_size, current_stage_id, current_cycle_id, created_at
		FROM trainings WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, training.ErrTrainingNotFound
	}
	if err != nil {
		return nil, err
	}

	setIDs := []string{}
	if err := sqlx.SelectContext(ctx, q, &setIDs,
		`SELECT set_id FROM training_sets WHERE training_id = ? ORDER BY set_id`, id); err != nil {
		return nil, err
	}
	return row.toEntity(setIDs), nil
}

func countItems(ctx context.Context, q querier, trainingID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n, `
		SELECT COUNT(DISTINCT st.translation_id)
		FROM training_sets ts
		JOIN set_translations st ON st.set_id = ts.set_id
		WHERE ts.training_id = ?`, trainingID)
	return n, err
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

type unit struct {
	tx *sqlx.Tx
}

// AssignSets inserts the training and links it to the existing sets.
func (u *unit) AssignSets(ctx context.Context, t *training.Training, setIDs []string) (bool, error) {
	res, err := u.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO trainings (id, seed, created_at) VALUES (?, ?, ?)`,
		t.ID, t.Seed, t.CreatedAt)
	if err != nil {
		return false, classify("AssignSets", err)
	}
	if !inserted(res) {
		stored, err := findTraining(ctx, u.tx, t.ID)
		if err != nil {
			return false, classify("AssignSets", err)
		}
		*t = *stored
		return false, nil
	}

	if len(setIDs) > 0 {
		query, args, err := sqlx.In(`
			INSERT OR IGNORE INTO training_sets (training_id, set_id)
			SELECT ?, id FROM sets WHERE id IN (?)`, t.ID, setIDs)
		if err != nil {
			return false, fmt.Errorf("failed to build set query: %w", err)
		}
		if _, err := u.tx.ExecContext(ctx, u.tx.Rebind(query), args...); err != nil {
			return false, classify("AssignSets", err)
		}
	}

	linked := []string{}
	if err := sqlx.SelectContext(ctx, u.tx, &linked,
		`SELECT set_id FROM training_sets WHERE training_id = ? ORDER BY set_id`, t.ID); err != nil {
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
	ids := []string{}
	err := sqlx.SelectContext(ctx, u.tx, &ids, `
		SELECT DISTINCT st.translation_id
		FROM training_sets ts
		JOIN set_translations st ON st.set_id = ts.set_id
		WHERE ts.training_id = ?
		ORDER BY st.translation_id`, trainingID)
	if err != nil {
		return nil, classify("ListItemIDs", err)
	}
	return ids, nil
}

func (u *unit) PlannedItemIDs(ctx context.Context, trainingID string) ([]string, error) {
	ids := []string{}
	err := sqlx.SelectContext(ctx, u.tx, &ids, `
		SELECT DISTINCT translation_id
		FROM cycle_translations
		WHERE training_id = ?
		ORDER BY translation_id`, trainingID)
	if err != nil {
		return nil, classify("PlannedItemIDs", err)
	}
	return ids, nil
}

// PersistPlan upserts stages, cycles, and links. The Active columns are only
// set by the statement that inserted stage 1 / cycle 1, and only while NULL.
func (u *unit) PersistPlan(ctx context.Context, trainingID string, plan training.Plan) ([]int, error) {
	if _, err := u.tx.ExecContext(ctx,
		`UPDATE trainings SET pool_size = ? WHERE id = ?`, plan.PoolSize(), trainingID); err != nil {
		return nil, classify("PersistPlan", err)
	}

	insertStage, err := u.tx.PreparexContext(ctx,
		`INSERT OR IGNORE INTO stages (training_id, stage_id) VALUES (?, ?)`)
	if err != nil {
		return nil, classify("PersistPlan", err)
	}
	defer insertStage.Close()

	insertCycle, err := u.tx.PreparexContext(ctx,
		`INSERT OR IGNORE INTO cycles (training_id, stage_id, cycle_id) VALUES (?, ?, ?)`)
	if err != nil {
		return nil, classify("PersistPlan", err)
	}
	defer insertCycle.Close()

	start := training.StartPosition
	created := []int{}
	for _, stage := range plan.Stages {
		res, err := insertStage.ExecContext(ctx, trainingID, stage.ID)
		if err != nil {
			return nil, classify("PersistPlan", err)
		}
		if inserted(res) {
			created = append(created, stage.ID)
			if stage.ID == start.StageID {
				if _, err := u.tx.ExecContext(ctx, `
					UPDATE trainings SET current_stage_id = ?
					WHERE id = ? AND current_stage_id IS NULL`, stage.ID, trainingID); err != nil {
					return nil, classify("PersistPlan", err)
				}
			}
		}

		for _, cycle := range stage.Cycles {
			res, err := insertCycle.ExecContext(ctx, trainingID, stage.ID, cycle.ID)
			if err != nil {
				return nil, classify("PersistPlan", err)
			}
			if inserted(res) && stage.ID == start.StageID && cycle.ID == start.CycleID {
				if _, err := u.tx.ExecContext(ctx, `
					UPDATE trainings SET current_cycle_id = ?
					WHERE id = ? AND current_cycle_id IS NULL`, cycle.ID, trainingID); err != nil {
					return nil, classify("PersistPlan", err)
				}
			}

			if err := u.linkItems(ctx, trainingID, stage.ID, cycle); err != nil {
				return nil, err
			}
		}
	}
	return created, nil
}

// linkItems links a cycle to the items that exist; unknown ids are skipped.
func (u *unit) linkItems(ctx context.Context, trainingID string, stageID int, cycle training.Cycle) error {
	if len(cycle.ItemIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`
		INSERT OR IGNORE INTO cycle_translations (training_id, stage_id, cycle_id, translation_id)
		SELECT ?, ?, ?, id FROM translations WHERE id IN (?)`,
		trainingID, stageID, cycle.ID, cycle.ItemIDs)
	if err != nil {
		return fmt.Errorf("failed to build link query: %w", err)
	}
	if _, err := u.tx.ExecContext(ctx, u.tx.Rebind(query), args...); err != nil {
		return classify("PersistPlan", err)
	}
	return nil
}

func inserted(res sql.Result) bool {
	n, err := res.RowsAffected()
	return err == nil && n > 0
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTENT
// ══════════════════════════════════════════════════════════════════════════════

// UpsertSet creates or renames a set.
func (s *Store) UpsertSet(ctx context.Context, set training.ContentSet) error {
	_, err := s.conn.db.ExecContext(ctx, `
		INSERT INTO sets (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`, set.ID, set.Name)
	return classify("UpsertSet", err)
}

// UpsertTranslation creates or updates an item and links it to the set.
func (s *Store) UpsertTranslation(ctx context.Context, setID string, item training.Translation) error {
	err := s.conn.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO sets (id, name) VALUES (?, ?)`, setID, setID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO translations (id, word, translation) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET word = excluded.word, translation = excluded.translation`,
			item.ID, item.Word, item.Translation); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO set_translations (set_id, translation_id) VALUES (?, ?)`, setID, item.ID)
		return err
	})
	return classify("UpsertTranslation", err)
}

var (
	_ training.Store         = (*Store)(nil)
	_ training.ContentWriter = (*Store)(nil)
)
