package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/training-planner/internal/domain/shared"
	"github.com/alem-hub/training-planner/internal/domain/training"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := Open(context.Background(), Config{Path: MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewStore(conn)
}

func seedSet(t *testing.T, s *Store, setID string, itemIDs ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertSet(ctx, training.ContentSet{ID: setID, Name: setID}))
	for _, id := range itemIDs {
		require.NoError(t, s.UpsertTranslation(ctx, setID, training.Translation{ID: id, Word: id, Translation: id}))
	}
}

func items(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%03d", prefix, i)
	}
	return ids
}

func newTraining(t *testing.T, id string, setIDs ...string) *training.Training {
	t.Helper()
	tr, err := training.NewTraining(id, 42, setIDs, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return tr
}

func TestStore_AssignSets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSet(t, s, "verbs", "v1")

	first := newTraining(t, "tr-1", "verbs", "missing")
	err := s.WithinTx(ctx, func(ctx context.Context, uow training.UnitOfWork) error {
		created, err := uow.AssignSets(ctx, first, first.SetIDs)
		require.NoError(t, err)
		assert.True(t, created)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"verbs"}, first.SetIDs)

	second, err := training.NewTraining("tr-1", 99, []string{"other"}, time.Now())
	require.NoError(t, err)
	err = s.WithinTx(ctx, func(ctx context.Context, uow training.UnitOfWork) error {
		created, err := uow.AssignSets(ctx, second, second.SetIDs)
		require.NoError(t, err)
		assert.False(t, created)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), second.Seed)
	assert.Equal(t, []string{"verbs"}, second.SetIDs)
	assert.True(t, second.CreatedAt.Equal(first.CreatedAt))
}

func TestStore_ListItemIDs_DistinctAcrossSets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSet(t, s, "a", "x", "y")
	seedSet(t, s, "b", "y", "z")

	tr := newTraining(t, "tr-1", "a", "b")
	var ids []string
	err := s.WithinTx(ctx, func(ctx context.Context, uow training.UnitOfWork) error {
		if _, err := uow.AssignSets(ctx, tr, tr.SetIDs); err != nil {
			return err
		}
		var err error
		ids, err = uow.ListItemIDs(ctx, tr.ID)
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, ids)

	n, err := s.CountItems(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStore_PersistPlan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pool := items("w", 30)
	seedSet(t, s, "words", pool...)

	tr := newTraining(t, "tr-1", "words")
	plan := training.NewPlan(pool, tr.Seed)

	var created []int
	err := s.WithinTx(ctx, func(ctx context.Context, uow training.UnitOfWork) error {
		if _, err := uow.AssignSets(ctx, tr, tr.SetIDs); err != nil {
			return err
		}
		var err error
		created, err = uow.PersistPlan(ctx, tr.ID, plan)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, created)

	stored, err := s.FindTraining(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, stored.PoolSize)
	assert.Equal(t, &training.Position{StageID: 1, CycleID: 1}, stored.Active)

	loaded, err := s.LoadPlan(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.Sorted().Groups(), loaded.Groups())
}

func TestStore_PlannedItemIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pool := items("w", 10)
	seedSet(t, s, "words", pool...)
	tr := newTraining(t, "tr-1", "words")

	err := s.WithinTx(ctx, func(ctx context.Context, uow training.UnitOfWork) error {
		if _, err := uow.AssignSets(ctx, tr, tr.SetIDs); err != nil {
			return err
		}
		before, err := uow.PlannedItemIDs(ctx, tr.ID)
		require.NoError(t, err)
		assert.Empty(t, before)

		if _, err := uow.PersistPlan(ctx, tr.ID, training.NewPlan(pool, tr.Seed)); err != nil {
			return err
		}
		after, err := uow.PlannedItemIDs(ctx, tr.ID)
		require.NoError(t, err)
		assert.Equal(t, pool, after)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_PersistPlan_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pool := items("w", 14)
	seedSet(t, s, "words", pool...)
	tr := newTraining(t, "tr-1", "words")
	plan := training.NewPlan(pool, tr.Seed)

	persist := func() []int {
		var created []int
		err := s.WithinTx(ctx, func(ctx context.Context, uow training.UnitOfWork) error {
			if _, err := uow.AssignSets(ctx, tr, tr.SetIDs); err != nil {
				return err
			}
			var err error
			created, err = uow.PersistPlan(ctx, tr.ID, plan)
			return err
		})
		require.NoError(t, err)
		return created
	}

	assert.Equal(t, []int{1, 2}, persist())
	assert.Empty(t, persist())

	loaded, err := s.LoadPlan(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.StageCount())
	assert.Equal(t, 14, loaded.PoolSize())
}

func TestStore_PersistPlan_CompletesPartialPlan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pool := items("w", 100)
	seedSet(t, s, "words", pool...)
	tr := newTraining(t, "tr-1", "words")
	plan := training.NewPlan(pool, tr.Seed)

	err := s.WithinTx(ctx, func(ctx context.Context, uow training.UnitOfWork) error {
		if _, err := uow.AssignSets(ctx, tr, tr.SetIDs); err != nil {
			return err
		}
		_, err := uow.PersistPlan(ctx, tr.ID, plan.Truncate(2))
		return err
	})
	require.NoError(t, err)

	var created []int
	err = s.WithinTx(ctx, func(ctx context.Context, uow training.UnitOfWork) error {
		var err error
		created, err = uow.PersistPlan(ctx, tr.ID, plan)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5}, created)

	loaded, err := s.LoadPlan(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.Sorted().Groups(), loaded.Groups())

	stored, err := s.FindTraining(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, &training.Position{StageID: 1, CycleID: 1}, stored.Active)
}

func TestStore_WithinTx_RollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSet(t, s, "words", "w1")
	tr := newTraining(t, "tr-1", "words")

	err := s.WithinTx(ctx, func(ctx context.Context, uow training.UnitOfWork) error {
		if _, err := uow.AssignSets(ctx, tr, tr.SetIDs); err != nil {
			return err
		}
		return training.ErrEmptyPool
	})
	assert.ErrorIs(t, err, shared.ErrPoolUnavailable)

	_, err = s.FindTraining(ctx, tr.ID)
	assert.ErrorIs(t, err, training.ErrTrainingNotFound)
}

func TestStore_CancelledContextIsTimeout(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.CountItems(ctx, "tr-1")
	assert.ErrorIs(t, err, shared.ErrTimeout)
}

func TestStore_UpsertTranslation_Updates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSet(t, s, "words", "w1")

	require.NoError(t, s.UpsertTranslation(ctx, "words", training.Translation{ID: "w1", Word: "cat", Translation: "мысық"}))

	var word string
	require.NoError(t, s.conn.DB().GetContext(ctx, &word, `SELECT word FROM translations WHERE id = ?`, "w1"))
	assert.Equal(t, "cat", word)

	var links int
	require.NoError(t, s.conn.DB().GetContext(ctx, &links, `SELECT COUNT(*) FROM set_translations`))
	assert.Equal(t, 1, links)
}

func TestConfig_DSN(t *testing.T) {
	assert.Equal(t,
		"file::memory:?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate",
		Config{Path: MemoryPath, BusyTimeout: 5 * time.Second}.DSN())
	assert.Equal(t,
		"data/x.db?_foreign_keys=on&_busy_timeout=250&_txlock=immediate",
		Config{Path: "data/x.db", BusyTimeout: 250 * time.Millisecond}.DSN())
}
