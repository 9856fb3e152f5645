package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/training-planner/internal/domain/shared"
	"github.com/alem-hub/training-planner/internal/domain/training"
	"github.com/alem-hub/training-planner/pkg/logger"
)

func buildForResume(t *testing.T, store *memStore) *BuildTrainingResult {
	t.Helper()
	result := newHandler(store, nil, nil).Handle(context.Background(), BuildTrainingCommand{
		TrainingID: "tr-1",
		SetIDs:     []string{"verbs"},
	})
	require.Equal(t, BuildStatusCreated, result.Status, "err: %v", result.Err)
	return result
}

func TestResumeTraining_RecreatesMissingStages(t *testing.T) {
	store := newMemStore()
	store.addSet("verbs", 100)
	built := buildForResume(t, store)

	// Simulate a crash after stage 2 was written.
	for sid := 3; sid <= 5; sid++ {
		delete(store.cycles["tr-1"], sid)
	}

	result, err := NewResumeTrainingHandler(store, logger.Discard(), time.Second).
		Handle(context.Background(), ResumeTrainingCommand{TrainingID: "tr-1"})

	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5}, result.CreatedStageIDs)
	assert.Equal(t, *built.Plan, result.Plan)
	assert.Equal(t, *built.Plan, store.planOf("tr-1"))
	assert.Equal(t, &training.StartPosition, result.Training.Active)
}

func TestResumeTraining_CompletePlanIsUntouched(t *testing.T) {
	store := newMemStore()
	store.addSet("verbs", 40)
	built := buildForResume(t, store)

	result, err := NewResumeTrainingHandler(store, logger.Discard(), time.Second).
		Handle(context.Background(), ResumeTrainingCommand{TrainingID: "tr-1"})

	require.NoError(t, err)
	assert.Empty(t, result.CreatedStageIDs)
	assert.Equal(t, *built.Plan, store.planOf("tr-1"))
}

func TestResumeTraining_RejectsChangedPool(t *testing.T) {
	store := newMemStore()
	store.addSet("verbs", 40)
	buildForResume(t, store)
	store.addSet("verbs", 45)

	_, err := NewResumeTrainingHandler(store, logger.Discard(), time.Second).
		Handle(context.Background(), ResumeTrainingCommand{TrainingID: "tr-1"})

	assert.ErrorIs(t, err, training.ErrPoolChanged)
	assert.ErrorIs(t, err, shared.ErrPoolUnavailable)
}

func TestResumeTraining_RejectsSwappedItem(t *testing.T) {
	store := newMemStore()
	items := store.addSet("verbs", 40)
	built := buildForResume(t, store)

	// Same size, different membership.
	items[len(items)-1] = "verbs-item-999"

	_, err := NewResumeTrainingHandler(store, logger.Discard(), time.Second).
		Handle(context.Background(), ResumeTrainingCommand{TrainingID: "tr-1"})

	assert.ErrorIs(t, err, training.ErrPoolChanged)
	assert.Equal(t, *built.Plan, store.planOf("tr-1"))
}

func TestResumeTraining_UnknownTraining(t *testing.T) {
	_, err := NewResumeTrainingHandler(newMemStore(), logger.Discard(), time.Second).
		Handle(context.Background(), ResumeTrainingCommand{TrainingID: "nope"})

	assert.ErrorIs(t, err, training.ErrTrainingNotFound)
}
