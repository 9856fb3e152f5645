package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/training-planner/internal/application/command"
	"github.com/alem-hub/training-planner/internal/domain/shared"
	"github.com/alem-hub/training-planner/internal/domain/training"
	"github.com/alem-hub/training-planner/pkg/logger"
)

type fakeQueue struct {
	mu         sync.Mutex
	builds     []training.DegradedBuild
	resolved   []string
	pendingErr error
	resolveErr error
	limit      int
}

func (q *fakeQueue) Pending(_ context.Context, limit int) ([]training.DegradedBuild, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.limit = limit
	if q.pendingErr != nil {
		return nil, q.pendingErr
	}
	if limit > 0 && len(q.builds) > limit {
		return q.builds[:limit], nil
	}
	return q.builds, nil
}

func (q *fakeQueue) Resolve(_ context.Context, trainingID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.resolveErr != nil {
		return q.resolveErr
	}
	q.resolved = append(q.resolved, trainingID)
	return nil
}

type fakeBuilder struct {
	mu       sync.Mutex
	commands []command.BuildTrainingCommand
	failing  map[string]bool
}

func (b *fakeBuilder) Handle(_ context.Context, cmd command.BuildTrainingCommand) *command.BuildTrainingResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands = append(b.commands, cmd)
	if b.failing[cmd.TrainingID] {
		return &command.BuildTrainingResult{
			TrainingID: cmd.TrainingID,
			Status:     command.BuildStatusDegraded,
			Err:        shared.WrapError("training", "Build", shared.ErrTransportFailure, "store down", errors.New("dial")),
		}
	}
	return &command.BuildTrainingResult{TrainingID: cmd.TrainingID, Status: command.BuildStatusCreated}
}

func TestRetryDegradedBuildsJob_Run(t *testing.T) {
	seed := int64(9)
	queue := &fakeQueue{builds: []training.DegradedBuild{
		{TrainingID: "tr-1", SetIDs: []string{"verbs"}, Seed: &seed},
		{TrainingID: "tr-2", SetIDs: []string{"nouns"}},
		{TrainingID: "tr-3", SetIDs: []string{"verbs", "nouns"}},
	}}
	builder := &fakeBuilder{failing: map[string]bool{"tr-2": true}}
	job := NewRetryDegradedBuildsJob(queue, builder, logger.Discard(), RetryDegradedBuildsConfig{Concurrency: 2})

	require.NoError(t, job.Run(context.Background()))

	sort.Strings(queue.resolved)
	assert.Equal(t, []string{"tr-1", "tr-3"}, queue.resolved)
	assert.Equal(t, DefaultRetryDegradedBuildsConfig().BatchSize, queue.limit)

	stats := job.LastStats()
	assert.Equal(t, 3, stats.Picked)
	assert.Equal(t, 2, stats.Recovered)
	assert.Equal(t, 1, stats.Degraded)

	require.Len(t, builder.commands, 3)
	for _, cmd := range builder.commands {
		if cmd.TrainingID == "tr-1" {
			require.NotNil(t, cmd.Seed)
			assert.Equal(t, seed, *cmd.Seed)
			assert.Equal(t, []string{"verbs"}, cmd.SetIDs)
		}
	}
}

func TestRetryDegradedBuildsJob_BatchSize(t *testing.T) {
	queue := &fakeQueue{builds: []training.DegradedBuild{{TrainingID: "a"}, {TrainingID: "b"}, {TrainingID: "c"}}}
	builder := &fakeBuilder{}
	job := NewRetryDegradedBuildsJob(queue, builder, logger.Discard(), RetryDegradedBuildsConfig{BatchSize: 2})

	require.NoError(t, job.Run(context.Background()))

	assert.Len(t, builder.commands, 2)
	assert.Equal(t, 2, job.LastStats().Recovered)
}

func TestRetryDegradedBuildsJob_EmptyQueue(t *testing.T) {
	builder := &fakeBuilder{}
	job := NewRetryDegradedBuildsJob(&fakeQueue{}, builder, nil, RetryDegradedBuildsConfig{})

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, builder.commands)
	assert.Equal(t, RetryStats{}, job.LastStats())
}

func TestRetryDegradedBuildsJob_PendingError(t *testing.T) {
	queue := &fakeQueue{pendingErr: errors.New("redis down")}
	job := NewRetryDegradedBuildsJob(queue, &fakeBuilder{}, logger.Discard(), RetryDegradedBuildsConfig{})

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, queue.pendingErr)
}

func TestRetryDegradedBuildsJob_ResolveErrorKeepsEntry(t *testing.T) {
	queue := &fakeQueue{
		builds:     []training.DegradedBuild{{TrainingID: "tr-1"}},
		resolveErr: errors.New("redis down"),
	}
	job := NewRetryDegradedBuildsJob(queue, &fakeBuilder{}, logger.Discard(), RetryDegradedBuildsConfig{})

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 0, job.LastStats().Recovered)
	assert.Equal(t, 1, job.LastStats().Degraded)
}

func TestRetryDegradedBuildsJob_CancelledContext(t *testing.T) {
	queue := &fakeQueue{builds: []training.DegradedBuild{{TrainingID: "tr-1"}}}
	builder := &fakeBuilder{}
	job := NewRetryDegradedBuildsJob(queue, builder, logger.Discard(), RetryDegradedBuildsConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
	assert.Empty(t, builder.commands)
	assert.Empty(t, queue.resolved)
}
