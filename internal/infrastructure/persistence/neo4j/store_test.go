package neo4j

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/training-planner/internal/domain/shared"
	"github.com/alem-hub/training-planner/internal/domain/training"
)

func record(pairs ...any) *neo4j.Record {
	r := &neo4j.Record{}
	for i := 0; i < len(pairs); i += 2 {
		r.Keys = append(r.Keys, pairs[i].(string))
		r.Values = append(r.Values, pairs[i+1])
	}
	return r
}

func TestPlanParams(t *testing.T) {
	plan := training.PlanFromGroups([][][]string{
		{{"a", "b"}, {"c"}},
		{{"c", "a", "b"}},
	})

	params := planParams("tr-1", plan)

	assert.Equal(t, "tr-1", params["id"])
	assert.Equal(t, int64(3), params["poolSize"])
	assert.Equal(t, []any{
		map[string]any{
			"id": int64(1),
			"cycles": []any{
				map[string]any{"id": int64(1), "items": []any{"a", "b"}},
				map[string]any{"id": int64(2), "items": []any{"c"}},
			},
		},
		map[string]any{
			"id": int64(2),
			"cycles": []any{
				map[string]any{"id": int64(1), "items": []any{"c", "a", "b"}},
			},
		},
	}, params["stages"])
}

func TestTrainingFromRecord(t *testing.T) {
	created := time.Date(2025, 2, 3, 4, 5, 6, 0, time.FixedZone("ALMT", 5*3600))

	tr := trainingFromRecord(record(
		"id", "tr-1",
		"seed", int64(99),
		"pool_size", int64(100),
		"created_at", created,
		"set_ids", []any{"verbs", "nouns"},
		"stage_id", int64(1),
		"cycle_id", int64(1),
	))

	assert.Equal(t, "tr-1", tr.ID)
	assert.Equal(t, int64(99), tr.Seed)
	assert.Equal(t, 100, tr.PoolSize)
	assert.Equal(t, []string{"nouns", "verbs"}, tr.SetIDs)
	assert.True(t, tr.CreatedAt.Equal(created))
	assert.Equal(t, time.UTC, tr.CreatedAt.Location())
	assert.Equal(t, &training.Position{StageID: 1, CycleID: 1}, tr.Active)
}

func TestTrainingFromRecord_WithoutActive(t *testing.T) {
	tr := trainingFromRecord(record(
		"id", "tr-1",
		"seed", int64(1),
		"pool_size", int64(0),
		"created_at", nil,
		"set_ids", []any{},
		"stage_id", nil,
		"cycle_id", nil,
	))

	assert.Nil(t, tr.Active)
	assert.False(t, tr.IsPlanned())
	assert.Empty(t, tr.SetIDs)
	assert.True(t, tr.CreatedAt.IsZero())
}

func TestRecordHelpers_WrongTypes(t *testing.T) {
	r := record("n", "not a number", "s", int64(3), "b", "yes")

	assert.Equal(t, 0, getInt(r, "n"))
	assert.Equal(t, "", getString(r, "s"))
	assert.False(t, getBool(r, "b"))
	assert.Equal(t, 0, getInt(r, "missing"))
	assert.Equal(t, []string{}, getStringSlice(r, "missing"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"deadlock", &neo4j.Neo4jError{Code: "Neo.TransientError.Transaction.DeadlockDetected"}, shared.ErrPersistenceConflict},
		{"constraint", &neo4j.Neo4jError{Code: "Neo.ClientError.Schema.ConstraintValidationFailed"}, shared.ErrPersistenceConflict},
		{"tx timeout", &neo4j.Neo4jError{Code: "Neo.ClientError.Transaction.TransactionTimedOut"}, shared.ErrTimeout},
		{"auth", &neo4j.Neo4jError{Code: "Neo.ClientError.Security.Unauthorized"}, shared.ErrTransportFailure},
		{"syntax", &neo4j.Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError"}, shared.ErrPersistenceConflict},
		{"wrapped", fmt.Errorf("run: %w", &neo4j.Neo4jError{Code: "Neo.TransientError.General.DatabaseUnavailable"}), shared.ErrPersistenceConflict},
		{"deadline", context.DeadlineExceeded, shared.ErrTimeout},
		{"closed", ErrConnectionClosed, shared.ErrTransportFailure},
		{"unknown", errors.New("boom"), shared.ErrTransportFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("PersistPlan", tt.err)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassify_KeepsKind(t *testing.T) {
	assert.Same(t, training.ErrTrainingNotFound, classify("FindTraining", training.ErrTrainingNotFound))
	assert.NoError(t, classify("FindTraining", nil))
}
