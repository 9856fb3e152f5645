package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/alem-hub/training-planner/internal/domain/training"
)

// DegradedQueue stores degraded builds in one hash, one field per training.
// A newer failure of the same training replaces the older entry.
type DegradedQueue struct {
	client *Client
}

// NewDegradedQueue creates a new DegradedQueue.
func NewDegradedQueue(client *Client) *DegradedQueue {
	return &DegradedQueue{client: client}
}

// ReportDegraded records a degraded build.
func (q *DegradedQueue) ReportDegraded(ctx context.Context, build training.DegradedBuild) error {
	if build.TrainingID == "" {
		return ErrKeyEmpty
	}
	data, err := json.Marshal(build)
	if err != nil {
		return fmt.Errorf("failed to encode degraded build: %w", err)
	}
	if err := q.client.rdb.HSet(ctx, q.client.DegradedKey(), build.TrainingID, data).Err(); err != nil {
		return classify("ReportDegraded", err)
	}
	return nil
}

// Pending returns up to limit degraded builds, oldest failure first.
// limit <= 0 returns all of them.
func (q *DegradedQueue) Pending(ctx context.Context, limit int) ([]training.DegradedBuild, error) {
	fields, err := q.client.rdb.HGetAll(ctx, q.client.DegradedKey()).Result()
	if err != nil {
		return nil, classify("Pending", err)
	}
	return decodeDegraded(fields, limit), nil
}

// Resolve removes a training from the queue.
func (q *DegradedQueue) Resolve(ctx context.Context, trainingID string) error {
	if err := q.client.rdb.HDel(ctx, q.client.DegradedKey(), trainingID).Err(); err != nil {
		return classify("Resolve", err)
	}
	return nil
}

// Len returns the number of queued builds.
func (q *DegradedQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.rdb.HLen(ctx, q.client.DegradedKey()).Result()
	return n, classify("Len", err)
}

// decodeDegraded skips entries that do not decode; they are overwritten by
// the next failure of the same training.
func decodeDegraded(fields map[string]string, limit int) []training.DegradedBuild {
	builds := make([]training.DegradedBuild, 0, len(fields))
	for id, raw := range fields {
		var build training.DegradedBuild
		if err := json.Unmarshal([]byte(raw), &build); err != nil {
			continue
		}
		if build.TrainingID == "" {
			build.TrainingID = id
		}
		builds = append(builds, build)
	}

	sort.Slice(builds, func(i, j int) bool {
		if !builds[i].FailedAt.Equal(builds[j].FailedAt) {
			return builds[i].FailedAt.Before(builds[j].FailedAt)
		}
		return builds[i].TrainingID < builds[j].TrainingID
	})
	if limit > 0 && len(builds) > limit {
		builds = builds[:limit]
	}
	return builds
}
