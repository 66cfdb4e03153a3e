package cache

import (
	"context"
	"errors"
	"time"
)

// failingStore simulates a backend that fails every operation: gets miss,
// sets and deletes are no-ops. Used to verify the degradation policy.
type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool)           { return nil, false }
func (failingStore) Set(context.Context, string, []byte, time.Duration) bool { return false }
func (failingStore) Delete(context.Context, ...string) int                { return 0 }
func (failingStore) DeleteByPattern(context.Context, string) int          { return 0 }
func (failingStore) Ping(context.Context) error                           { return errors.New("backend unavailable") }
func (failingStore) Stats(context.Context) Stats                          { return Stats{Status: "disconnected"} }

// countingResolver records how many times Resolve is invoked.
type countingResolver struct {
	calls int
	ids   []string
	name  string
	err   error
}

func (r *countingResolver) Resolve(_ context.Context, deviceID string) ([]string, string, error) {
	r.calls++
	if r.err != nil {
		return nil, "", r.err
	}
	return r.ids, r.name, nil
}

// countingExecutor records pipeline executions and returns canned documents.
type countingExecutor struct {
	calls int
	docs  []Document
	err   error
}

func (e *countingExecutor) ExecutePipeline(_ context.Context, pipeline []Stage) ([]Document, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.docs, nil
}

// samplePipeline builds a realistic uniform-sample pipeline for tests.
// skip and limit are appended as pagination stages when non-negative.
func samplePipeline(deviceID string, start, end string, resolution, skip, limit int) []Stage {
	pipeline := []Stage{
		{"$match": map[string]any{
			"timestamp":          map[string]any{"$gte": start, "$lte": end},
			"metadata.device_id": map[string]any{"$in": []any{deviceID}},
		}},
		{"$group": map[string]any{
			"_id": map[string]any{"$floor": map[string]any{"$divide": []any{"$timestamp", resolution}}},
			"doc": map[string]any{"$first": "$$ROOT"},
		}},
		{"$replaceRoot": map[string]any{"newRoot": "$doc"}},
		{"$sort": map[string]any{"timestamp": 1}},
	}
	if skip >= 0 {
		pipeline = append(pipeline, Stage{"$skip": skip})
	}
	if limit >= 0 {
		pipeline = append(pipeline, Stage{"$limit": limit})
	}
	return pipeline
}
