package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensensor/sensorcache/internal/cache"
	"github.com/opensensor/sensorcache/internal/source"
)

// fakeResolver resolves a fixed device chain and counts calls.
type fakeResolver struct {
	ids   []string
	name  string
	calls int
}

func (f *fakeResolver) Resolve(ctx context.Context, deviceID string) ([]string, string, error) {
	f.calls++
	if deviceID == "missing-device" {
		return nil, "", fmt.Errorf("%w: %s", source.ErrDeviceNotFound, deviceID)
	}
	return f.ids, f.name, nil
}

// fakeExecutor returns canned documents and counts calls.
type fakeExecutor struct {
	docs  []cache.Document
	err   error
	calls int
}

func (f *fakeExecutor) ExecutePipeline(ctx context.Context, pipeline []cache.Stage) ([]cache.Document, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

// fakeWriter records insert calls.
type fakeWriter struct {
	field    string
	metadata map[string]any
	value    any
	unit     string
	fields   map[string]any
	err      error
}

func (f *fakeWriter) InsertReading(ctx context.Context, field string, metadata map[string]any, value any, unit string) error {
	f.field, f.metadata, f.value, f.unit = field, metadata, value, unit
	return f.err
}

func (f *fakeWriter) InsertEnvironment(ctx context.Context, metadata map[string]any, fields map[string]any) error {
	f.metadata, f.fields = metadata, fields
	return f.err
}

// fakeInvalidator records which device was invalidated.
type fakeInvalidator struct {
	deviceID string
	calls    int
	deleted  int
}

func (f *fakeInvalidator) OnDataWritten(ctx context.Context, deviceID string) int {
	f.deviceID = deviceID
	f.calls++
	return f.deleted
}

// downStore fails every operation, simulating an unreachable backend.
type downStore struct{}

var errBackendDown = errors.New("backend down")

func (downStore) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }
func (downStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	return false
}
func (downStore) Delete(ctx context.Context, keys ...string) int            { return 0 }
func (downStore) DeleteByPattern(ctx context.Context, pattern string) int   { return 0 }
func (downStore) Ping(ctx context.Context) error                            { return errBackendDown }
func (downStore) Stats(ctx context.Context) cache.Stats                     { return cache.Stats{Status: "disconnected"} }

func sampleDocs(n int) []cache.Document {
	docs := make([]cache.Document, n)
	base := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	for i := range docs {
		docs[i] = cache.Document{
			"timestamp": base.Add(time.Duration(i) * 30 * time.Minute).Format(time.RFC3339),
			"temp":      20.0 + float64(i),
			"temp_unit": "C",
		}
	}
	return docs
}
