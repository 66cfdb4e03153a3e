package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/opensensor/sensorcache/internal/cache"
	"github.com/opensensor/sensorcache/internal/logger"
	"github.com/opensensor/sensorcache/internal/metrics"
)

// ErrDeviceNotFound is returned when no registration matches a device ID.
var ErrDeviceNotFound = errors.New("device not found")

// Config holds the source store connection settings.
type Config struct {
	URI                string
	Database           string
	ReadingsCollection string
	DevicesCollection  string
	QueryTimeout       time.Duration
}

// Store is the backing document store for sensor readings and device
// registrations. It satisfies cache.DeviceResolver and
// cache.PipelineExecutor so the caching layer can delegate misses to it.
type Store struct {
	client   *mongo.Client
	readings *mongo.Collection
	devices  *mongo.Collection
	timeout  time.Duration
	log      *slog.Logger
}

// Connect opens a client and verifies connectivity with a ping.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, errors.New("source store URI is required")
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 25 * time.Second
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to source store: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("source store ping failed: %w", err)
	}

	db := client.Database(cfg.Database)
	return &Store{
		client:   client,
		readings: db.Collection(cfg.ReadingsCollection),
		devices:  db.Collection(cfg.DevicesCollection),
		timeout:  cfg.QueryTimeout,
		log:      logger.WithComponent("source"),
	}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// splitDeviceName splits a device common name of the form "id" or
// "id|name" into its parts.
func splitDeviceName(common string) (string, string) {
	if i := strings.Index(common, "|"); i >= 0 {
		return common[:i], common[i+1:]
	}
	return common, ""
}

// deviceRegistration is the registry document shape.
type deviceRegistration struct {
	APIKeys []struct {
		DeviceID   string `bson:"device_id"`
		DeviceName string `bson:"device_name"`
	} `bson:"api_keys"`
}

// ResolveDevice maps a device common name to the full set of device IDs
// that report under the same registered name, plus that name. Multiple
// physical sensors can share one logical device this way.
func (s *Store) ResolveDevice(ctx context.Context, deviceID string) ([]string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	timer := time.Now()
	defer func() {
		metrics.SourceQueryDuration.WithLabelValues("resolve_device").Observe(time.Since(timer).Seconds())
	}()
	metrics.SourceQueries.WithLabelValues("resolve_device").Inc()

	id, name := splitDeviceName(deviceID)
	elem := bson.M{"device_id": id}
	if name != "" {
		elem["device_name"] = name
	}

	var reg deviceRegistration
	err := s.devices.FindOne(ctx, bson.M{"api_keys": bson.M{"$elemMatch": elem}}).Decode(&reg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, "", fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	if err != nil {
		return nil, "", fmt.Errorf("device lookup failed: %w", err)
	}

	// The target name is taken from the first key matching the bare ID;
	// all keys registered under that name contribute their device IDs.
	targetName := ""
	for _, key := range reg.APIKeys {
		if key.DeviceID == id {
			targetName = key.DeviceName
			break
		}
	}
	if targetName == "" {
		return nil, "", fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	var ids []string
	for _, key := range reg.APIKeys {
		if key.DeviceName == targetName {
			ids = append(ids, key.DeviceID)
		}
	}
	s.log.Debug("Resolved device", "device_id", deviceID, "name", targetName, "ids", len(ids))
	return ids, targetName, nil
}

// ExecutePipeline runs an aggregation against the readings collection
// and returns normalized documents: BSON-specific types are rewritten
// to JSON-friendly ones so results can round-trip through the cache.
func (s *Store) ExecutePipeline(ctx context.Context, pipeline []cache.Stage) ([]cache.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	timer := time.Now()
	defer func() {
		metrics.SourceQueryDuration.WithLabelValues("aggregate").Observe(time.Since(timer).Seconds())
	}()
	metrics.SourceQueries.WithLabelValues("aggregate").Inc()

	stages := make([]any, len(pipeline))
	for i, stage := range pipeline {
		stages[i] = bson.M(stage)
	}

	cursor, err := s.readings.Aggregate(ctx, stages)
	if err != nil {
		return nil, fmt.Errorf("aggregation failed: %w", err)
	}
	defer cursor.Close(ctx)

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode aggregation result: %w", err)
	}

	docs := make([]cache.Document, len(raw))
	for i, doc := range raw {
		docs[i] = normalizeDocument(doc)
	}
	return docs, nil
}

// InsertReading appends one measurement document to the readings
// collection. The timestamp is always assigned server-side.
func (s *Store) InsertReading(ctx context.Context, field string, metadata map[string]any, value any, unit string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	meta := make(bson.M, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	if unit != "" {
		meta["unit"] = unit
	}

	doc := bson.M{
		"timestamp": time.Now().UTC(),
		"metadata":  meta,
		field:       value,
	}

	metrics.SourceQueries.WithLabelValues("insert").Inc()
	if _, err := s.readings.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// InsertEnvironment appends one document carrying several measurements
// taken together, e.g. a weather station reporting temp, rh and
// pressure in a single sample.
func (s *Store) InsertEnvironment(ctx context.Context, metadata map[string]any, fields map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc := bson.M{
		"timestamp": time.Now().UTC(),
		"metadata":  bson.M(metadata),
	}
	for field, value := range fields {
		doc[field] = value
	}

	metrics.SourceQueries.WithLabelValues("insert").Inc()
	if _, err := s.readings.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert environment sample: %w", err)
	}
	return nil
}

// normalizeDocument rewrites BSON-specific values into plain Go types.
// Timestamps become RFC 3339 UTC strings, matching what a cache read
// produces after a JSON round-trip.
func normalizeDocument(doc bson.M) cache.Document {
	out := make(cache.Document, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339Nano)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case primitive.ObjectID:
		return val.Hex()
	case primitive.Decimal128:
		return val.String()
	case bson.M:
		inner := make(map[string]any, len(val))
		for k, item := range val {
			inner[k] = normalizeValue(item)
		}
		return inner
	case bson.A:
		inner := make([]any, len(val))
		for i, item := range val {
			inner[i] = normalizeValue(item)
		}
		return inner
	case int32:
		return int64(val)
	default:
		return v
	}
}
