package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/opensensor/sensorcache/internal/apierr"
	"github.com/opensensor/sensorcache/internal/logger"
	"github.com/opensensor/sensorcache/internal/timeseries"
)

// ReadingWriter is the slice of the source store the ingest path needs.
type ReadingWriter interface {
	InsertReading(ctx context.Context, field string, metadata map[string]any, value any, unit string) error
	InsertEnvironment(ctx context.Context, metadata map[string]any, fields map[string]any) error
}

// WriteInvalidator invalidates cached entries after a device write.
type WriteInvalidator interface {
	OnDataWritten(ctx context.Context, deviceID string) int
}

// ReadingsHandler records sensor readings and invalidates stale cache
// entries once the write is acknowledged.
type ReadingsHandler struct {
	writer      ReadingWriter
	invalidator WriteInvalidator
}

// NewReadingsHandler creates a handler for the ingest endpoints.
func NewReadingsHandler(writer ReadingWriter, invalidator WriteInvalidator) *ReadingsHandler {
	return &ReadingsHandler{writer: writer, invalidator: invalidator}
}

type deviceMetadata struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
}

func (m deviceMetadata) validate() *apierr.Error {
	if m.DeviceID == "" {
		return apierr.ValidationMissingField("device_metadata.device_id")
	}
	if m.Name == "" {
		return apierr.ValidationMissingField("device_metadata.name")
	}
	return nil
}

func (m deviceMetadata) asMap() map[string]any {
	return map[string]any{
		"device_id": m.DeviceID,
		"name":      m.Name,
	}
}

// PostReading handles POST /readings/{type}: a single measurement.
func (h *ReadingsHandler) PostReading(w http.ResponseWriter, r *http.Request) {
	dt, ok := timeseries.LookupDataType(mux.Vars(r)["type"])
	if !ok {
		apierr.WriteErrorWithContext(w, r, apierr.QueryInvalidParams("unknown data type: "+mux.Vars(r)["type"]))
		return
	}

	var body struct {
		DeviceMetadata deviceMetadata `json:"device_metadata"`
		Value          *float64       `json:"value"`
		Unit           string         `json:"unit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidJSON())
		return
	}
	if apiErr := body.DeviceMetadata.validate(); apiErr != nil {
		apierr.WriteErrorWithContext(w, r, apiErr)
		return
	}
	if body.Value == nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationMissingField("value"))
		return
	}
	if body.Unit != "" && !dt.HasUnit {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("unit", dt.Name+" readings do not carry a unit"))
		return
	}

	ctx := r.Context()
	if err := h.writer.InsertReading(ctx, dt.Field, body.DeviceMetadata.asMap(), *body.Value, body.Unit); err != nil {
		logger.ErrorContext(ctx, "Failed to record reading",
			"data_type", dt.Name, "device_id", body.DeviceMetadata.DeviceID, "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.SystemInternal("Failed to record reading"))
		return
	}

	// Invalidation runs only after the insert is acknowledged; a cache
	// failure here never fails the write.
	invalidated := h.invalidator.OnDataWritten(ctx, body.DeviceMetadata.DeviceID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":           "recorded",
		"invalidated_keys": invalidated,
	})
}

// PostEnvironment handles POST /environment: several measurements taken
// together as one sample. Measurement objects are flattened into the
// stored document; a "unit" field becomes "<measurement>_unit".
func (h *ReadingsHandler) PostEnvironment(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidJSON())
		return
	}

	rawMeta, ok := body["device_metadata"]
	if !ok {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationMissingField("device_metadata"))
		return
	}
	var meta deviceMetadata
	if err := json.Unmarshal(rawMeta, &meta); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidJSON())
		return
	}
	if apiErr := meta.validate(); apiErr != nil {
		apierr.WriteErrorWithContext(w, r, apiErr)
		return
	}

	fields := make(map[string]any)
	for name, raw := range body {
		if name == "device_metadata" {
			continue
		}
		var measurement map[string]any
		if err := json.Unmarshal(raw, &measurement); err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue(name, "measurement must be an object"))
			return
		}
		for key, value := range measurement {
			if value == nil || key == "timestamp" {
				continue
			}
			if key == "unit" {
				fields[name+"_unit"] = value
			} else {
				fields[key] = value
			}
		}
	}
	if len(fields) == 0 {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationMissingField("measurements"))
		return
	}

	ctx := r.Context()
	if err := h.writer.InsertEnvironment(ctx, meta.asMap(), fields); err != nil {
		logger.ErrorContext(ctx, "Failed to record environment sample",
			"device_id", meta.DeviceID, "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.SystemInternal("Failed to record environment sample"))
		return
	}

	invalidated := h.invalidator.OnDataWritten(ctx, meta.DeviceID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":           "recorded",
		"invalidated_keys": invalidated,
	})
}
