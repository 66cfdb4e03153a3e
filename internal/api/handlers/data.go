package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/opensensor/sensorcache/internal/apierr"
	"github.com/opensensor/sensorcache/internal/cache"
	"github.com/opensensor/sensorcache/internal/logger"
	"github.com/opensensor/sensorcache/internal/source"
	"github.com/opensensor/sensorcache/internal/timeseries"
	"github.com/opensensor/sensorcache/internal/tracing"
)

const (
	defaultLookback   = 100 * 24 * time.Hour
	defaultResolution = 30
	defaultPageSize   = 50
	maxPageSize       = 1000
)

// DataHandler serves historical sensor data through the caching layer.
type DataHandler struct {
	lookup      *cache.Lookup
	aggregation *cache.Aggregation
}

// NewDataHandler creates a handler backed by the cache-aware lookup and
// aggregation paths.
func NewDataHandler(lookup *cache.Lookup, aggregation *cache.Aggregation) *DataHandler {
	return &DataHandler{lookup: lookup, aggregation: aggregation}
}

// historicalQuery holds validated query parameters.
type historicalQuery struct {
	dataType   timeseries.DataType
	deviceID   string
	start      time.Time
	end        time.Time
	resolution int
	page       int
	size       int
	unit       string
}

// GetHistorical handles GET /data/{type}/{device_id}.
func (h *DataHandler) GetHistorical(w http.ResponseWriter, r *http.Request) {
	q, apiErr := parseHistoricalQuery(r)
	if apiErr != nil {
		apierr.WriteErrorWithContext(w, r, apiErr)
		return
	}

	ctx, span := tracing.StartQuerySpan(r.Context(), q.dataType.Name, q.deviceID)
	defer span.End()

	record, err := h.lookup.Lookup(ctx, q.deviceID)
	if err != nil {
		if errors.Is(err, source.ErrDeviceNotFound) {
			apierr.WriteErrorWithContext(w, r, apierr.DeviceNotFound(q.deviceID))
			return
		}
		logger.ErrorContext(ctx, "Device lookup failed", "device_id", q.deviceID, "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.QueryFailed(""))
		return
	}

	pipeline := timeseries.UniformSamplePipeline(
		q.dataType, record.DeviceIDs, record.DeviceName, q.start, q.end, q.resolution)

	docs, err := h.aggregation.Execute(ctx, pipeline, 0)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			apierr.WriteErrorWithContext(w, r, apierr.QueryTimeout())
			return
		}
		logger.ErrorContext(ctx, "Historical query failed",
			"data_type", q.dataType.Name, "device_id", q.deviceID, "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.QueryFailed(""))
		return
	}

	if q.unit != "" && q.dataType.Name == "temp" {
		for _, doc := range docs {
			if err := timeseries.ConvertTemperature(doc, q.unit); err != nil {
				apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("unit", err.Error()))
				return
			}
		}
	}

	items, total := timeseries.Paginate(docs, q.page, q.size)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"items": items,
		"total": total,
		"page":  q.page,
		"size":  q.size,
	})
}

func parseHistoricalQuery(r *http.Request) (historicalQuery, *apierr.Error) {
	vars := mux.Vars(r)

	dt, ok := timeseries.LookupDataType(vars["type"])
	if !ok {
		return historicalQuery{}, apierr.QueryInvalidParams(
			"unknown data type: " + vars["type"] + " (known: " + strings.Join(timeseries.DataTypeNames(), ", ") + ")")
	}

	q := historicalQuery{
		dataType:   dt,
		deviceID:   vars["device_id"],
		end:        time.Now().UTC(),
		resolution: defaultResolution,
		page:       1,
		size:       defaultPageSize,
	}
	q.start = q.end.Add(-defaultLookback)

	params := r.URL.Query()

	if v := params.Get("start_date"); v != "" {
		t, err := parseTimestamp(v)
		if err != nil {
			return q, apierr.QueryInvalidParams("invalid start_date: " + v)
		}
		q.start = t
	}
	if v := params.Get("end_date"); v != "" {
		t, err := parseTimestamp(v)
		if err != nil {
			return q, apierr.QueryInvalidParams("invalid end_date: " + v)
		}
		q.end = t
	}
	if !q.end.After(q.start) {
		return q, apierr.QueryInvalidParams("end_date must be after start_date")
	}

	if v := params.Get("resolution"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return q, apierr.QueryInvalidParams("resolution must be a positive integer of minutes")
		}
		q.resolution = n
	}
	if v := params.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return q, apierr.QueryInvalidParams("page must be a positive integer")
		}
		q.page = n
	}
	if v := params.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			return q, apierr.QueryInvalidParams("size must be between 1 and 1000")
		}
		q.size = n
	}

	if v := params.Get("unit"); v != "" {
		if dt.Name != "temp" {
			return q, apierr.QueryInvalidParams("unit conversion is only supported for temp")
		}
		if v != "C" && v != "F" && v != "K" {
			return q, apierr.QueryInvalidParams("unit must be one of C, F, K")
		}
		q.unit = v
	}

	return q, nil
}

// parseTimestamp accepts RFC 3339 timestamps and bare dates.
func parseTimestamp(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
