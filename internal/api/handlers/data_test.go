package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/opensensor/sensorcache/internal/apierr"
	"github.com/opensensor/sensorcache/internal/cache"
)

func newDataHandler(resolver *fakeResolver, exec *fakeExecutor) *DataHandler {
	store := cache.NewMemoryStore()
	guard := cache.NewSizeGuard(0)
	return NewDataHandler(
		cache.NewLookup(store, resolver, guard),
		cache.NewAggregation(store, exec, guard),
	)
}

func getHistorical(h *DataHandler, path string, vars map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req = mux.SetURLVars(req, vars)
	w := httptest.NewRecorder()
	h.GetHistorical(w, req)
	return w
}

func TestGetHistorical(t *testing.T) {
	resolver := &fakeResolver{ids: []string{"outdoor-1", "outdoor-1b"}, name: "Outdoor"}
	exec := &fakeExecutor{docs: sampleDocs(25)}
	h := newDataHandler(resolver, exec)

	w := getHistorical(h, "/data/temp/outdoor-1?page=2&size=10", map[string]string{
		"type": "temp", "device_id": "outdoor-1",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Items []cache.Document `json:"items"`
		Total int              `json:"total"`
		Page  int              `json:"page"`
		Size  int              `json:"size"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Total != 25 {
		t.Errorf("total = %d, want 25", resp.Total)
	}
	if len(resp.Items) != 10 {
		t.Errorf("items = %d, want 10", len(resp.Items))
	}
	if resp.Page != 2 || resp.Size != 10 {
		t.Errorf("page/size = %d/%d", resp.Page, resp.Size)
	}
	// Page 2 starts at the 11th document
	if resp.Items[0]["temp"] != 30.0 {
		t.Errorf("first item temp = %v, want 30", resp.Items[0]["temp"])
	}
}

func TestGetHistoricalSecondPageIsCacheHit(t *testing.T) {
	resolver := &fakeResolver{ids: []string{"outdoor-1"}, name: "Outdoor"}
	exec := &fakeExecutor{docs: sampleDocs(25)}
	h := newDataHandler(resolver, exec)

	vars := map[string]string{"type": "temp", "device_id": "outdoor-1"}
	base := "/data/temp/outdoor-1?start_date=2024-01-15&end_date=2024-01-16"

	if w := getHistorical(h, base+"&page=1&size=10", vars); w.Code != http.StatusOK {
		t.Fatalf("first request failed: %d", w.Code)
	}
	if w := getHistorical(h, base+"&page=2&size=10", vars); w.Code != http.StatusOK {
		t.Fatalf("second request failed: %d", w.Code)
	}

	if exec.calls != 1 {
		t.Errorf("executor called %d times, want 1 (page variants share one cached execution)", exec.calls)
	}
	if resolver.calls != 1 {
		t.Errorf("resolver called %d times, want 1", resolver.calls)
	}
}

func TestGetHistoricalUnitConversion(t *testing.T) {
	resolver := &fakeResolver{ids: []string{"d"}, name: "n"}
	exec := &fakeExecutor{docs: sampleDocs(1)} // 20.0 C
	h := newDataHandler(resolver, exec)

	w := getHistorical(h, "/data/temp/d?unit=F", map[string]string{"type": "temp", "device_id": "d"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Items []cache.Document `json:"items"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Items[0]["temp"] != 68.0 {
		t.Errorf("converted temp = %v, want 68", resp.Items[0]["temp"])
	}
	if resp.Items[0]["temp_unit"] != "F" {
		t.Errorf("unit = %v, want F", resp.Items[0]["temp_unit"])
	}
}

func TestGetHistoricalDeviceNotFound(t *testing.T) {
	h := newDataHandler(&fakeResolver{}, &fakeExecutor{})

	w := getHistorical(h, "/data/temp/missing-device", map[string]string{
		"type": "temp", "device_id": "missing-device",
	})

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var resp apierr.ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != apierr.ErrDeviceNotFound {
		t.Errorf("code = %q", resp.Error.Code)
	}
}

func TestGetHistoricalValidation(t *testing.T) {
	h := newDataHandler(&fakeResolver{ids: []string{"d"}, name: "n"}, &fakeExecutor{})

	tests := []struct {
		name string
		path string
		vars map[string]string
	}{
		{"unknown data type", "/data/voltage/d", map[string]string{"type": "voltage", "device_id": "d"}},
		{"bad resolution", "/data/temp/d?resolution=0", map[string]string{"type": "temp", "device_id": "d"}},
		{"bad page", "/data/temp/d?page=-1", map[string]string{"type": "temp", "device_id": "d"}},
		{"oversized page", "/data/temp/d?size=5000", map[string]string{"type": "temp", "device_id": "d"}},
		{"bad start date", "/data/temp/d?start_date=yesterday", map[string]string{"type": "temp", "device_id": "d"}},
		{"inverted range", "/data/temp/d?start_date=2024-02-01&end_date=2024-01-01", map[string]string{"type": "temp", "device_id": "d"}},
		{"unit on unitless type", "/data/rh/d?unit=F", map[string]string{"type": "rh", "device_id": "d"}},
		{"unsupported unit", "/data/temp/d?unit=R", map[string]string{"type": "temp", "device_id": "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := getHistorical(h, tt.path, tt.vars)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body: %s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestGetHistoricalQueryError(t *testing.T) {
	resolver := &fakeResolver{ids: []string{"d"}, name: "n"}
	exec := &fakeExecutor{err: errBackendDown}
	h := newDataHandler(resolver, exec)

	w := getHistorical(h, "/data/temp/d", map[string]string{"type": "temp", "device_id": "d"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var resp apierr.ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != apierr.ErrQueryFailed {
		t.Errorf("code = %q", resp.Error.Code)
	}
}

// A downed cache backend degrades to direct source reads; requests
// still succeed.
func TestGetHistoricalCacheDown(t *testing.T) {
	resolver := &fakeResolver{ids: []string{"d"}, name: "n"}
	exec := &fakeExecutor{docs: sampleDocs(3)}
	guard := cache.NewSizeGuard(0)
	h := NewDataHandler(
		cache.NewLookup(downStore{}, resolver, guard),
		cache.NewAggregation(downStore{}, exec, guard),
	)

	w := getHistorical(h, "/data/temp/d", map[string]string{"type": "temp", "device_id": "d"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with cache down", w.Code)
	}
}
