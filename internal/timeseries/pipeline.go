package timeseries

import (
	"fmt"
	"time"

	"github.com/opensensor/sensorcache/internal/cache"
)

// DataType describes one sensor measurement kind stored in the readings
// collection.
type DataType struct {
	Name    string // route name, e.g. "temp"
	Field   string // document field in the readings collection
	HasUnit bool   // whether readings carry a unit in metadata
}

// registry maps route names to their collection fields. Adding a sensor
// kind means adding a row here; handlers and pipelines are generic.
var registry = map[string]DataType{
	"temp":     {Name: "temp", Field: "temp", HasUnit: true},
	"rh":       {Name: "rh", Field: "rh", HasUnit: false},
	"pressure": {Name: "pressure", Field: "pressure", HasUnit: true},
	"lux":      {Name: "lux", Field: "lux", HasUnit: false},
	"co2":      {Name: "co2", Field: "ppm_CO2", HasUnit: false},
	"pH":       {Name: "pH", Field: "pH", HasUnit: false},
	"moisture": {Name: "moisture", Field: "moisture_readings", HasUnit: false},
}

// LookupDataType resolves a route name to its data type.
func LookupDataType(name string) (DataType, bool) {
	dt, ok := registry[name]
	return dt, ok
}

// DataTypeNames returns the registered route names.
func DataTypeNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// UniformSamplePipeline builds an aggregation pipeline that downsamples
// readings to one document per resolution-sized bucket. Buckets are
// measured from the start of the window, and the first document in each
// bucket wins. The pipeline carries no pagination stages; callers
// paginate the decoded result in memory so that page variants share one
// cached execution.
func UniformSamplePipeline(dt DataType, deviceIDs []string, deviceName string, start, end time.Time, resolution int) []cache.Stage {
	intervalMillis := int64(resolution) * time.Minute.Milliseconds()

	match := cache.Stage{
		"$match": map[string]any{
			"timestamp":          map[string]any{"$gte": start, "$lte": end},
			"metadata.device_id": map[string]any{"$in": deviceIDs},
			"metadata.name":      deviceName,
			dt.Field:             map[string]any{"$exists": true},
		},
	}

	projection := map[string]any{
		"_id":       false,
		"timestamp": "$timestamp",
		dt.Field:    "$" + dt.Field,
	}
	if dt.HasUnit {
		projection[dt.Field+"_unit"] = "$metadata.unit"
	}

	return []cache.Stage{
		match,
		{
			"$addFields": map[string]any{
				"group": map[string]any{
					"$floor": map[string]any{
						"$divide": []any{
							map[string]any{"$subtract": []any{"$timestamp", start}},
							intervalMillis,
						},
					},
				},
			},
		},
		{"$group": map[string]any{"_id": "$group", "doc": map[string]any{"$first": "$$ROOT"}}},
		{"$replaceRoot": map[string]any{"newRoot": "$doc"}},
		{"$project": projection},
		{"$sort": map[string]any{"timestamp": 1}},
	}
}

// Paginate slices a decoded result set to the requested page. Page
// numbers start at 1. It returns the page slice and the total count of
// the full result.
func Paginate(docs []cache.Document, page, size int) ([]cache.Document, int) {
	total := len(docs)
	if page < 1 || size < 1 {
		return nil, total
	}
	offset := (page - 1) * size
	if offset >= total {
		return []cache.Document{}, total
	}
	end := offset + size
	if end > total {
		end = total
	}
	return docs[offset:end], total
}

// ConvertTemperature rewrites a temperature document's value and unit
// fields to the desired unit. Documents without a unit pass through
// unchanged.
func ConvertTemperature(doc cache.Document, desiredUnit string) error {
	unit, _ := doc["temp_unit"].(string)
	if unit == "" || unit == desiredUnit {
		return nil
	}

	value, ok := toFloat(doc["temp"])
	if !ok {
		return fmt.Errorf("temperature value is not numeric: %v", doc["temp"])
	}

	switch {
	case unit == "C" && desiredUnit == "F":
		value = value*9/5 + 32
	case unit == "C" && desiredUnit == "K":
		value = value + 273.15
	case unit == "F" && desiredUnit == "C":
		value = (value - 32) * 5 / 9
	case unit == "F" && desiredUnit == "K":
		value = (value + 459.67) * 5 / 9
	case unit == "K" && desiredUnit == "C":
		value = value - 273.15
	case unit == "K" && desiredUnit == "F":
		value = value*9/5 - 459.67
	default:
		return fmt.Errorf("unsupported temperature unit conversion: %s to %s", unit, desiredUnit)
	}

	doc["temp"] = value
	doc["temp_unit"] = desiredUnit
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
