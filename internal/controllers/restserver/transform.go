package restserver

import (
	"encoding/json"

	"github.com/opensensors/airsense/internal/database"
	"github.com/opensensors/airsense/pkg/aqi"
)

// transformResult re-shapes every row payload of a result envelope
func transformResult(res *database.Result, fn func(json.RawMessage) (interface{}, error)) (*database.Result, error) {
	out := &database.Result{
		Meta:    res.Meta,
		Results: make([]json.RawMessage, 0, len(res.Results)),
	}
	for _, raw := range res.Results {
		shaped, err := fn(raw)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(shaped)
		if err != nil {
			return nil, err
		}
		out.Results = append(out.Results, encoded)
	}
	return out, nil
}

// parameterEntries pulls the per-parameter summary array out of a
// decoded location row.
func parameterEntries(loc map[string]interface{}) []map[string]interface{} {
	raw, _ := loc["parameters"].([]interface{})
	out := make([]map[string]interface{}, 0, len(raw))
	for _, entry := range raw {
		if m, ok := entry.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

// measurandName prefers the measurand field, falling back to the
// parameter alias some rollups carry instead.
func measurandName(entry map[string]interface{}) string {
	if s, ok := entry["measurand"].(string); ok && s != "" {
		return s
	}
	s, _ := entry["parameter"].(string)
	return s
}

// toLatest reshapes a location row into its latest readings
func toLatest(raw json.RawMessage) (interface{}, error) {
	var loc map[string]interface{}
	if err := json.Unmarshal(raw, &loc); err != nil {
		return nil, err
	}

	out := &LatestResult{
		Location:     loc["name"],
		City:         loc["city"],
		Country:      loc["country"],
		Coordinates:  loc["coordinates"],
		Measurements: []LatestMeasurement{},
	}

	for _, entry := range parameterEntries(loc) {
		m := LatestMeasurement{
			Parameter:   measurandName(entry),
			Value:       entry["lastValue"],
			LastUpdated: entry["lastUpdated"],
			Unit:        entry["unit"],
		}
		annotateAQI(&m)
		out.Measurements = append(out.Measurements, m)
	}

	return out, nil
}

// annotateAQI attaches the EPA index and category to particulate readings
func annotateAQI(m *LatestMeasurement) {
	value, ok := m.Value.(float64)
	if !ok || value < 0 {
		return
	}

	var index int32
	switch m.Parameter {
	case "pm25":
		index = aqi.CalculatePM25(float32(value))
	case "pm10":
		index = aqi.CalculatePM10(float32(value))
	default:
		return
	}
	m.AQI = &index
	m.AQICategory = aqi.GetCategory(index)
}

// toV1Location reshapes a location row into the legacy flat form
func toV1Location(raw json.RawMessage) (interface{}, error) {
	var loc map[string]interface{}
	if err := json.Unmarshal(raw, &loc); err != nil {
		return nil, err
	}

	out := &V1Location{
		ID:                  loc["id"],
		Country:             loc["country"],
		City:                loc["city"],
		Location:            loc["name"],
		SourceType:          loc["sensorType"],
		Coordinates:         loc["coordinates"],
		FirstUpdated:        loc["firstUpdated"],
		LastUpdated:         loc["lastUpdated"],
		Parameters:          []interface{}{},
		CountsByMeasurement: []V1MeasurementCount{},
	}

	if sources, ok := loc["sources"].([]interface{}); ok && len(sources) > 0 {
		if src, ok := sources[0].(map[string]interface{}); ok {
			out.SourceName = src["name"]
		}
	}

	for _, entry := range parameterEntries(loc) {
		name := measurandName(entry)
		out.Parameters = append(out.Parameters, name)
		count, _ := entry["count"].(float64)
		out.CountsByMeasurement = append(out.CountsByMeasurement, V1MeasurementCount{
			Parameter: name,
			Count:     count,
		})
		out.Count += count
	}

	return out, nil
}
