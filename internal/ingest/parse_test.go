package ingest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	line := `{
		"location": "Del Norte",
		"value": 7.3,
		"unit": "µg/m³",
		"parameter": "pm25",
		"country": "US",
		"city": "Albuquerque",
		"sourceName": "AirNow",
		"sourceType": "government",
		"mobile": false,
		"date": {"utc": "2023-04-01T12:00:00.000Z", "local": "2023-04-01T06:00:00-06:00"},
		"coordinates": {"longitude": -106.6, "latitude": 35.1},
		"averagingPeriod": {"unit": "hours", "value": 1},
		"attribution": [{"name": "US EPA AirNow"}]
	}`

	row, err := ParseLine([]byte(line))
	require.NoError(t, err)

	assert.Equal(t, "Del Norte", *row.Location)
	assert.Equal(t, 7.3, *row.Value)
	assert.Equal(t, "pm25", *row.Parameter)
	assert.Equal(t, "US", *row.Country)
	assert.Equal(t, "AirNow", *row.SourceName)
	assert.Equal(t, false, *row.Mobile)
	assert.Equal(t, time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC), row.Datetime)
	assert.Equal(t, "SRID=4326;POINT(-106.6 35.1)", *row.Coords)
	assert.Equal(t, "hours", *row.AvpdUnit)
	assert.Equal(t, 1.0, *row.AvpdValue)

	// residual metadata keeps only keys not lifted into columns
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(row.Data, &data))
	assert.Contains(t, data, "attribution")
	assert.NotContains(t, data, "location")
	assert.NotContains(t, data, "date")
	assert.NotContains(t, data, "coordinates")
}

func TestParseLineMissingFields(t *testing.T) {
	line := `{"parameter": "pm25", "value": 3, "date": {"utc": "2023-04-01T12:00:00Z"}}`

	row, err := ParseLine([]byte(line))
	require.NoError(t, err)

	assert.Nil(t, row.Location)
	assert.Nil(t, row.Coords)
	assert.Nil(t, row.Mobile)
	assert.Nil(t, row.AvpdUnit)
	assert.JSONEq(t, `{}`, string(row.Data))
}

func TestParseLinePartialCoordinates(t *testing.T) {
	line := `{"parameter": "pm25", "value": 3,
		"date": {"utc": "2023-04-01T12:00:00Z"},
		"coordinates": {"longitude": -106.6}}`

	row, err := ParseLine([]byte(line))
	require.NoError(t, err)
	assert.Nil(t, row.Coords)
}

func TestParseLineErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"not json", `{not json`},
		{"no date", `{"parameter": "pm25", "value": 3}`},
		{"no utc", `{"parameter": "pm25", "date": {"local": "2023-04-01T06:00:00-06:00"}}`},
		{"bad datetime", `{"parameter": "pm25", "date": {"utc": "yesterday"}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseLine([]byte(tc.line))
			assert.Error(t, err)
		})
	}
}

func TestParseLineDatetimeLayouts(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2023-04-01T12:00:00Z", time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)},
		{"2023-04-01T12:00:00+02:00", time.Date(2023, 4, 1, 10, 0, 0, 0, time.UTC)},
		{"2023-04-01T12:00:00", time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)},
		{"2023-04-01 12:00:00", time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		got, err := parseUTC(tc.in)
		require.NoError(t, err, tc.in)
		assert.True(t, got.Equal(tc.want), "parseUTC(%q) = %v", tc.in, got)
	}
}

func TestStagingRowValues(t *testing.T) {
	line := `{"location": "A", "value": 1, "parameter": "pm25", "date": {"utc": "2023-04-01T12:00:00Z"}}`
	row, err := ParseLine([]byte(line))
	require.NoError(t, err)

	values := row.values()
	require.Len(t, values, len(stagingColumns))
}
