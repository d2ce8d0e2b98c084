package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// stagingColumns is the column order used for the COPY into tempfetchdata.
var stagingColumns = []string{
	"location",
	"value",
	"unit",
	"parameter",
	"country",
	"city",
	"data",
	"source_name",
	"datetime",
	"coords",
	"source_type",
	"mobile",
	"avpd_unit",
	"avpd_value",
}

// StagingRow is one measurement flattened for the staging table. Fields
// the upstream feed omitted stay nil and load as SQL nulls; everything
// not lifted into a column rides along in Data.
type StagingRow struct {
	Location   *string
	Value      *float64
	Unit       *string
	Parameter  *string
	Country    *string
	City       *string
	Data       []byte
	SourceName *string
	Datetime   time.Time
	Coords     *string
	SourceType *string
	Mobile     *bool
	AvpdUnit   *string
	AvpdValue  *float64
}

// values returns the row in stagingColumns order for CopyFrom.
func (r *StagingRow) values() []interface{} {
	return []interface{}{
		r.Location, r.Value, r.Unit, r.Parameter, r.Country, r.City,
		r.Data, r.SourceName, r.Datetime, r.Coords, r.SourceType,
		r.Mobile, r.AvpdUnit, r.AvpdValue,
	}
}

func popString(m map[string]interface{}, key string) *string {
	v, ok := m[key]
	delete(m, key)
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func popFloat(m map[string]interface{}, key string) *float64 {
	v, ok := m[key]
	delete(m, key)
	if !ok || v == nil {
		return nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return &f
}

func popBool(m map[string]interface{}, key string) *bool {
	v, ok := m[key]
	delete(m, key)
	if !ok || v == nil {
		return nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil
	}
	return &b
}

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseUTC(s string) (time.Time, error) {
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", s)
}

// ParseLine flattens one NDJSON measurement into a StagingRow. The UTC
// timestamp is required; coordinates become an EWKT point when both
// longitude and latitude are present. Keys not lifted into columns are
// kept as the residual Data blob.
func ParseLine(line []byte) (*StagingRow, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(line, &m); err != nil {
		return nil, fmt.Errorf("parsing measurement: %w", err)
	}

	row := &StagingRow{
		Location:   popString(m, "location"),
		Value:      popFloat(m, "value"),
		Unit:       popString(m, "unit"),
		Parameter:  popString(m, "parameter"),
		Country:    popString(m, "country"),
		City:       popString(m, "city"),
		SourceName: popString(m, "sourceName"),
		SourceType: popString(m, "sourceType"),
		Mobile:     popBool(m, "mobile"),
	}

	date, ok := m["date"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("measurement has no date object")
	}
	delete(m, "date")
	utc, ok := date["utc"].(string)
	if !ok {
		return nil, fmt.Errorf("measurement has no utc date")
	}
	dt, err := parseUTC(utc)
	if err != nil {
		return nil, err
	}
	row.Datetime = dt

	if avpd, ok := m["averagingPeriod"].(map[string]interface{}); ok {
		row.AvpdUnit = popString(avpd, "unit")
		row.AvpdValue = popFloat(avpd, "value")
	}
	delete(m, "averagingPeriod")

	if c, ok := m["coordinates"].(map[string]interface{}); ok {
		lon, lonOK := c["longitude"].(float64)
		lat, latOK := c["latitude"].(float64)
		if lonOK && latOK {
			ewkt := "SRID=4326;POINT(" +
				strconv.FormatFloat(lon, 'f', -1, 64) + " " +
				strconv.FormatFloat(lat, 'f', -1, 64) + ")"
			row.Coords = &ewkt
			delete(m, "coordinates")
		}
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("serializing residual metadata: %w", err)
	}
	row.Data = data

	return row, nil
}
