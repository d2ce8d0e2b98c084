package restserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opensensors/airsense/internal/database"
	"github.com/opensensors/airsense/pkg/config"
)

// fakeStore satisfies Store with canned responses for handler tests
type fakeStore struct {
	fetchFn    func(query string, args map[string]interface{}, page, limit int) (*database.Result, error)
	fetchRowFn func(query string, args map[string]interface{}, dest ...interface{}) error
	parameters []database.Measurand
	lastFetch  *database.Fetchlog

	queries []string
}

func (f *fakeStore) Fetch(ctx context.Context, query string, args map[string]interface{}, page, limit int) (*database.Result, error) {
	f.queries = append(f.queries, query)
	return f.fetchFn(query, args, page, limit)
}

func (f *fakeStore) FetchCached(ctx context.Context, query string, args map[string]interface{}, page, limit int) (*database.Result, error) {
	return f.Fetch(ctx, query, args, page, limit)
}

func (f *fakeStore) FetchRow(ctx context.Context, query string, args map[string]interface{}, dest ...interface{}) error {
	f.queries = append(f.queries, query)
	if f.fetchRowFn == nil {
		return sql.ErrNoRows
	}
	return f.fetchRowFn(query, args, dest...)
}

func (f *fakeStore) GetParameters(orderBy, sort string) ([]database.Measurand, error) {
	return f.parameters, nil
}

func (f *fakeStore) LastCompletedFetch() (*database.Fetchlog, error) {
	return f.lastFetch, nil
}

func newTestServer(store *fakeStore) *httptest.Server {
	ctrl := &Controller{
		apiConfig: config.APIData{CacheMaxAge: 60},
		DB:        store,
	}
	ctrl.handlers = NewHandlers(ctrl)
	return httptest.NewServer(ctrl.setupRouter())
}

func resultPage(found int64, rows ...string) *database.Result {
	res := &database.Result{
		Meta:    database.NewMeta(1, 100),
		Results: make([]json.RawMessage, 0, len(rows)),
	}
	res.Meta.Found = found
	for _, row := range rows {
		res.Results = append(res.Results, json.RawMessage(row))
	}
	return res
}

func getJSON(t *testing.T, srv *httptest.Server, path string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp.StatusCode, body
}

func TestGetTileBounds(t *testing.T) {
	store := &fakeStore{
		fetchRowFn: func(query string, args map[string]interface{}, dest ...interface{}) error {
			*(dest[0].(*[]byte)) = []byte{0x1a, 0x00}
			return nil
		},
	}
	srv := newTestServer(store)
	defer srv.Close()

	// the grid at zoom z is 2^z tiles on a side
	cases := []struct {
		path   string
		status int
	}{
		{"/v2/locations/tiles/2/3/3.pbf", http.StatusOK},
		{"/v2/locations/tiles/2/4/0.pbf", http.StatusUnprocessableEntity},
		{"/v2/locations/tiles/2/0/4.pbf", http.StatusUnprocessableEntity},
		{"/v2/locations/tiles/2/-1/0.pbf", http.StatusUnprocessableEntity},
		{"/v2/locations/tiles/31/0/0.pbf", http.StatusUnprocessableEntity},
		{"/v2/locations/tiles/2/a/0.pbf", http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		resp, err := http.Get(srv.URL + tc.path)
		if err != nil {
			t.Fatalf("%s: request failed: %v", tc.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.status {
			t.Errorf("%s: status = %d, want %d", tc.path, resp.StatusCode, tc.status)
		}
	}
}

func TestPing(t *testing.T) {
	srv := newTestServer(&fakeStore{})
	defer srv.Close()

	status, body := getJSON(t, srv, "/ping")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body["ping"] != "pong" {
		t.Errorf("body = %v", body)
	}
}

func TestGetLocations(t *testing.T) {
	store := &fakeStore{
		fetchFn: func(query string, args map[string]interface{}, page, limit int) (*database.Result, error) {
			return resultPage(1, `{"id":42,"name":"Gare de Lyon","country":"FR"}`), nil
		},
	}
	srv := newTestServer(store)
	defer srv.Close()

	status, body := getJSON(t, srv, "/v2/locations?country=FR")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}

	meta := body["meta"].(map[string]interface{})
	if meta["found"].(float64) != 1 {
		t.Errorf("found = %v", meta["found"])
	}
	if meta["name"] != "openaq-api" {
		t.Errorf("meta name = %v", meta["name"])
	}
	results := body["results"].([]interface{})
	if len(results) != 1 {
		t.Fatalf("results = %v", results)
	}
	if !strings.Contains(store.queries[0], "locations_base") {
		t.Errorf("unexpected query: %s", store.queries[0])
	}
}

func TestGetLocationsValidation(t *testing.T) {
	srv := newTestServer(&fakeStore{})
	defer srv.Close()

	status, body := getJSON(t, srv, "/v2/locations?limit=0")
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", status)
	}
	detail := body["detail"].([]interface{})
	if len(detail) != 1 {
		t.Fatalf("detail = %v", detail)
	}
}

func TestGetLatestAnnotatesAQI(t *testing.T) {
	row := `{
		"id": 7, "name": "Downtown", "city": "Denver", "country": "US",
		"coordinates": {"latitude": 39.7, "longitude": -104.9},
		"parameters": [
			{"measurand": "pm25", "lastValue": 35.4, "lastUpdated": "2023-04-01T00:00:00Z", "unit": "µg/m³", "count": 120},
			{"measurand": "o3", "lastValue": 0.03, "lastUpdated": "2023-04-01T00:00:00Z", "unit": "ppm", "count": 80}
		]
	}`
	store := &fakeStore{
		fetchFn: func(query string, args map[string]interface{}, page, limit int) (*database.Result, error) {
			return resultPage(1, row), nil
		},
	}
	srv := newTestServer(store)
	defer srv.Close()

	status, body := getJSON(t, srv, "/v2/latest")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}

	results := body["results"].([]interface{})
	loc := results[0].(map[string]interface{})
	if loc["location"] != "Downtown" {
		t.Errorf("location = %v", loc["location"])
	}
	measurements := loc["measurements"].([]interface{})
	if len(measurements) != 2 {
		t.Fatalf("measurements = %v", measurements)
	}

	pm25 := measurements[0].(map[string]interface{})
	if pm25["aqi"].(float64) != 100 {
		t.Errorf("pm2.5 of 35.4 should map to AQI 100, got %v", pm25["aqi"])
	}
	if pm25["aqiCategory"] != "Moderate" {
		t.Errorf("aqiCategory = %v", pm25["aqiCategory"])
	}

	o3 := measurements[1].(map[string]interface{})
	if _, annotated := o3["aqi"]; annotated {
		t.Error("ozone should not carry an AQI annotation")
	}
}

func TestGetLocationsV1(t *testing.T) {
	row := `{
		"id": 7, "name": "Downtown", "city": "Denver", "country": "US",
		"firstUpdated": "2020-01-01", "lastUpdated": "2023-04-01",
		"sensorType": "low-cost sensor",
		"sources": [{"name": "PurpleAir", "id": "purpleair"}],
		"parameters": [
			{"measurand": "pm25", "count": 120},
			{"measurand": "pm10", "count": 30}
		]
	}`
	store := &fakeStore{
		fetchFn: func(query string, args map[string]interface{}, page, limit int) (*database.Result, error) {
			return resultPage(1, row), nil
		},
	}
	srv := newTestServer(store)
	defer srv.Close()

	status, body := getJSON(t, srv, "/v1/locations")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}

	loc := body["results"].([]interface{})[0].(map[string]interface{})
	if loc["count"].(float64) != 150 {
		t.Errorf("count = %v, want 150", loc["count"])
	}
	if loc["sourceName"] != "PurpleAir" {
		t.Errorf("sourceName = %v", loc["sourceName"])
	}
	params := loc["parameters"].([]interface{})
	if len(params) != 2 || params[0] != "pm25" {
		t.Errorf("parameters = %v", params)
	}
}

func TestGetMeasurements(t *testing.T) {
	first := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	last := first.Add(12 * time.Hour)

	store := &fakeStore{
		fetchRowFn: func(query string, args map[string]interface{}, dest ...interface{}) error {
			*(dest[0].(*sql.NullFloat64)) = sql.NullFloat64{Float64: 2, Valid: true}
			*(dest[1].(*sql.NullTime)) = sql.NullTime{Time: first, Valid: true}
			*(dest[2].(*sql.NullTime)) = sql.NullTime{Time: last, Valid: true}
			return nil
		},
		fetchFn: func(query string, args map[string]interface{}, page, limit int) (*database.Result, error) {
			return resultPage(2,
				`{"locationId":7,"location":"Downtown","parameter":"pm25","value":12.1,"date":{"utc":"2023-01-01T06:00:00Z","local":"2023-01-01T00:00:00-06:00"},"unit":"µg/m³","country":"US","city":"Denver","isMobile":false}`,
				`{"locationId":7,"location":"Downtown","parameter":"pm25","value":9.8,"date":{"utc":"2023-01-01T07:00:00Z","local":"2023-01-01T01:00:00-06:00"},"unit":"µg/m³","country":"US","city":"Denver","isMobile":false}`,
			), nil
		},
	}
	srv := newTestServer(store)
	defer srv.Close()

	status, body := getJSON(t, srv, "/v2/measurements?country=US")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	meta := body["meta"].(map[string]interface{})
	if meta["found"].(float64) != 2 {
		t.Errorf("found = %v", meta["found"])
	}
	if len(body["results"].([]interface{})) != 2 {
		t.Errorf("results = %v", body["results"])
	}

	// country-only queries summarize from the country rollups
	if !strings.Contains(store.queries[0], "rollup = 'month'") {
		t.Errorf("summary query missing rollup filter: %s", store.queries[0])
	}
}

// A node-level filter combined with a parameter or unit filter joins the
// node base view into the rollup summary. The join must not re-expose
// measurand or units, which groups_view already provides, or the filter
// fragments stop resolving to a single column.
func TestGetMeasurementsFilteredSummaryColumns(t *testing.T) {
	first := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		fetchRowFn: func(query string, args map[string]interface{}, dest ...interface{}) error {
			*(dest[0].(*sql.NullFloat64)) = sql.NullFloat64{Float64: 1, Valid: true}
			*(dest[1].(*sql.NullTime)) = sql.NullTime{Time: first, Valid: true}
			*(dest[2].(*sql.NullTime)) = sql.NullTime{Time: first.Add(time.Hour), Valid: true}
			return nil
		},
		fetchFn: func(query string, args map[string]interface{}, page, limit int) (*database.Result, error) {
			return resultPage(1, `{"locationId":55,"parameter":"pm25","value":4.2}`), nil
		},
	}
	srv := newTestServer(store)
	defer srv.Close()

	status, _ := getJSON(t, srv, "/v2/measurements?location=55&parameter=pm25&unit=ppm")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}

	summary := store.queries[0]
	if !strings.Contains(summary, "groups_sensors") {
		t.Fatalf("filtered summary should join down to nodes: %s", summary)
	}
	if strings.Contains(summary, "LEFT JOIN measurements_base b") {
		t.Errorf("summary joins the full node view, duplicating measurand and units: %s", summary)
	}
	if !strings.Contains(summary, "sensor_nodes_id, site_name") {
		t.Errorf("summary join missing the node column projection: %s", summary)
	}
	if !strings.Contains(summary, "type = @rolluptype") {
		t.Errorf("summary query missing rollup type filter: %s", summary)
	}
}

func TestGetMeasurementsCSV(t *testing.T) {
	first := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		fetchRowFn: func(query string, args map[string]interface{}, dest ...interface{}) error {
			*(dest[0].(*sql.NullFloat64)) = sql.NullFloat64{Float64: 1, Valid: true}
			*(dest[1].(*sql.NullTime)) = sql.NullTime{Time: first, Valid: true}
			*(dest[2].(*sql.NullTime)) = sql.NullTime{Time: first.Add(time.Hour), Valid: true}
			return nil
		},
		fetchFn: func(query string, args map[string]interface{}, page, limit int) (*database.Result, error) {
			return resultPage(1,
				`{"location":"Downtown","city":"Denver","country":"US","parameter":"pm25","value":12.1,"unit":"µg/m³","date":{"utc":"2023-01-01T00:30:00Z","local":"2022-12-31T18:30:00-06:00"},"coordinates":{"latitude":39.7,"longitude":-104.9}}`,
			), nil
		},
	}
	srv := newTestServer(store)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v2/measurements?format=csv")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q", ct)
	}
}

func TestGetAveragesEmptyBounds(t *testing.T) {
	store := &fakeStore{
		fetchRowFn: func(query string, args map[string]interface{}, dest ...interface{}) error {
			// both bounds stay null: nothing ingested for this grouping
			return nil
		},
	}
	srv := newTestServer(store)
	defer srv.Close()

	status, body := getJSON(t, srv, "/v2/averages?spatial=country&temporal=day")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(body["results"].([]interface{})) != 0 {
		t.Errorf("results = %v", body["results"])
	}
}

func TestGetParameters(t *testing.T) {
	display := "PM2.5"
	store := &fakeStore{
		parameters: []database.Measurand{
			{MeasurandsID: 1, Measurand: "pm25", Units: "µg/m³", Display: &display},
			{MeasurandsID: 2, Measurand: "o3", Units: "ppm"},
		},
	}
	srv := newTestServer(store)
	defer srv.Close()

	status, body := getJSON(t, srv, "/v2/parameters")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	meta := body["meta"].(map[string]interface{})
	if meta["found"].(float64) != 2 {
		t.Errorf("found = %v", meta["found"])
	}
	p := body["results"].([]interface{})[0].(map[string]interface{})
	if p["name"] != "pm25" || p["displayName"] != "PM2.5" {
		t.Errorf("parameter = %v", p)
	}
}

func TestGetStatus(t *testing.T) {
	done := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{
		lastFetch: &database.Fetchlog{Key: "realtime/2023-04-01.ndjson.gz", Completed: &done},
	}
	srv := newTestServer(store)
	defer srv.Close()

	status, body := getJSON(t, srv, "/status")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body["status"] != "ok" || body["lastIngestKey"] != "realtime/2023-04-01.ndjson.gz" {
		t.Errorf("body = %v", body)
	}
}

func TestCacheControlHeader(t *testing.T) {
	srv := newTestServer(&fakeStore{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ping")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=60" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id header")
	}
}
