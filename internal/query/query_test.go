package query

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestParsePaging(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantPage   int
		wantOffset int
		wantErr    string
	}{
		{name: "defaults", query: "", wantLimit: 100, wantPage: 1, wantOffset: 0},
		{name: "explicit", query: "limit=50&page=3", wantLimit: 50, wantPage: 3, wantOffset: 100},
		{name: "limit too large", query: "limit=100001", wantErr: "limit"},
		{name: "limit zero", query: "limit=0", wantErr: "limit"},
		{name: "page too large", query: "page=6001", wantErr: "page"},
		{name: "window exceeded", query: "limit=1000&page=101", wantErr: "page"},
		{name: "not a number", query: "limit=abc", wantErr: "limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vals, _ := url.ParseQuery(tt.query)
			p, err := ParsePaging(vals)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error, got %+v", p)
				}
				if verr, ok := err.(*ValidationError); !ok || verr.Param != tt.wantErr {
					t.Fatalf("expected error on %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Limit != tt.wantLimit || p.Page != tt.wantPage || p.Offset != tt.wantOffset {
				t.Errorf("got %+v, want limit=%d page=%d offset=%d",
					p, tt.wantLimit, tt.wantPage, tt.wantOffset)
			}
		})
	}
}

func TestParseDatetime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2021-06-01", time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"2021-06-01T12:30:45", time.Date(2021, 6, 1, 12, 30, 0, 0, time.UTC)},
		{"2021-06-01T12:30:45Z", time.Date(2021, 6, 1, 12, 30, 0, 0, time.UTC)},
		{"2021-06-01T12:30:45+02:00", time.Date(2021, 6, 1, 10, 30, 0, 0, time.UTC)},
		{"1622550600", time.Date(2021, 6, 1, 12, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got, err := ParseDatetime(tt.in)
		if err != nil {
			t.Errorf("ParseDatetime(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseDatetime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseDatetime("not-a-date"); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestDateRangeClamp(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	dr := DateRange{
		From: time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	got := dr.Clamp(start, end)
	if !got.From.Equal(start) {
		t.Errorf("From = %v, want %v", got.From, start)
	}
	if !got.To.Equal(end) {
		t.Errorf("To = %v, want %v", got.To, end)
	}

	// a range inside the bounds passes through unchanged
	dr = DateRange{
		From: time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	got = dr.Clamp(start, end)
	if !got.From.Equal(dr.From) || !got.To.Equal(dr.To) {
		t.Errorf("inner range changed: %+v", got)
	}
}

func TestParseGeo(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantNil bool
		wantErr bool
		radius  int
	}{
		{name: "absent", query: "", wantNil: true},
		{name: "valid", query: "coordinates=38.907,-77.037", radius: 1000},
		{name: "with radius", query: "coordinates=38.907,-77.037&radius=2500", radius: 2500},
		{name: "bad latitude", query: "coordinates=98.0,-77.0", wantErr: true},
		{name: "bad longitude", query: "coordinates=38.0,-190.0", wantErr: true},
		{name: "not a pair", query: "coordinates=38.907", wantErr: true},
		{name: "radius too large", query: "coordinates=38.907,-77.037&radius=100001", wantErr: true},
		{name: "radius zero", query: "coordinates=38.907,-77.037&radius=0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vals, _ := url.ParseQuery(tt.query)
			g, err := ParseGeo(vals)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantNil {
				if g != nil {
					t.Fatalf("expected nil, got %+v", g)
				}
				return
			}
			if g == nil {
				t.Fatal("expected geo filter")
			}
			if g.Radius != tt.radius {
				t.Errorf("radius = %d, want %d", g.Radius, tt.radius)
			}
		})
	}
}

func TestGeoWhere(t *testing.T) {
	g := &Geo{Lat: 38.907, Lon: -77.037, Radius: 1000}
	args := make(map[string]interface{})
	frag := g.Where(args)
	if !strings.Contains(frag, "st_dwithin") {
		t.Errorf("fragment missing st_dwithin: %q", frag)
	}
	if args["lat"] != 38.907 || args["lon"] != -77.037 || args["radius"] != 1000 {
		t.Errorf("args not bound: %v", args)
	}

	var none *Geo
	if frag := none.Where(args); frag != "" {
		t.Errorf("nil geo produced fragment %q", frag)
	}
}

func TestParseCountries(t *testing.T) {
	vals, _ := url.ParseQuery("country=us&country=MX")
	got, err := ParseCountries(vals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "US" || got[1] != "MX" {
		t.Errorf("got %v, want [US MX]", got)
	}

	vals, _ = url.ParseQuery("country=USA")
	if _, err := ParseCountries(vals); err == nil {
		t.Error("expected error for three letter code")
	}

	// country_id wins over the list form
	vals, _ = url.ParseQuery("country_id=de&country=US")
	got, err = ParseCountries(vals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "DE" {
		t.Errorf("got %v, want [DE]", got)
	}
}

func TestParseIDsOrNames(t *testing.T) {
	vals, _ := url.ParseQuery("location=1&location=42")
	f, err := ParseIDsOrNames(vals, "location", "location")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.IDs) != 2 || f.IDs[0] != 1 || f.IDs[1] != 42 {
		t.Errorf("IDs = %v, want [1 42]", f.IDs)
	}

	// a single non-numeric value turns the whole filter into names
	vals, _ = url.ParseQuery("location=7&location=Bilbao")
	f, err = ParseIDsOrNames(vals, "location", "location")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.IDs) != 0 || len(f.Names) != 2 {
		t.Errorf("got %+v, want names only", f)
	}

	vals, _ = url.ParseQuery("location=0")
	if _, err := ParseIDsOrNames(vals, "location", "location"); err == nil {
		t.Error("expected error for id below 1")
	}

	vals, _ = url.ParseQuery("")
	f, _ = ParseIDsOrNames(vals, "location", "location")
	if !f.Empty() {
		t.Errorf("expected empty filter, got %+v", f)
	}
}

func TestLocationsWhere(t *testing.T) {
	vals, _ := url.ParseQuery("country=US&parameter=pm25&isMobile=false")
	p, err := ParseLocations(vals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	where, args := p.Where()
	for _, frag := range []string{
		"country = ANY(@country)",
		"jsonb_array_query('parameter', @parameter::text[])",
		`"isMobile" = @is_mobile`,
	} {
		if !strings.Contains(where, frag) {
			t.Errorf("where missing %q: %s", frag, where)
		}
	}
	if _, ok := args["country"]; !ok {
		t.Error("country arg not bound")
	}
	if args["is_mobile"] != false {
		t.Errorf("is_mobile = %v, want false", args["is_mobile"])
	}

	vals, _ = url.ParseQuery("hasGeo=true")
	p, _ = ParseLocations(vals)
	where, _ = p.Where()
	if !strings.Contains(where, "geog is not null") {
		t.Errorf("hasGeo=true rendered %q", where)
	}
	vals, _ = url.ParseQuery("has_geo=false")
	p, _ = ParseLocations(vals)
	where, _ = p.Where()
	if !strings.Contains(where, "geog is null") {
		t.Errorf("hasGeo=false rendered %q", where)
	}

	// no filters yields a match-everything clause
	vals, _ = url.ParseQuery("")
	p, _ = ParseLocations(vals)
	where, args = p.Where()
	if strings.TrimSpace(where) != "TRUE" {
		t.Errorf("empty filter set rendered %q", where)
	}
	if len(args) != 0 {
		t.Errorf("empty filter set bound args %v", args)
	}
}

func TestLocationsOrderBy(t *testing.T) {
	vals, _ := url.ParseQuery("order_by=count")
	p, err := ParseLocations(vals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.OrderBy != `"measurements"` {
		t.Errorf("order by = %q", p.OrderBy)
	}

	vals, _ = url.ParseQuery("order_by=random")
	p, _ = ParseLocations(vals)
	if !p.Random {
		t.Error("random ordering not flagged")
	}

	vals, _ = url.ParseQuery("order_by=drop+table")
	if _, err := ParseLocations(vals); err == nil {
		t.Error("expected error for unknown order column")
	}
}

func TestMeasurementsParams(t *testing.T) {
	vals, _ := url.ParseQuery("location=55&country=us&date_from=2021-01-01&date_to=2021-02-01")
	p, err := ParseMeasurements(vals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.OrderedByTime() {
		t.Error("default ordering should be datetime")
	}
	if p.Unfiltered() {
		t.Error("location filter should disable the rollup shortcut")
	}

	where, _ := p.Where()
	if !strings.Contains(where, "sensor_nodes_id = ANY(@location)") {
		t.Errorf("where missing node id filter: %s", where)
	}

	vals, _ = url.ParseQuery("country=US")
	p, _ = ParseMeasurements(vals)
	if !p.Unfiltered() {
		t.Error("country-only query should keep the rollup shortcut")
	}
}

func TestMeasurementsProjectAlias(t *testing.T) {
	// both spellings must reach the same filter
	for _, q := range []string{"project=5", "project_id=5"} {
		vals, _ := url.ParseQuery(q)
		p, err := ParseMeasurements(vals)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", q, err)
		}
		if p.Project == nil || *p.Project != 5 {
			t.Errorf("%s: project = %v, want 5", q, p.Project)
		}
		if p.Unfiltered() {
			t.Errorf("%s: project filter should disable the rollup shortcut", q)
		}
	}

	vals, _ := url.ParseQuery("project=abc")
	if _, err := ParseMeasurements(vals); err == nil {
		t.Error("expected error for non-numeric project")
	}
	vals, _ = url.ParseQuery("project=0")
	if _, err := ParseMeasurements(vals); err == nil {
		t.Error("expected error for out-of-range project")
	}
}

func TestParseAverages(t *testing.T) {
	vals, _ := url.ParseQuery("spatial=country&temporal=moy&country=US")
	p, err := ParseAverages(vals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rollup, col, order, regroup := p.Rollup()
	if rollup != "month" || !regroup {
		t.Errorf("moy should regroup month rollups, got %q regroup=%v", rollup, regroup)
	}
	if col != "to_char(st, 'Mon')" || order != "to_char(st, 'MM')" {
		t.Errorf("moy expressions: col=%q order=%q", col, order)
	}

	where, _ := p.Where()
	if !strings.Contains(where, "name = ANY(@country)") {
		t.Errorf("where missing country filter: %s", where)
	}

	vals, _ = url.ParseQuery("temporal=day")
	if _, err := ParseAverages(vals); err == nil {
		t.Error("expected error when spatial is missing")
	}
	vals, _ = url.ParseQuery("spatial=total&temporal=decade")
	if _, err := ParseAverages(vals); err == nil {
		t.Error("expected error for unknown temporal")
	}
}

func TestParseSort(t *testing.T) {
	vals, _ := url.ParseQuery("sort=desc")
	got, err := ParseSort(vals, SortAsc)
	if err != nil || got != SortDesc {
		t.Errorf("got %q %v, want DESC", got, err)
	}

	vals, _ = url.ParseQuery("")
	got, _ = ParseSort(vals, SortAsc)
	if got != SortAsc {
		t.Errorf("default sort = %q", got)
	}

	vals, _ = url.ParseQuery("sort=sideways")
	if _, err := ParseSort(vals, SortAsc); err == nil {
		t.Error("expected error for bad sort")
	}
}
