package restserver

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/lib/pq"

	"github.com/opensensors/airsense/internal/database"
	"github.com/opensensors/airsense/internal/query"
)

// measurementsSummaryQuery totals the month rollups that intersect the
// requested range, yielding the result count and the archive date bounds.
const measurementsSummaryQuery = `
SELECT
    sum(value_count),
    min(first_datetime),
    max(last_datetime)
FROM rollups
LEFT JOIN groups_view USING (groups_id, measurands_id)
%s
WHERE rollup = 'month' and type = @rolluptype
    AND
    st >= @date_from::timestamptz
    AND
    st < @date_to::timestamptz
    AND
    %s
`

// measurementsSummaryJoins connects rollup groups to nodes when a
// node-level filter applies. Only node-level columns are projected:
// groups_view already carries measurands_id, measurand and units, and
// exposing them twice would make the filter fragments ambiguous.
const measurementsSummaryJoins = `
    LEFT JOIN groups_sensors USING (groups_id)
    LEFT JOIN (
        SELECT sensors_id, sensor_nodes_id, site_name,
            country, city, ismobile, geog
        FROM measurements_base
    ) b ON (groups_sensors.sensors_id=b.sensors_id)
`

// measurementsPageQuery reads one window of raw measurements
const measurementsPageQuery = `
WITH t AS (
    SELECT
        sensor_nodes_id as location_id,
        site_name as location,
        measurand as parameter,
        value,
        datetime,
        timezone,
        CASE WHEN lon is not null and lat is not null THEN
            json_build_object(
                'latitude', lat,
                'longitude', lon
                )
            WHEN b.geog is not null THEN
            json_build_object(
                    'latitude', st_y(geog::geometry),
                    'longitude', st_x(geog::geometry)
                )
            ELSE NULL END AS coordinates,
        units as unit,
        country,
        city,
        ismobile
    FROM measurements a
    LEFT JOIN measurements_base b USING (sensors_id)
    WHERE %s
    AND datetime >= @rangestart::timestamptz
    AND datetime <= @rangeend::timestamptz
    ORDER BY %s %s
    OFFSET @offset
    LIMIT @limit
    ), t1 AS (
        SELECT
            location_id as "locationId",
            location,
            parameter,
            value,
            json_build_object(
                'utc',
                format_timestamp(datetime, 'UTC'),
                'local',
                format_timestamp(datetime, timezone)
            ) as date,
            unit,
            coordinates,
            country,
            city,
            ismobile as "isMobile"
        FROM t
    )
    SELECT @found::bigint as count,
    row_to_json(t1) as json FROM t1
`

// projectNodesFilter narrows measurements to the nodes of one project
const projectNodesFilter = " sensor_nodes_id = ANY(nodes_from_project(@project::int)) "

// GetMeasurements serves raw measurements. The total count and archive
// bounds come from the month rollups; the rows themselves are then paged
// through day-sized datetime windows so deep pages never scan the whole
// range.
func (h *Handlers) GetMeasurements(w http.ResponseWriter, req *http.Request) {
	p, err := query.ParseMeasurements(req.URL.Query())
	if err != nil {
		h.writeError(w, err)
		return
	}

	ctx, cancel := h.queryContext(req)
	defer cancel()

	where, args := p.Where()
	if p.Project != nil {
		args["project"] = *p.Project
		where = where + " AND " + projectNodesFilter
	}

	// an unfiltered query can be summarized from the total or country
	// rollups without joining down to nodes
	summaryWhere := where
	summaryJoins := measurementsSummaryJoins
	rolluptype := "node"
	if p.Unfiltered() {
		summaryJoins = ""
		if len(p.Countries) == 0 {
			rolluptype = "total"
		} else {
			rolluptype = "country"
			args["country"] = pq.Array(p.Countries)
			summaryWhere = " name = ANY(@country) "
		}
	}
	args["rolluptype"] = rolluptype
	args["date_from"] = p.From
	args["date_to"] = p.To

	var total sql.NullFloat64
	var first, last sql.NullTime
	summary := fmt.Sprintf(measurementsSummaryQuery, summaryJoins, summaryWhere)
	if err := h.controller.DB.FetchRow(ctx, summary, args, &total, &first, &last); err != nil {
		h.writeError(w, err)
		return
	}

	res := &database.Result{
		Meta:    database.NewMeta(p.Page, p.Limit),
		Results: []json.RawMessage{},
	}
	if !total.Valid || !first.Valid || !last.Valid || total.Float64 <= 0 {
		h.writeMeasurements(w, req, res)
		return
	}
	res.Meta.Found = int64(total.Float64)
	args["found"] = res.Meta.Found

	bounds := p.DateRange.Clamp(first.Time.UTC(), last.Time.UTC())

	const delta = 24 * time.Hour
	var rangeStart, rangeEnd time.Time
	if p.Sort == query.SortAsc {
		rangeStart = bounds.From
		rangeEnd = minTime(bounds.From.Add(delta), bounds.To)
	} else {
		rangeEnd = bounds.To
		rangeStart = maxTime(bounds.To.Add(-delta), bounds.From)
	}

	pageQuery := fmt.Sprintf(measurementsPageQuery, where, p.OrderBy, p.Sort)
	p.Args(args)

	for len(res.Results) < p.Limit &&
		!rangeStart.Before(bounds.From) && !rangeEnd.After(bounds.To) {
		args["rangestart"] = rangeStart
		args["rangeend"] = rangeEnd

		page, err := h.controller.DB.Fetch(ctx, pageQuery, args, p.Page, p.Limit)
		if err != nil {
			h.writeError(w, err)
			return
		}
		res.Results = append(res.Results, page.Results...)

		if p.Sort == query.SortDesc {
			rangeStart = rangeStart.Add(-delta)
			rangeEnd = rangeEnd.Add(-delta)
		} else {
			rangeStart = rangeStart.Add(delta)
			rangeEnd = rangeEnd.Add(delta)
		}
	}
	if len(res.Results) > p.Limit {
		res.Results = res.Results[:p.Limit]
	}

	h.writeMeasurements(w, req, res)
}

// writeMeasurements renders the measurement envelope, honoring CSV output
func (h *Handlers) writeMeasurements(w http.ResponseWriter, req *http.Request, res *database.Result) {
	if req.URL.Query().Get("format") != "csv" {
		h.writeResult(w, req, res)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment;filename=measurements.csv")

	cw := csv.NewWriter(w)
	cw.Write([]string{
		"location", "city", "country", "utc", "local",
		"parameter", "value", "unit", "latitude", "longitude",
	})
	for _, raw := range res.Results {
		var row MeasurementRow
		if err := json.Unmarshal(raw, &row); err != nil {
			continue
		}
		lat, lon := "", ""
		if row.Coordinates != nil {
			lat = strconv.FormatFloat(row.Coordinates.Latitude, 'f', -1, 64)
			lon = strconv.FormatFloat(row.Coordinates.Longitude, 'f', -1, 64)
		}
		cw.Write([]string{
			row.Location, row.City, row.Country,
			row.Date.UTC, row.Date.Local,
			row.Parameter, strconv.FormatFloat(row.Value, 'f', -1, 64),
			row.Unit, lat, lon,
		})
	}
	cw.Flush()
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
