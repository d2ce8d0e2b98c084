package restserver

import (
	"fmt"
	"net/http"

	"github.com/opensensors/airsense/internal/query"
)

// citiesQuery aggregates sensor totals per country+city
const citiesQuery = `
WITH t AS (
SELECT
    country,
    city,
    sum(value_count) as count,
    count(*) as locations,
    to_char(min(first_datetime),'YYYY-MM-DD') as "firstUpdated",
    to_char(max(last_datetime), 'YYYY-MM-DD') as "lastUpdated",
    array_agg(DISTINCT measurand) as parameters
FROM sensors_total
LEFT JOIN sensors_first_last USING (sensors_id)
LEFT JOIN sensors USING (sensors_id)
LEFT JOIN sensor_systems USING (sensor_systems_id)
LEFT JOIN sensor_nodes USING (sensor_nodes_id)
LEFT JOIN measurands USING (measurands_id)
WHERE
%s
GROUP BY
country,
city
ORDER BY %s %s
OFFSET @offset
LIMIT @limit
)
SELECT count(*) OVER () as count, row_to_json(t) as json FROM t
`

// GetCities serves per-city aggregates
func (h *Handlers) GetCities(w http.ResponseWriter, req *http.Request) {
	p, err := query.ParseCities(req.URL.Query())
	if err != nil {
		h.writeError(w, err)
		return
	}

	where, args := p.Where()
	p.Args(args)
	q := fmt.Sprintf(citiesQuery, where, p.OrderBy, p.Sort)

	ctx, cancel := h.queryContext(req)
	defer cancel()
	res, err := h.controller.DB.FetchCached(ctx, q, args, p.Page, p.Limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeResult(w, req, res)
}

// countriesQuery aggregates sensor totals per country
const countriesQuery = `
WITH t AS (
SELECT
    country as code,
    name,
    sum(value_count) as count,
    count(*) as locations,
    to_char(min(first_datetime),'YYYY-MM-DD') as "firstUpdated",
    to_char(max(last_datetime), 'YYYY-MM-DD') as "lastUpdated",
    array_agg(DISTINCT measurand) as parameters
FROM sensors_total
LEFT JOIN sensors_first_last USING (sensors_id)
LEFT JOIN sensors USING (sensors_id)
LEFT JOIN sensor_systems USING (sensor_systems_id)
LEFT JOIN sensor_nodes USING (sensor_nodes_id)
LEFT JOIN countries ON (country=iso_a2)
LEFT JOIN measurands USING (measurands_id)
WHERE
%s
GROUP BY
1,2
ORDER BY %s %s
OFFSET @offset
LIMIT @limit
)
SELECT count(*) OVER () as count, row_to_json(t) as json FROM t
`

// GetCountries serves per-country aggregates
func (h *Handlers) GetCountries(w http.ResponseWriter, req *http.Request) {
	p, err := query.ParseCountriesParams(pathID(req, "country_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	where, args := p.Where()
	p.Args(args)
	q := fmt.Sprintf(countriesQuery, where, p.OrderBy, p.Sort)

	ctx, cancel := h.queryContext(req)
	defer cancel()
	res, err := h.controller.DB.FetchCached(ctx, q, args, p.Page, p.Limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeResult(w, req, res)
}

// sourcesQuery aggregates sensor totals per upstream source, merged with
// the source's own metadata document.
const sourcesQuery = `
WITH t AS (
SELECT
    source_name as "sourceName",
    data::jsonb as data,
    sum(value_count) as count,
    count(*) as locations,
    to_char(min(first_datetime),'YYYY-MM-DD') as "firstUpdated",
    to_char(max(last_datetime), 'YYYY-MM-DD') as "lastUpdated",
    array_agg(DISTINCT measurand) as parameters
FROM sources
LEFT JOIN sensor_nodes USING (source_name)
LEFT JOIN sensor_systems USING (sensor_nodes_id)
LEFT JOIN sensors USING (sensor_systems_id)
LEFT JOIN sensors_total USING (sensors_id)
LEFT JOIN sensors_first_last USING (sensors_id)
LEFT JOIN measurands USING (measurands_id)
WHERE
%s
GROUP BY
1,2
ORDER BY %s %s
OFFSET @offset
LIMIT @limit
)
SELECT count(*) OVER () as count,
    (coalesce(data, '{}'::jsonb) || jsonb_build_object(
        'count', count,
        'locations', locations,
        'firstUpdated', "firstUpdated",
        'lastUpdated', "lastUpdated",
        'parameters', parameters
        )) as json FROM t
`

// GetSources serves per-source aggregates
func (h *Handlers) GetSources(w http.ResponseWriter, req *http.Request) {
	p, err := query.ParseSources(req.URL.Query())
	if err != nil {
		h.writeError(w, err)
		return
	}

	where, args := p.Where()
	p.Args(args)
	q := fmt.Sprintf(sourcesQuery, where, p.OrderBy, p.Sort)

	ctx, cancel := h.queryContext(req)
	defer cancel()
	res, err := h.controller.DB.FetchCached(ctx, q, args, p.Page, p.Limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeResult(w, req, res)
}

// projectsQuery aggregates the source-type rollup groups, with date
// bounds resolved per group through the sensor first/last table.
const projectsQuery = `
WITH t AS (
SELECT
    groups_id as "id",
    name,
    subtitle,
    sum(value_count) as count,
    min("firstUpdated") as "firstUpdated",
    max("lastUpdated") as "lastUpdated",
    count(*) as locations,
    array_agg(DISTINCT measurand) as parameters
FROM rollups
LEFT JOIN groups USING (groups_id)
LEFT JOIN measurands USING (measurands_id)
LEFT JOIN LATERAL (
    SELECT
        min(first_datetime) as "firstUpdated",
        max(last_datetime) as "lastUpdated"
    FROM groups_sensors g, sensors_first_last sfl
    WHERE
        g.groups_id = rollups.groups_id
        AND
        sfl.sensors_id = g.sensors_id
    ) as fl ON TRUE
WHERE
type='source' AND rollup='total'
AND %s
GROUP BY
1,2,3
ORDER BY %s %s
)
SELECT count(*) OVER () as count, row_to_json(t) as json FROM t
LIMIT @limit
OFFSET @offset
`

// GetProjects serves per-project aggregates
func (h *Handlers) GetProjects(w http.ResponseWriter, req *http.Request) {
	p, err := query.ParseProjects(pathID(req, "project_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	where, args := p.Where()
	p.Args(args)
	q := fmt.Sprintf(projectsQuery, where, p.OrderBy, p.Sort)

	ctx, cancel := h.queryContext(req)
	defer cancel()
	res, err := h.controller.DB.FetchCached(ctx, q, args, p.Page, p.Limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeResult(w, req, res)
}

// distinctMetadataQuery lists one distinct value of a sensor system
// metadata key. The key is never user input.
const distinctMetadataQuery = `
WITH t AS (
select distinct metadata->>'%s' as vals from sensor_systems
where metadata ? '%s'
)
SELECT count(*) OVER () as count, to_jsonb(vals) as json FROM t
LIMIT @limit
OFFSET @offset
`

func (h *Handlers) getDistinctMetadata(w http.ResponseWriter, req *http.Request, key string) {
	p, err := query.ParsePaging(req.URL.Query())
	if err != nil {
		h.writeError(w, err)
		return
	}

	args := make(map[string]interface{})
	p.Args(args)
	q := fmt.Sprintf(distinctMetadataQuery, key, key)

	ctx, cancel := h.queryContext(req)
	defer cancel()
	res, err := h.controller.DB.FetchCached(ctx, q, args, p.Page, p.Limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeResult(w, req, res)
}

// GetManufacturers lists the distinct sensor manufacturers
func (h *Handlers) GetManufacturers(w http.ResponseWriter, req *http.Request) {
	h.getDistinctMetadata(w, req, "manufacturer_name")
}

// GetModels lists the distinct sensor models
func (h *Handlers) GetModels(w http.ResponseWriter, req *http.Request) {
	h.getDistinctMetadata(w, req, "model_name")
}
