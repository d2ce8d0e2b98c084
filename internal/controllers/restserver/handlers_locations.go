package restserver

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/opensensors/airsense/internal/database"
	"github.com/opensensors/airsense/internal/query"
)

// locationsQuery pages the locations_base view. The node count across the
// whole filtered set rides along as the envelope count, and internal
// columns are stripped from the row JSON.
const locationsQuery = `
WITH t1 AS (
    SELECT *, row_number() over () as row
    FROM locations_base
    WHERE
    %s
    %s
    ORDER BY %s %s nulls last
    LIMIT @limit
    OFFSET @offset
),
nodes AS (
    SELECT count(distinct id) as nodes
    FROM locations_base
    WHERE
    %s
    %s
),
t2 AS (
SELECT
row,
jsonb_strip_nulls(
    to_jsonb(t1) - '{json,source_name,geog,row}'::text[]
) as json
FROM t1 group by row, t1, json
)
SELECT nodes as count, json
FROM t2, nodes
ORDER BY row
`

// randomGuard keeps random ordering from sampling long-dead locations
const randomGuard = ` AND "lastUpdated" > now() - '2 weeks'::interval `

// pathID folds a path id into the query values under the given key
func pathID(req *http.Request, key string) url.Values {
	vals := req.URL.Query()
	if id, ok := mux.Vars(req)["id"]; ok {
		copied := make(url.Values, len(vals)+1)
		for k, v := range vals {
			copied[k] = v
		}
		copied.Set(key, id)
		vals = copied
	}
	return vals
}

// fetchLocations runs the shared locations query for the locations and
// latest endpoint families.
func (h *Handlers) fetchLocations(req *http.Request) (*database.Result, error) {
	p, err := query.ParseLocations(pathID(req, "location_id"))
	if err != nil {
		return nil, err
	}

	where, args := p.Where()
	guard := ""
	if p.Random {
		guard = randomGuard
	}
	q := fmt.Sprintf(locationsQuery, where, guard, p.OrderBy, p.Sort, where, guard)
	p.Args(args)

	ctx, cancel := h.queryContext(req)
	defer cancel()
	return h.controller.DB.Fetch(ctx, q, args, p.Page, p.Limit)
}

// GetLocations lists monitoring locations with their per-parameter
// summaries.
func (h *Handlers) GetLocations(w http.ResponseWriter, req *http.Request) {
	res, err := h.fetchLocations(req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeResult(w, req, res)
}

// GetLatest reshapes location rows into the latest measurement per
// parameter.
func (h *Handlers) GetLatest(w http.ResponseWriter, req *http.Request) {
	res, err := h.fetchLocations(req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out, err := transformResult(res, toLatest)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeResult(w, req, out)
}

// GetLatestV1 serves the legacy latest shape, which matches v2
func (h *Handlers) GetLatestV1(w http.ResponseWriter, req *http.Request) {
	h.GetLatest(w, req)
}

// GetLocationsV1 serves the legacy flat location shape
func (h *Handlers) GetLocationsV1(w http.ResponseWriter, req *http.Request) {
	res, err := h.fetchLocations(req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out, err := transformResult(res, toV1Location)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeResult(w, req, out)
}
