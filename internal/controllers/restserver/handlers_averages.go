package restserver

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/opensensors/airsense/internal/database"
	"github.com/opensensors/airsense/internal/query"
)

// averagesBoundsQuery reads the archive bounds for the selected spatial
// grouping from the total rollups.
const averagesBoundsQuery = `
SELECT
    min(st),
    max(et)
FROM rollups
LEFT JOIN groups_view USING (groups_id, measurands_id)
WHERE
    rollup = 'total'
    AND
    type = @spatial::text
    AND
    %s
`

// averagesQuery pages pre-aggregated averages. The first placeholders
// render the period column and its ordering key; the cyclic granularities
// regroup finer rollups and re-derive the average from summed counts.
const averagesQuery = `
WITH base AS (
    SELECT
        measurand as parameter,
        units as unit,
        %s as "%s",
        %s as o,
        name,
        subtitle,
        %s
    FROM rollups
    LEFT JOIN groups_view USING (groups_id, measurands_id)
    WHERE
        rollup = @temporal::text
        AND
        type = @spatial::text
        AND
        st >= @date_from
        AND
        st < @date_to
        AND
        %s
    %s
)
SELECT count(*) over () as count, to_jsonb(base)-'{o}'::text[] as json
FROM base
ORDER BY o %s
OFFSET @offset
LIMIT @limit
`

const averagesAgg = `
        value_count as measurement_count,
        round((value_sum/value_count)::numeric, 4) as average
`

const averagesRegroupAgg = `
        sum(value_count) as measurement_count,
        round((sum(value_sum)/sum(value_count))::numeric, 4) as average
`

// GetAverages serves pre-aggregated averages by spatial and temporal
// granularity.
func (h *Handlers) GetAverages(w http.ResponseWriter, req *http.Request) {
	p, err := query.ParseAverages(req.URL.Query())
	if err != nil {
		h.writeError(w, err)
		return
	}

	ctx, cancel := h.queryContext(req)
	defer cancel()

	where, args := p.Where()
	args["spatial"] = p.Spatial

	var first, last sql.NullTime
	bounds := fmt.Sprintf(averagesBoundsQuery, where)
	if err := h.controller.DB.FetchRow(ctx, bounds, args, &first, &last); err != nil {
		h.writeError(w, err)
		return
	}
	if !first.Valid || !last.Valid {
		h.writeResult(w, req, &database.Result{
			Meta:    database.NewMeta(p.Page, p.Limit),
			Results: []json.RawMessage{},
		})
		return
	}

	dr := p.DateRange.Clamp(first.Time.UTC(), last.Time.UTC())
	args["date_from"] = dr.From
	args["date_to"] = dr.To

	rollup, colExpr, orderExpr, regroup := p.Rollup()
	args["temporal"] = rollup

	agg := averagesAgg
	group := ""
	if regroup {
		agg = averagesRegroupAgg
		group = " GROUP BY 1,2,3,4,5,6 "
	}

	q := fmt.Sprintf(averagesQuery,
		colExpr, p.Temporal, orderExpr, agg, where, group, p.Sort)
	p.Args(args)

	res, err := h.controller.DB.Fetch(ctx, q, args, p.Page, p.Limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeResult(w, req, res)
}
