package restserver

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/opensensors/airsense/internal/query"
)

// tileQuery renders one web mercator tile of locations as a vector tile.
// The locations view carries node geometry in EPSG:3857 plus the summary
// properties baked into the tiles.
const tileQuery = `
WITH tile AS (
    SELECT ST_TileEnvelope(@z, @x, @y) AS env
),
mvtgeom AS (
    SELECT
        ST_AsMVTGeom(geom, tile.env, 4096, 256, true) AS geom,
        location_id,
        location,
        last_datetime,
        count
    FROM locations, tile
    WHERE geom && tile.env
)
SELECT ST_AsMVT(mvtgeom, 'locations', 4096, 'geom') FROM mvtgeom
`

const (
	tileMinZoom = 0
	tileMaxZoom = 30
)

// GetTile serves one Mapbox vector tile of monitoring locations
func (h *Handlers) GetTile(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	z, zErr := strconv.Atoi(vars["z"])
	x, xErr := strconv.Atoi(vars["x"])
	y, yErr := strconv.Atoi(vars["y"])
	if zErr != nil || xErr != nil || yErr != nil {
		h.writeError(w, query.Errorf("tile", "tile coordinates must be integers"))
		return
	}
	if z < tileMinZoom || z > tileMaxZoom {
		h.writeError(w, query.Errorf("z", "zoom must be between %d and %d", tileMinZoom, tileMaxZoom))
		return
	}
	// a zoom level z tile grid is 2^z on a side
	max := 1 << uint(z)
	if x < 0 || x >= max {
		h.writeError(w, query.Errorf("x", "must be between 0 and %d at zoom %d", max-1, z))
		return
	}
	if y < 0 || y >= max {
		h.writeError(w, query.Errorf("y", "must be between 0 and %d at zoom %d", max-1, z))
		return
	}

	ctx, cancel := h.queryContext(req)
	defer cancel()

	var tile []byte
	args := map[string]interface{}{"z": z, "x": x, "y": y}
	if err := h.controller.DB.FetchRow(ctx, tileQuery, args, &tile); err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.mapbox-vector-tile")
	w.Write(tile)
}

// GetTileJSON serves the tile metadata document
func (h *Handlers) GetTileJSON(w http.ResponseWriter, req *http.Request) {
	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}

	doc := TileJSON{
		TileJSON: "2.2.0",
		Name:     "locations",
		MinZoom:  tileMinZoom,
		MaxZoom:  tileMaxZoom,
		Tiles: []string{
			scheme + "://" + req.Host + "/v2/locations/tiles/{z}/{x}/{y}.pbf",
		},
	}
	h.formatter.WriteResponse(w, req, doc, nil)
}
