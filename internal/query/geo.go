package query

import (
	"net/url"
	"strconv"
	"strings"
)

// DefaultRadius and MaxRadius bound the coordinate search distance in meters
const (
	DefaultRadius = 1000
	MaxRadius     = 100000
)

// Geo is a point-radius spatial filter parsed from coordinates=lat,lon
type Geo struct {
	Lat    float64
	Lon    float64
	Radius int
}

// ParseGeo decodes the coordinates and radius parameters. Returns nil
// when no coordinates were supplied.
func ParseGeo(vals url.Values) (*Geo, error) {
	coords := getFirst(vals, "coordinates")
	if coords == "" {
		return nil, nil
	}

	parts := strings.Split(coords, ",")
	if len(parts) != 2 {
		return nil, Errorf("coordinates", "must be lat,lon")
	}
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, lonErr := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if latErr != nil || lonErr != nil {
		return nil, Errorf("coordinates", "must be lat,lon")
	}
	if lat < -90 || lat > 90 {
		return nil, Errorf("coordinates", "latitude must be between -90 and 90")
	}
	if lon < -180 || lon > 180 {
		return nil, Errorf("coordinates", "longitude must be between -180 and 180")
	}

	g := &Geo{Lat: lat, Lon: lon, Radius: DefaultRadius}

	radius, err := getInt(vals, "radius", DefaultRadius)
	if err != nil {
		return nil, err
	}
	if radius <= 0 || radius > MaxRadius {
		return nil, Errorf("radius", "must be between 1 and %d", MaxRadius)
	}
	g.Radius = radius

	return g, nil
}

// Where renders the geography distance filter and binds its parameters.
// The geog column comes from the queried view.
func (g *Geo) Where(args map[string]interface{}) string {
	if g == nil {
		return ""
	}
	args["lat"] = g.Lat
	args["lon"] = g.Lon
	args["radius"] = g.Radius
	return " st_dwithin(st_makepoint(@lon, @lat)::geography, geog, @radius) "
}
