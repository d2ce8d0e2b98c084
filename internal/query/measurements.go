package query

import (
	"net/url"
	"strconv"
)

// measurementsOrderBy maps order_by values to columns of the measurement
// page query.
var measurementsOrderBy = map[string]string{
	"city":     `"city"`,
	"country":  `"country"`,
	"location": `"location"`,
	"datetime": `"datetime"`,
}

// MeasurementsParams is the filter set for the raw measurement listing
type MeasurementsParams struct {
	Paging
	Sort    string
	OrderBy string
	DateRange

	Location  IDsOrNames
	Parameter IDsOrNames
	Units     []string
	Cities    []string
	Countries []string
	IsMobile  *bool
	Project   *int
	Geo       *Geo
}

// ParseMeasurements decodes the measurements filter set
func ParseMeasurements(vals url.Values) (*MeasurementsParams, error) {
	p := &MeasurementsParams{}
	var err error

	if p.Paging, err = ParsePaging(vals); err != nil {
		return nil, err
	}
	if p.Sort, err = ParseSort(vals, SortDesc); err != nil {
		return nil, err
	}
	if p.OrderBy, err = ParseOrderBy(vals, measurementsOrderBy, "datetime"); err != nil {
		return nil, err
	}
	if p.DateRange, err = ParseDateRange(vals); err != nil {
		return nil, err
	}

	if p.Location, err = ParseIDsOrNames(vals, "location", "location"); err != nil {
		return nil, err
	}
	if p.Parameter, err = ParseIDsOrNames(vals, "parameter", "parameter", "measurand"); err != nil {
		return nil, err
	}
	p.Units = getAll(vals, "unit")
	p.Cities = getAll(vals, "city")
	if p.Countries, err = ParseCountries(vals); err != nil {
		return nil, err
	}
	if p.IsMobile, err = getBool(vals, "isMobile", "is_mobile"); err != nil {
		return nil, err
	}
	if project := getFirst(vals, "project", "project_id"); project != "" {
		id, err := strconv.Atoi(project)
		if err != nil {
			return nil, Errorf("project", "must be an integer")
		}
		if id < 1 || id > maxInt32 {
			return nil, Errorf("project", "id must be between 1 and %d", maxInt32)
		}
		p.Project = &id
	}
	if p.Geo, err = ParseGeo(vals); err != nil {
		return nil, err
	}

	return p, nil
}

// OrderedByTime reports whether results are ordered by datetime, which
// lets the handler page through day-sized windows.
func (p *MeasurementsParams) OrderedByTime() bool {
	return p.OrderBy == `"datetime"`
}

// Unfiltered reports whether no node-level filter applies, so summary
// counts can come from the total or country rollups.
func (p *MeasurementsParams) Unfiltered() bool {
	return p.Location.Empty() && p.IsMobile == nil && p.Geo == nil && p.Project == nil
}

// Where renders the filter fragments over the measurements joins. The
// geog column is qualified because both measurements and the node base
// view appear in the query.
func (p *MeasurementsParams) Where() (string, map[string]interface{}) {
	args := make(map[string]interface{})
	wheres := []string{
		p.Location.Where(args, "location", " sensor_nodes_id = ANY(@location) ", " site_name = ANY(@location) "),
		p.Parameter.Where(args, "parameter", " measurands_id = ANY(@parameter) ", " measurand = ANY(@parameter) "),
		stringsWhere(args, "unit", p.Units, " units = ANY(@unit) "),
		stringsWhere(args, "country", p.Countries, " country = ANY(@country) "),
		stringsWhere(args, "city", p.Cities, " city = ANY(@city) "),
	}
	if p.IsMobile != nil {
		args["is_mobile"] = *p.IsMobile
		wheres = append(wheres, " ismobile = @is_mobile ")
	}
	if p.Geo != nil {
		args["lat"] = p.Geo.Lat
		args["lon"] = p.Geo.Lon
		args["radius"] = p.Geo.Radius
		wheres = append(wheres, " st_dwithin(st_makepoint(@lon, @lat)::geography, b.geog, @radius) ")
	}

	return joinWheres(wheres), args
}
