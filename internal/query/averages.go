package query

import "net/url"

// Spatial and temporal aggregation levels served by the rollup tables
var (
	spatialLevels  = []string{"country", "location", "project", "total"}
	temporalLevels = []string{"day", "month", "year", "moy", "dow", "hour", "hod"}
)

// AveragesParams selects pre-aggregated averages by spatial and temporal
// granularity.
type AveragesParams struct {
	Paging
	Sort string
	DateRange

	Spatial  string
	Temporal string

	Countries  []string
	Project    IDsOrNames
	Locations  []string
	Measurands []string
	Units      []string
}

// ParseAverages decodes the averages filter set. Both spatial and
// temporal are required.
func ParseAverages(vals url.Values) (*AveragesParams, error) {
	p := &AveragesParams{}
	var err error

	if p.Paging, err = ParsePaging(vals); err != nil {
		return nil, err
	}
	if p.Sort, err = ParseSort(vals, SortDesc); err != nil {
		return nil, err
	}
	if p.DateRange, err = ParseDateRange(vals); err != nil {
		return nil, err
	}

	p.Spatial = getFirst(vals, "spatial")
	if _, err = enumList("spatial", []string{p.Spatial}, spatialLevels); p.Spatial == "" || err != nil {
		return nil, Errorf("spatial", "must be one of country, location, project, total")
	}
	p.Temporal = getFirst(vals, "temporal")
	if _, err = enumList("temporal", []string{p.Temporal}, temporalLevels); p.Temporal == "" || err != nil {
		return nil, Errorf("temporal", "must be one of day, month, year, moy, dow, hour, hod")
	}

	if p.Countries, err = ParseCountries(vals); err != nil {
		return nil, err
	}
	if p.Project, err = ParseIDsOrNames(vals, "project", "project"); err != nil {
		return nil, err
	}
	p.Locations = getAll(vals, "location")
	p.Measurands = getAll(vals, "parameter", "measurand")
	p.Units = getAll(vals, "unit")

	return p, nil
}

// Rollup resolves which rollup rows serve the requested temporal
// granularity and how the period column is rendered and ordered. The
// cyclic granularities (month-of-year, day-of-week, hour-of-day) reuse
// finer rollups and need regrouping with re-summed counts.
func (p *AveragesParams) Rollup() (rollup, colExpr, orderExpr string, regroup bool) {
	switch p.Temporal {
	case "moy":
		return "month", "to_char(st, 'Mon')", "to_char(st, 'MM')", true
	case "dow":
		return "day", "to_char(st, 'Dy')", "to_char(st, 'ID')", true
	case "hod":
		return "hour", "to_char(st, 'HH24')", "to_char(st, 'HH24')", true
	default:
		return p.Temporal, "st::date", "st", false
	}
}

// Where renders the filter fragments over the rollup/group joins. The
// name column's meaning follows the spatial level, so only the matching
// filter applies.
func (p *AveragesParams) Where() (string, map[string]interface{}) {
	args := make(map[string]interface{})
	var wheres []string

	switch p.Spatial {
	case "country":
		wheres = append(wheres, stringsWhere(args, "country", p.Countries, " name = ANY(@country) "))
	case "project":
		wheres = append(wheres, p.Project.Where(args, "project",
			" groups_id = ANY(@project) ", " name = ANY(@project) "))
	case "location":
		wheres = append(wheres, stringsWhere(args, "location", p.Locations, " name = ANY(@location) "))
	}
	wheres = append(wheres,
		stringsWhere(args, "measurand", p.Measurands, " measurand = ANY(@measurand) "),
		stringsWhere(args, "units", p.Units, " units = ANY(@units) "),
	)

	return joinWheres(wheres), args
}
