package query

import "net/url"

// Order-by allowlists for the aggregation lookup endpoints. The quoted
// names reference output aliases of each endpoint's query.
var (
	citiesOrderBy = map[string]string{
		"city":         `"city"`,
		"country":      `"country"`,
		"firstUpdated": `"firstUpdated"`,
		"lastUpdated":  `"lastUpdated"`,
	}
	countriesOrderBy = map[string]string{
		"country":      `"code"`,
		"firstUpdated": `"firstUpdated"`,
		"lastUpdated":  `"lastUpdated"`,
	}
	sourcesOrderBy = map[string]string{
		"sourceName":   `"sourceName"`,
		"firstUpdated": `"firstUpdated"`,
		"lastUpdated":  `"lastUpdated"`,
	}
	parametersOrderBy = map[string]string{
		"id":            "measurands_id",
		"name":          "measurand",
		"preferredUnit": "units",
	}
	projectsOrderBy = map[string]string{
		"id":           `"id"`,
		"name":         "name",
		"subtitle":     "subtitle",
		"firstUpdated": `"firstUpdated"`,
		"lastUpdated":  `"lastUpdated"`,
	}
)

// CitiesParams filters the per-city aggregation
type CitiesParams struct {
	Paging
	Sort    string
	OrderBy string

	Cities    []string
	Countries []string
}

// ParseCities decodes the cities filter set
func ParseCities(vals url.Values) (*CitiesParams, error) {
	p := &CitiesParams{}
	var err error

	if p.Paging, err = ParsePaging(vals); err != nil {
		return nil, err
	}
	if p.Sort, err = ParseSort(vals, SortAsc); err != nil {
		return nil, err
	}
	if p.OrderBy, err = ParseOrderBy(vals, citiesOrderBy, "city"); err != nil {
		return nil, err
	}
	p.Cities = getAll(vals, "city")
	if p.Countries, err = ParseCountries(vals); err != nil {
		return nil, err
	}

	return p, nil
}

// Where renders the city and country filters
func (p *CitiesParams) Where() (string, map[string]interface{}) {
	args := make(map[string]interface{})
	wheres := []string{
		stringsWhere(args, "city", p.Cities, " city = ANY(@city) "),
		stringsWhere(args, "country", p.Countries, " country = ANY(@country) "),
	}
	return joinWheres(wheres), args
}

// CountriesParams filters the per-country aggregation
type CountriesParams struct {
	Paging
	Sort    string
	OrderBy string

	Countries []string
}

// ParseCountries decodes the countries filter set
func ParseCountriesParams(vals url.Values) (*CountriesParams, error) {
	p := &CountriesParams{}
	var err error

	if p.Paging, err = ParsePaging(vals); err != nil {
		return nil, err
	}
	if p.Sort, err = ParseSort(vals, SortAsc); err != nil {
		return nil, err
	}
	if p.OrderBy, err = ParseOrderBy(vals, countriesOrderBy, "country"); err != nil {
		return nil, err
	}
	if p.Countries, err = ParseCountries(vals); err != nil {
		return nil, err
	}

	return p, nil
}

// Where renders the country filter
func (p *CountriesParams) Where() (string, map[string]interface{}) {
	args := make(map[string]interface{})
	wheres := []string{
		stringsWhere(args, "country", p.Countries, " country = ANY(@country) "),
	}
	return joinWheres(wheres), args
}

// SourcesParams filters the per-source aggregation
type SourcesParams struct {
	Paging
	Sort    string
	OrderBy string

	SourceNames []string
}

// ParseSources decodes the sources filter set
func ParseSources(vals url.Values) (*SourcesParams, error) {
	p := &SourcesParams{}
	var err error

	if p.Paging, err = ParsePaging(vals); err != nil {
		return nil, err
	}
	if p.Sort, err = ParseSort(vals, SortAsc); err != nil {
		return nil, err
	}
	if p.OrderBy, err = ParseOrderBy(vals, sourcesOrderBy, "sourceName"); err != nil {
		return nil, err
	}
	p.SourceNames = getAll(vals, "sourceName", "source_name")

	return p, nil
}

// Where renders the source name filter
func (p *SourcesParams) Where() (string, map[string]interface{}) {
	args := make(map[string]interface{})
	wheres := []string{
		stringsWhere(args, "source_name", p.SourceNames, " source_name = ANY(@source_name) "),
	}
	return joinWheres(wheres), args
}

// ParametersParams orders the measurand reference listing
type ParametersParams struct {
	Paging
	Sort    string
	OrderBy string
}

// ParseParameters decodes the parameters listing options
func ParseParameters(vals url.Values) (*ParametersParams, error) {
	p := &ParametersParams{}
	var err error

	if p.Paging, err = ParsePaging(vals); err != nil {
		return nil, err
	}
	if p.Sort, err = ParseSort(vals, SortAsc); err != nil {
		return nil, err
	}
	if p.OrderBy, err = ParseOrderBy(vals, parametersOrderBy, "id"); err != nil {
		return nil, err
	}

	return p, nil
}

// ProjectsParams filters the per-project aggregation
type ProjectsParams struct {
	Paging
	Sort    string
	OrderBy string

	Project IDsOrNames
}

// ParseProjects decodes the projects filter set
func ParseProjects(vals url.Values) (*ProjectsParams, error) {
	p := &ProjectsParams{}
	var err error

	if p.Paging, err = ParsePaging(vals); err != nil {
		return nil, err
	}
	if p.Sort, err = ParseSort(vals, SortAsc); err != nil {
		return nil, err
	}
	if p.OrderBy, err = ParseOrderBy(vals, projectsOrderBy, "id"); err != nil {
		return nil, err
	}
	if p.Project, err = ParseIDsOrNames(vals, "project", "project"); err != nil {
		return nil, err
	}

	return p, nil
}

// Where renders the project filter over the source-type rollup groups
func (p *ProjectsParams) Where() (string, map[string]interface{}) {
	args := make(map[string]interface{})
	wheres := []string{
		p.Project.Where(args, "project", " groups_id = ANY(@project) ", " name = ANY(@project) "),
	}
	return joinWheres(wheres), args
}
