package query

import "net/url"

// locationsOrderBy maps order_by values to expressions over the
// locations_base view.
var locationsOrderBy = map[string]string{
	"city":         `"city"`,
	"country":      `"country"`,
	"location":     `"name"`,
	"sourceName":   `"sourceName"`,
	"firstUpdated": `"firstUpdated"`,
	"lastUpdated":  `"lastUpdated"`,
	"count":        `"measurements"`,
	"random":       "random()",
}

// LocationsParams is the filter set shared by the locations and latest
// endpoint families.
type LocationsParams struct {
	Paging
	Sort    string
	OrderBy string
	Random  bool

	Location          IDsOrNames
	Cities            []string
	Countries         []string
	Parameter         IDsOrNames
	Units             []string
	SourceNames       []string
	Entities          []string
	SensorTypes       []string
	ModelNames        []string
	ManufacturerNames []string
	IsMobile          *bool
	HasGeo            *bool
	Geo               *Geo
}

// ParseLocations decodes the locations filter set from query parameters
func ParseLocations(vals url.Values) (*LocationsParams, error) {
	p := &LocationsParams{}
	var err error

	if p.Paging, err = ParsePaging(vals); err != nil {
		return nil, err
	}
	if p.Sort, err = ParseSort(vals, SortDesc); err != nil {
		return nil, err
	}
	if p.OrderBy, err = ParseOrderBy(vals, locationsOrderBy, "lastUpdated"); err != nil {
		return nil, err
	}
	p.Random = p.OrderBy == "random()"

	if p.Location, err = ParseIDsOrNames(vals, "location", "location"); err != nil {
		return nil, err
	}
	p.Cities = getAll(vals, "city")
	if p.Countries, err = ParseCountries(vals); err != nil {
		return nil, err
	}
	if p.Parameter, err = ParseIDsOrNames(vals, "parameter", "parameter", "measurand"); err != nil {
		return nil, err
	}
	p.Units = getAll(vals, "unit")
	p.SourceNames = getAll(vals, "sourceName", "source_name")
	if p.Entities, err = enumList("entity", getAll(vals, "entity"), EntityTypes); err != nil {
		return nil, err
	}
	if p.SensorTypes, err = enumList("sensorType", getAll(vals, "sensorType", "sensor_type"), SensorTypes); err != nil {
		return nil, err
	}
	p.ModelNames = getAll(vals, "modelName", "model_name")
	p.ManufacturerNames = getAll(vals, "manufacturerName", "manufacturer_name")
	if p.IsMobile, err = getBool(vals, "isMobile", "is_mobile"); err != nil {
		return nil, err
	}
	if p.HasGeo, err = getBool(vals, "hasGeo", "has_geo"); err != nil {
		return nil, err
	}
	if p.Geo, err = ParseGeo(vals); err != nil {
		return nil, err
	}

	return p, nil
}

// Where renders the filter fragments over the locations_base view
func (p *LocationsParams) Where() (string, map[string]interface{}) {
	args := make(map[string]interface{})
	wheres := []string{
		p.Location.Where(args, "location", " id = ANY(@location) ", " name = ANY(@location) "),
		stringsWhere(args, "country", p.Countries, " country = ANY(@country) "),
		stringsWhere(args, "city", p.Cities, " city = ANY(@city) "),
		p.Parameter.Where(args, "parameter",
			" parameters @> ANY(jsonb_array_query('parameterId', @parameter::int[])) ",
			" parameters @> ANY(jsonb_array_query('parameter', @parameter::text[])) "),
		stringsWhere(args, "unit", p.Units,
			" parameters @> ANY(jsonb_array_query('unit', @unit::text[])) "),
		stringsWhere(args, "source_name", p.SourceNames,
			" sources @> ANY(jsonb_array_query('name', @source_name::text[]) || jsonb_array_query('id', @source_name::text[])) "),
		stringsWhere(args, "entity", p.Entities, " entity = ANY(@entity) "),
		stringsWhere(args, "sensor_type", p.SensorTypes, ` "sensorType" = ANY(@sensor_type) `),
		stringsWhere(args, "model_name", p.ModelNames,
			" manufacturers @> ANY(jsonb_array_query('modelName', @model_name::text[])) "),
		stringsWhere(args, "manufacturer_name", p.ManufacturerNames,
			" manufacturers @> ANY(jsonb_array_query('manufacturerName', @manufacturer_name::text[])) "),
	}
	if p.IsMobile != nil {
		args["is_mobile"] = *p.IsMobile
		wheres = append(wheres, ` "isMobile" = @is_mobile `)
	}
	if p.HasGeo != nil {
		if *p.HasGeo {
			wheres = append(wheres, " geog is not null ")
		} else {
			wheres = append(wheres, " geog is null ")
		}
	}
	wheres = append(wheres, p.Geo.Where(args))

	return joinWheres(wheres), args
}
