package restserver

// LatestMeasurement is one parameter's most recent reading at a location.
// Particulate readings carry an EPA AQI annotation.
type LatestMeasurement struct {
	Parameter   string      `json:"parameter"`
	Value       interface{} `json:"value"`
	LastUpdated interface{} `json:"lastUpdated"`
	Unit        interface{} `json:"unit"`
	AQI         *int32      `json:"aqi,omitempty"`
	AQICategory string      `json:"aqiCategory,omitempty"`
}

// LatestResult is the latest-per-parameter view of a location
type LatestResult struct {
	Location     interface{}         `json:"location"`
	City         interface{}         `json:"city"`
	Country      interface{}         `json:"country"`
	Coordinates  interface{}         `json:"coordinates"`
	Measurements []LatestMeasurement `json:"measurements"`
}

// V1MeasurementCount pairs a parameter with its measurement count
type V1MeasurementCount struct {
	Parameter interface{} `json:"parameter"`
	Count     float64     `json:"count"`
}

// V1Location is the legacy flat location shape
type V1Location struct {
	ID                  interface{}          `json:"id"`
	Country             interface{}          `json:"country"`
	City                interface{}          `json:"city"`
	Location            interface{}          `json:"location"`
	SourceName          interface{}          `json:"sourceName"`
	SourceType          interface{}          `json:"sourceType"`
	Coordinates         interface{}          `json:"coordinates"`
	FirstUpdated        interface{}          `json:"firstUpdated"`
	LastUpdated         interface{}          `json:"lastUpdated"`
	Parameters          []interface{}        `json:"parameters"`
	CountsByMeasurement []V1MeasurementCount `json:"countsByMeasurement"`
	Count               float64              `json:"count"`
}

// MeasurementRow mirrors the JSON the measurement page query renders per
// row; it is decoded only for CSV output.
type MeasurementRow struct {
	LocationID int64   `json:"locationId"`
	Location   string  `json:"location"`
	Parameter  string  `json:"parameter"`
	Value      float64 `json:"value"`
	Date       struct {
		UTC   string `json:"utc"`
		Local string `json:"local"`
	} `json:"date"`
	Unit        string `json:"unit"`
	Coordinates *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"coordinates"`
	Country  string `json:"country"`
	City     string `json:"city"`
	IsMobile bool   `json:"isMobile"`
}

// TileJSON is the tile metadata document for the vector tile endpoint
type TileJSON struct {
	TileJSON string   `json:"tilejson"`
	Name     string   `json:"name"`
	MinZoom  int      `json:"minzoom"`
	MaxZoom  int      `json:"maxzoom"`
	Tiles    []string `json:"tiles"`
}
