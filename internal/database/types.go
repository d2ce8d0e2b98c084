package database

import "encoding/json"

// Attribution constants included in every list response envelope.
const (
	MetaName    = "openaq-api"
	MetaLicense = "CC BY 4.0"
	MetaWebsite = "/"
)

// Meta is the paging envelope that accompanies every list response.
type Meta struct {
	Name    string `json:"name"`
	License string `json:"license"`
	Website string `json:"website"`
	Page    int    `json:"page"`
	Limit   int    `json:"limit"`
	Found   int64  `json:"found"`
}

// Result is a page of query results plus its envelope. Results holds the
// row payloads exactly as the database rendered them.
type Result struct {
	Meta    Meta              `json:"meta"`
	Results []json.RawMessage `json:"results"`
}

// NewMeta returns an envelope with the standard attribution fields filled in.
func NewMeta(page, limit int) Meta {
	return Meta{
		Name:    MetaName,
		License: MetaLicense,
		Website: MetaWebsite,
		Page:    page,
		Limit:   limit,
	}
}
