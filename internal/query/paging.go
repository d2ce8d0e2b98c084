package query

import "net/url"

// Paging limits taken from the public API contract. The offset+limit
// window cap keeps deep paging from walking the whole table.
const (
	DefaultLimit = 100
	MaxLimit     = 100000
	MaxPage      = 6000
	MaxWindow    = 100000
)

// Paging carries the resolved page window for a list query
type Paging struct {
	Limit  int
	Page   int
	Offset int
}

// ParsePaging decodes and validates limit/page, deriving the row offset
func ParsePaging(vals url.Values) (Paging, error) {
	p := Paging{Limit: DefaultLimit, Page: 1}

	limit, err := getInt(vals, "limit", DefaultLimit)
	if err != nil {
		return p, err
	}
	if limit <= 0 || limit > MaxLimit {
		return p, Errorf("limit", "must be between 1 and %d", MaxLimit)
	}

	page, err := getInt(vals, "page", 1)
	if err != nil {
		return p, err
	}
	if page <= 0 || page > MaxPage {
		return p, Errorf("page", "must be between 1 and %d", MaxPage)
	}

	p.Limit = limit
	p.Page = page
	p.Offset = limit * (page - 1)
	if p.Offset+limit > MaxWindow {
		return p, Errorf("page", "offset + limit must be <= %d", MaxWindow)
	}

	return p, nil
}

// Args adds the paging bind parameters to an argument map
func (p Paging) Args(args map[string]interface{}) {
	args["limit"] = p.Limit
	args["offset"] = p.Offset
}

// Sort directions accepted by every list endpoint
const (
	SortAsc  = "ASC"
	SortDesc = "DESC"
)

// ParseSort validates the sort parameter, returning def when absent.
// The result is safe to interpolate into ORDER BY.
func ParseSort(vals url.Values, def string) (string, error) {
	switch getFirst(vals, "sort") {
	case "":
		return def, nil
	case "asc", "ASC":
		return SortAsc, nil
	case "desc", "DESC":
		return SortDesc, nil
	}
	return "", Errorf("sort", "must be asc or desc")
}

// ParseOrderBy resolves the order_by parameter against an allowlist of
// column expressions. Keys are the accepted parameter values; values are
// the SQL expressions they map to.
func ParseOrderBy(vals url.Values, allowed map[string]string, def string) (string, error) {
	raw := getFirst(vals, "order_by", "orderBy")
	if raw == "" {
		raw = def
	}
	expr, ok := allowed[raw]
	if !ok {
		return "", Errorf("order_by", "%q is not a sortable field", raw)
	}
	return expr, nil
}
