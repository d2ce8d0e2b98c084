package query

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// IDsOrNames is a filter whose values may be numeric IDs or names. When
// every supplied value parses as an integer the filter matches on IDs,
// otherwise on names.
type IDsOrNames struct {
	IDs   []int64
	Names []string
}

// ParseIDsOrNames decodes such a filter from the given parameter keys.
// A singular `<param>_id` value takes precedence, matching the original
// path-parameter form of the lookup endpoints.
func ParseIDsOrNames(vals url.Values, param string, keys ...string) (IDsOrNames, error) {
	var f IDsOrNames

	raw := getAll(vals, keys...)
	if id := getFirst(vals, param+"_id", param+"Id"); id != "" {
		raw = []string{id}
	}
	if len(raw) == 0 {
		return f, nil
	}

	ids := make([]int64, 0, len(raw))
	for _, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			f.Names = raw
			return f, nil
		}
		ids = append(ids, n)
	}
	for _, id := range ids {
		if id < 1 || id > maxInt32 {
			return f, Errorf(param, "id must be between 1 and %d", maxInt32)
		}
	}
	f.IDs = ids
	return f, nil
}

// Empty reports whether the filter has no values
func (f IDsOrNames) Empty() bool {
	return len(f.IDs) == 0 && len(f.Names) == 0
}

// Where renders `idFragment` or `nameFragment` depending on which form
// was supplied, binding the values under the given parameter name.
func (f IDsOrNames) Where(args map[string]interface{}, param, idFragment, nameFragment string) string {
	if len(f.IDs) > 0 {
		args[param] = pq.Array(f.IDs)
		return idFragment
	}
	if len(f.Names) > 0 {
		args[param] = pq.Array(f.Names)
		return nameFragment
	}
	return ""
}

// ParseCountries decodes country codes, folding them to upper case. A
// singular country_id value takes precedence.
func ParseCountries(vals url.Values) ([]string, error) {
	raw := getAll(vals, "country")
	if id := getFirst(vals, "country_id", "countryId"); id != "" {
		raw = []string{id}
	}
	countries := make([]string, 0, len(raw))
	for _, v := range raw {
		if len(v) != 2 {
			return nil, Errorf("country", "must be a two letter country code")
		}
		countries = append(countries, strings.ToUpper(v))
	}
	return countries, nil
}

// stringsWhere renders `fragment` when values are present, binding them
// as a text array under the given parameter name.
func stringsWhere(args map[string]interface{}, param string, values []string, fragment string) string {
	if len(values) == 0 {
		return ""
	}
	args[param] = pq.Array(values)
	return fragment
}

// enumList validates every supplied value against an allowed set
func enumList(param string, values, allowed []string) ([]string, error) {
	for _, v := range values {
		ok := false
		for _, a := range allowed {
			if v == a {
				ok = true
				break
			}
		}
		if !ok {
			return nil, Errorf(param, "%q is not a valid value", v)
		}
	}
	return values, nil
}

// Entity and sensor-type vocabularies from the source metadata
var (
	EntityTypes = []string{"government", "community", "research"}
	SensorTypes = []string{"reference", "low-cost sensor"}
)
