// Package query decodes API query parameters into typed filter models and
// renders them as SQL fragments with named bind parameters. Column and
// direction selectors are validated against allowlists so user input is
// never interpolated into query text.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const maxInt32 = 2147483647

// ValidationError describes a rejected query parameter. The API layer
// renders these as HTTP 422 responses.
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Param, e.Message)
}

// Errorf builds a ValidationError for the named parameter
func Errorf(param, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Param: param, Message: fmt.Sprintf(format, args...)}
}

// getAll collects every value supplied under any of the given keys,
// splitting comma-separated entries and dropping empty strings. The key
// list lets camelCase and snake_case spellings alias each other.
func getAll(vals url.Values, keys ...string) []string {
	var out []string
	for _, key := range keys {
		for _, raw := range vals[key] {
			for _, v := range strings.Split(raw, ",") {
				v = strings.TrimSpace(v)
				if v != "" {
					out = append(out, v)
				}
			}
		}
	}
	return out
}

// getFirst returns the first value supplied under any of the given keys
func getFirst(vals url.Values, keys ...string) string {
	for _, key := range keys {
		if v := vals.Get(key); v != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// getInt parses an optional integer parameter, returning def when absent
func getInt(vals url.Values, key string, def int) (int, error) {
	raw := getFirst(vals, key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, Errorf(key, "must be an integer")
	}
	return n, nil
}

// getBool parses an optional boolean parameter, nil when absent
func getBool(vals url.Values, keys ...string) (*bool, error) {
	raw := getFirst(vals, keys...)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(strings.ToLower(raw))
	if err != nil {
		return nil, Errorf(keys[0], "must be true or false")
	}
	return &b, nil
}

// joinWheres joins non-empty fragments with AND, or returns a clause
// that matches everything when no filters apply.
func joinWheres(wheres []string) string {
	var kept []string
	for _, w := range wheres {
		if w != "" {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return " TRUE "
	}
	return strings.Join(kept, " AND ")
}
