package query

import (
	"net/url"
	"strconv"
	"time"
)

// datetimeLayouts are tried in order when parsing date parameters
var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDatetime accepts RFC3339 timestamps, date-only values and unix
// seconds. Values without a zone are taken as UTC, and the result is
// truncated to the whole minute.
func ParseDatetime(raw string) (time.Time, error) {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC().Truncate(time.Minute), nil
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC().Truncate(time.Minute), nil
		}
	}
	return time.Time{}, Errorf("date", "%q is not a recognized date or datetime", raw)
}

// DateRange is the requested measurement time window
type DateRange struct {
	From time.Time
	To   time.Time
}

// defaultDateFrom is the epoch of the archive; queries with no explicit
// start cover everything.
var defaultDateFrom = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// ParseDateRange decodes date_from/date_to with open-ended defaults of
// 2000-01-01 and now.
func ParseDateRange(vals url.Values) (DateRange, error) {
	dr := DateRange{
		From: defaultDateFrom,
		To:   time.Now().UTC().Truncate(time.Minute),
	}

	if raw := getFirst(vals, "date_from", "dateFrom"); raw != "" {
		t, err := ParseDatetime(raw)
		if err != nil {
			return dr, Errorf("date_from", "%s", err.(*ValidationError).Message)
		}
		dr.From = t
	}
	if raw := getFirst(vals, "date_to", "dateTo"); raw != "" {
		t, err := ParseDatetime(raw)
		if err != nil {
			return dr, Errorf("date_to", "%s", err.(*ValidationError).Message)
		}
		dr.To = t
	}

	return dr, nil
}

// Clamp narrows the range to the archive bounds [start, end], keeping
// the end no later than now.
func (dr DateRange) Clamp(start, end time.Time) DateRange {
	out := dr
	if out.From.Before(start) {
		out.From = start
	}
	if out.To.After(end) {
		out.To = end
	}
	if now := time.Now().UTC(); out.To.After(now) {
		out.To = now
	}
	return out
}
