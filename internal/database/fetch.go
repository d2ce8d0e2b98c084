package database

import (
	"context"
	"database/sql"
	"encoding/json"
)

// Fetch runs a list query whose rows are (count bigint, json jsonb) pairs
// and assembles the response envelope. The count column carries the total
// number of matching rows on every row, so the first non-null value becomes
// Meta.Found; null json payloads are skipped so a count-only row can report
// an empty page.
func (c *Client) Fetch(ctx context.Context, query string, args map[string]interface{}, page, limit int) (*Result, error) {
	rows, err := c.DB.WithContext(ctx).Raw(query, args).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := &Result{
		Meta:    NewMeta(page, limit),
		Results: make([]json.RawMessage, 0, limit),
	}

	for rows.Next() {
		var count sql.NullInt64
		var payload []byte
		if err := rows.Scan(&count, &payload); err != nil {
			return nil, err
		}
		if count.Valid {
			out.Meta.Found = count.Int64
		}
		if len(payload) > 0 {
			// copy: the driver may reuse the scan buffer between rows
			out.Results = append(out.Results, json.RawMessage(append([]byte(nil), payload...)))
		}
	}

	return out, rows.Err()
}

// FetchRow runs a single-row query and scans its columns into dest.
func (c *Client) FetchRow(ctx context.Context, query string, args map[string]interface{}, dest ...interface{}) error {
	return c.DB.WithContext(ctx).Raw(query, args).Row().Scan(dest...)
}

// FetchCached is Fetch behind a short-lived in-process cache. Lookup
// endpoints whose backing rollups only change on ingest use this to keep
// repeated identical queries off the database.
func (c *Client) FetchCached(ctx context.Context, query string, args map[string]interface{}, page, limit int) (*Result, error) {
	key := cacheKey(query, args, page, limit)
	if res, ok := c.cache.get(key); ok {
		return res, nil
	}

	res, err := c.Fetch(ctx, query, args, page, limit)
	if err != nil {
		return nil, err
	}
	c.cache.put(key, res)
	return res, nil
}
