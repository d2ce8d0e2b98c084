package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PendingFetch is one discovered archive waiting to be loaded.
type PendingFetch struct {
	FetchlogsID int
	Key         string
}

// FetchlogStore tracks archive objects from discovery through load in
// the fetchlogs table.
type FetchlogStore struct {
	pool *pgxpool.Pool
}

// NewFetchlogStore creates a FetchlogStore over the write pool.
func NewFetchlogStore(pool *pgxpool.Pool) *FetchlogStore {
	return &FetchlogStore{pool: pool}
}

// RecordKey registers a discovered archive. Re-recording a key clears
// its completed mark so a replaced object gets loaded again.
func (f *FetchlogStore) RecordKey(ctx context.Context, key string, lastModified time.Time) error {
	_, err := f.pool.Exec(ctx, `
		INSERT INTO fetchlogs (key, last_modified)
		VALUES (@key, @last_modified)
		ON CONFLICT (key) DO UPDATE
		SET last_modified = EXCLUDED.last_modified,
		completed_datetime = NULL
		WHERE fetchlogs.last_modified IS DISTINCT FROM EXCLUDED.last_modified
	`, pgx.NamedArgs{"key": key, "last_modified": lastModified})
	if err != nil {
		return fmt.Errorf("recording fetch key %s: %w", key, err)
	}
	return nil
}

// IDForKey returns the fetchlogs row id for an archive key.
func (f *FetchlogStore) IDForKey(ctx context.Context, key string) (int, error) {
	var id int
	err := f.pool.QueryRow(ctx,
		`SELECT fetchlogs_id FROM fetchlogs WHERE key = @key`,
		pgx.NamedArgs{"key": key}).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("looking up fetchlog for %s: %w", key, err)
	}
	return id, nil
}

// Pending returns up to limit archives that have not completed loading,
// oldest first.
func (f *FetchlogStore) Pending(ctx context.Context, limit int) ([]PendingFetch, error) {
	rows, err := f.pool.Query(ctx, `
		SELECT fetchlogs_id, key
		FROM fetchlogs
		WHERE completed_datetime IS NULL
		ORDER BY last_modified NULLS LAST
		LIMIT @limit
	`, pgx.NamedArgs{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("listing pending fetches: %w", err)
	}
	defer rows.Close()

	var pending []PendingFetch
	for rows.Next() {
		var p PendingFetch
		if err := rows.Scan(&p.FetchlogsID, &p.Key); err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// MarkCompleted records a successful load and its outcome.
func (f *FetchlogStore) MarkCompleted(ctx context.Context, id int, stats *LoadStats) error {
	_, err := f.pool.Exec(ctx, `
		UPDATE fetchlogs SET
			loaded_datetime = now(),
			completed_datetime = now(),
			records_loaded = @records,
			first_recorded_datetime = @first,
			last_recorded_datetime = @last,
			last_message = NULL
		WHERE fetchlogs_id = @id
	`, pgx.NamedArgs{
		"id":      id,
		"records": stats.Copied,
		"first":   stats.First,
		"last":    stats.Last,
	})
	if err != nil {
		return fmt.Errorf("marking fetchlog %d completed: %w", id, err)
	}
	return nil
}

// MarkFailed records a failed load attempt. The completed mark stays
// null so the next drain retries the key.
func (f *FetchlogStore) MarkFailed(ctx context.Context, id int, loadErr error) error {
	_, err := f.pool.Exec(ctx, `
		UPDATE fetchlogs SET
			loaded_datetime = now(),
			last_message = @message
		WHERE fetchlogs_id = @id
	`, pgx.NamedArgs{"id": id, "message": loadErr.Error()})
	if err != nil {
		return fmt.Errorf("marking fetchlog %d failed: %w", id, err)
	}
	return nil
}
