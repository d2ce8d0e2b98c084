package ingest

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// scanner buffer: a single feed line can carry large residual metadata
const maxLineBytes = 1 << 20

// LoadStats reports what one load transaction did.
type LoadStats struct {
	Keys    int
	Copied  int64
	Skipped int64
	First   *time.Time
	Last    *time.Time
}

// Loader stages gzipped NDJSON archives into the measurement schema.
// Each load is one transaction: staging, entity resolution, measurement
// insert and rollup refresh commit together or roll back together.
type Loader struct {
	pool   *pgxpool.Pool
	store  *ObjectStore
	logger *zap.SugaredLogger
}

// NewLoader creates a Loader over the write pool and object store.
func NewLoader(pool *pgxpool.Pool, store *ObjectStore, logger *zap.SugaredLogger) *Loader {
	return &Loader{pool: pool, store: store, logger: logger}
}

// LoadKey loads a single archive object.
func (l *Loader) LoadKey(ctx context.Context, key string) (*LoadStats, error) {
	return l.load(ctx, []string{key}, nil)
}

// LoadDay loads every archive recorded under the day's prefix, then
// filters out rows recorded outside the day's window.
func (l *Loader) LoadDay(ctx context.Context, prefix string, day time.Time) (*LoadStats, error) {
	day = day.UTC().Truncate(24 * time.Hour)
	fullPrefix := fmt.Sprintf("%s/%s", prefix, day.Format("2006-01-02"))

	objects, err := l.store.List(ctx, fullPrefix)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("no archives found under %s", fullPrefix)
	}

	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	return l.load(ctx, keys, &day)
}

func (l *Loader) load(ctx context.Context, keys []string, day *time.Time) (*LoadStats, error) {
	stats := &LoadStats{Keys: len(keys)}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, stagingTableSQL); err != nil {
		return nil, fmt.Errorf("creating staging table: %w", err)
	}

	for _, key := range keys {
		copied, skipped, err := l.copyObject(ctx, tx, key)
		if err != nil {
			return nil, err
		}
		l.logger.Infow("staged archive", "key", key, "rows", copied, "skipped", skipped)
		stats.Copied += copied
		stats.Skipped += skipped
	}

	if day != nil {
		tag, err := tx.Exec(ctx, dayWindowFilterSQL, pgx.NamedArgs{"day": *day})
		if err != nil {
			return nil, fmt.Errorf("filtering day window: %w", err)
		}
		if tag.RowsAffected() > 0 {
			l.logger.Infow("dropped rows outside day window", "rows", tag.RowsAffected())
		}
		if _, err := tx.Exec(ctx, nullRowsFilterSQL); err != nil {
			return nil, fmt.Errorf("filtering null rows: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, resolveSQL); err != nil {
		return nil, fmt.Errorf("resolving sensors: %w", err)
	}
	if _, err := tx.Exec(ctx, groupsSQL); err != nil {
		return nil, fmt.Errorf("maintaining rollup groups: %w", err)
	}
	if _, err := tx.Exec(ctx, insertMeasurementsSQL); err != nil {
		return nil, fmt.Errorf("inserting measurements: %w", err)
	}

	if err := tx.QueryRow(ctx, boundsSQL).Scan(&stats.First, &stats.Last); err != nil {
		return nil, fmt.Errorf("reading staged bounds: %w", err)
	}

	if stats.First != nil && stats.Last != nil {
		window := pgx.NamedArgs{"mindate": *stats.First, "maxdate": *stats.Last}
		if _, err := tx.Exec(ctx, rollupPeriodsSQL, window); err != nil {
			return nil, fmt.Errorf("refreshing rollups: %w", err)
		}
		if _, err := tx.Exec(ctx, rollupTotalDeleteSQL, window); err != nil {
			return nil, fmt.Errorf("clearing total rollups: %w", err)
		}
		if _, err := tx.Exec(ctx, rollupTotalInsertSQL, window); err != nil {
			return nil, fmt.Errorf("rebuilding total rollups: %w", err)
		}
	} else {
		l.logger.Warnw("nothing staged, skipping rollup refresh", "keys", keys)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing load: %w", err)
	}
	return stats, nil
}

// lineSource adapts a line scanner to pgx's CopyFrom. Lines that fail
// to parse are counted and skipped rather than failing the copy.
type lineSource struct {
	scanner *bufio.Scanner
	logger  *zap.SugaredLogger
	key     string
	row     []interface{}
	copied  int64
	skipped int64
	err     error
}

func (s *lineSource) Next() bool {
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		row, err := ParseLine(line)
		if err != nil {
			s.skipped++
			if s.skipped <= 10 {
				s.logger.Warnw("skipping bad line", "key", s.key, "error", err)
			}
			continue
		}
		s.row = row.values()
		s.copied++
		return true
	}
	s.err = s.scanner.Err()
	return false
}

func (s *lineSource) Values() ([]interface{}, error) { return s.row, nil }

func (s *lineSource) Err() error { return s.err }

func (l *Loader) copyObject(ctx context.Context, tx pgx.Tx, key string) (int64, int64, error) {
	rc, err := l.store.Open(ctx, key)
	if err != nil {
		return 0, 0, err
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	src := &lineSource{scanner: scanner, logger: l.logger, key: key}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"tempfetchdata"}, stagingColumns, src); err != nil {
		return 0, 0, fmt.Errorf("copying %s into staging: %w", key, err)
	}
	return src.copied, src.skipped, nil
}
