package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opensensors/airsense/internal/ingest"
	"github.com/opensensors/airsense/internal/log"
	"github.com/opensensors/airsense/pkg/config"
)

// airsense-ingest is the one-shot counterpart of the background ingest
// worker: it loads a single archive key, one UTC day, or an inclusive
// day range, then exits. Useful for backfills and for re-running days
// after schema changes.
func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	key := flag.String("key", "", "Load a single object key")
	day := flag.String("day", "", "Load all archives for one UTC day (YYYY-MM-DD)")
	start := flag.String("start", "", "First day of a range to load (YYYY-MM-DD)")
	end := flag.String("end", "", "Last day of a range to load (YYYY-MM-DD, inclusive)")
	pending := flag.Int("pending", 0, "Drain up to N pending fetchlog entries")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

	if err := log.Init(*debug, ""); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(*cfgFile, *key, *day, *start, *end, *pending); err != nil {
		log.Errorf("Ingest failed: %v", err)
		os.Exit(1)
	}
}

func run(cfgFile, key, day, start, end string, pending int) error {
	filename, _ := filepath.Abs(cfgFile)
	provider := config.NewYAMLProvider(filename)
	cfg, err := provider.LoadConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	if cfg.Ingest.Bucket == "" {
		return fmt.Errorf("no ingest bucket configured")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.WriteDSN)
	if err != nil {
		return fmt.Errorf("could not connect to database: %w", err)
	}
	defer pool.Close()

	store, err := ingest.NewObjectStore(cfg.Ingest.Bucket, cfg.Ingest.Region)
	if err != nil {
		return err
	}
	loader := ingest.NewLoader(pool, store, log.GetSugaredLogger())
	logs := ingest.NewFetchlogStore(pool)

	switch {
	case key != "":
		return loadKey(ctx, loader, logs, key)
	case day != "":
		d, err := parseDay(day)
		if err != nil {
			return err
		}
		return loadDay(ctx, loader, cfg.Ingest.Prefix, d)
	case start != "" && end != "":
		first, err := parseDay(start)
		if err != nil {
			return err
		}
		last, err := parseDay(end)
		if err != nil {
			return err
		}
		if last.Before(first) {
			return fmt.Errorf("end day %s is before start day %s", end, start)
		}
		for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
			if err := loadDay(ctx, loader, cfg.Ingest.Prefix, d); err != nil {
				return err
			}
		}
		return nil
	case pending > 0:
		return drainPending(ctx, loader, logs, pending)
	default:
		return fmt.Errorf("one of -key, -day, -start/-end, or -pending is required")
	}
}

func drainPending(ctx context.Context, loader *ingest.Loader, logs *ingest.FetchlogStore, limit int) error {
	batch, err := logs.Pending(ctx, limit)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		log.Info("No pending archives")
		return nil
	}
	for _, p := range batch {
		stats, err := loader.LoadKey(ctx, p.Key)
		if err != nil {
			log.Errorf("Loading %s failed: %v", p.Key, err)
			logs.MarkFailed(ctx, p.FetchlogsID, err)
			continue
		}
		if err := logs.MarkCompleted(ctx, p.FetchlogsID, stats); err != nil {
			return err
		}
		log.Infof("Loaded %s: %d rows copied, %d skipped", p.Key, stats.Copied, stats.Skipped)
	}
	return nil
}

func loadKey(ctx context.Context, loader *ingest.Loader, logs *ingest.FetchlogStore, key string) error {
	if err := logs.RecordKey(ctx, key, time.Now().UTC()); err != nil {
		return err
	}
	id, err := logs.IDForKey(ctx, key)
	if err != nil {
		return err
	}
	stats, err := loader.LoadKey(ctx, key)
	if err != nil {
		logs.MarkFailed(ctx, id, err)
		return err
	}
	if err := logs.MarkCompleted(ctx, id, stats); err != nil {
		return err
	}
	log.Infof("Loaded %s: %d rows copied, %d skipped", key, stats.Copied, stats.Skipped)
	return nil
}

func loadDay(ctx context.Context, loader *ingest.Loader, prefix string, day time.Time) error {
	stats, err := loader.LoadDay(ctx, prefix, day)
	if err != nil {
		return fmt.Errorf("loading %s: %w", day.Format("2006-01-02"), err)
	}
	log.Infof("Loaded %s: %d archives, %d rows copied, %d skipped",
		day.Format("2006-01-02"), stats.Keys, stats.Copied, stats.Skipped)
	return nil
}

func parseDay(s string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: expected YYYY-MM-DD", s)
	}
	return d.UTC(), nil
}
