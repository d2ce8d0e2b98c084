// Package ingestworker provides a dedicated controller that drains the
// fetchlogs backlog. It runs independently of the REST server: each tick
// it discovers new archives in the object store, claims a batch of
// pending keys and runs the loader over them.
package ingestworker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opensensors/airsense/internal/ingest"
	"github.com/opensensors/airsense/pkg/config"
)

const (
	defaultInterval  = 60 * time.Second
	defaultBatchSize = 10
)

// keyLoader loads one archive key in a single transaction
type keyLoader interface {
	LoadKey(ctx context.Context, key string) (*ingest.LoadStats, error)
}

// fetchlogs tracks archive keys from discovery to completion
type fetchlogs interface {
	RecordKey(ctx context.Context, key string, lastModified time.Time) error
	Pending(ctx context.Context, limit int) ([]ingest.PendingFetch, error)
	MarkCompleted(ctx context.Context, id int, stats *ingest.LoadStats) error
	MarkFailed(ctx context.Context, id int, loadErr error) error
}

// objectLister discovers archives under the configured prefix
type objectLister interface {
	List(ctx context.Context, prefix string) ([]ingest.ObjectInfo, error)
}

// Controller manages the background ingest lifecycle
type Controller struct {
	ctx       context.Context
	wg        *sync.WaitGroup
	loader    keyLoader
	logs      fetchlogs
	store     objectLister
	logger    *zap.SugaredLogger
	prefix    string
	interval  time.Duration
	batchSize int
	stopChan  chan struct{}
}

// NewController creates a background ingest controller
func NewController(
	ctx context.Context,
	wg *sync.WaitGroup,
	ic config.IngestData,
	loader keyLoader,
	logs fetchlogs,
	store objectLister,
	logger *zap.SugaredLogger,
) (*Controller, error) {
	if loader == nil || logs == nil || store == nil {
		return nil, fmt.Errorf("loader, fetchlog store and object store required for ingest controller")
	}

	interval := time.Duration(ic.FetchInterval) * time.Second
	if interval <= 0 {
		interval = defaultInterval
	}
	batchSize := ic.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &Controller{
		ctx:       ctx,
		wg:        wg,
		loader:    loader,
		logs:      logs,
		store:     store,
		logger:    logger,
		prefix:    ic.Prefix,
		interval:  interval,
		batchSize: batchSize,
		stopChan:  make(chan struct{}),
	}, nil
}

// Start begins the discover-and-drain loop. This method blocks until the
// context is cancelled or Stop is called.
func (c *Controller) Start() error {
	c.logger.Infof("Ingest worker starting (interval=%s batch=%d)", c.interval, c.batchSize)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Drain once at startup so a restart doesn't wait a full interval
	c.runOnce()

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Info("Ingest worker stopped (context cancelled)")
			return nil
		case <-c.stopChan:
			c.logger.Info("Ingest worker stopped (stop requested)")
			return nil
		case <-ticker.C:
			c.runOnce()
		}
	}
}

// Stop gracefully stops the controller
func (c *Controller) Stop() error {
	c.logger.Info("Stopping ingest worker...")
	close(c.stopChan)
	return nil
}

// runOnce performs one discover-and-drain pass. Failures are logged and
// left pending for the next pass.
func (c *Controller) runOnce() {
	if err := c.discover(); err != nil {
		c.logger.Errorf("Archive discovery failed: %v", err)
	}
	c.drain()
}

// discover lists the bucket prefix and records any keys the fetchlogs
// table has not seen, or whose objects have been replaced.
func (c *Controller) discover() error {
	objects, err := c.store.List(c.ctx, c.prefix)
	if err != nil {
		return err
	}
	for _, obj := range objects {
		if err := c.logs.RecordKey(c.ctx, obj.Key, obj.LastModified); err != nil {
			return err
		}
	}
	return nil
}

// drain claims up to batchSize pending keys and loads each in its own
// transaction. A failed key is marked and the pass continues.
func (c *Controller) drain() {
	pending, err := c.logs.Pending(c.ctx, c.batchSize)
	if err != nil {
		c.logger.Errorf("Listing pending archives failed: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}
	c.logger.Infof("Draining %d pending archives", len(pending))

	for _, p := range pending {
		select {
		case <-c.ctx.Done():
			return
		case <-c.stopChan:
			return
		default:
		}

		stats, err := c.loader.LoadKey(c.ctx, p.Key)
		if err != nil {
			c.logger.Errorw("Archive load failed", "key", p.Key, "error", err)
			if markErr := c.logs.MarkFailed(c.ctx, p.FetchlogsID, err); markErr != nil {
				c.logger.Errorf("Marking %s failed errored: %v", p.Key, markErr)
			}
			continue
		}

		c.logger.Infow("Archive loaded",
			"key", p.Key,
			"rows", stats.Copied,
			"skipped", stats.Skipped,
		)
		if err := c.logs.MarkCompleted(c.ctx, p.FetchlogsID, stats); err != nil {
			c.logger.Errorf("Marking %s completed errored: %v", p.Key, err)
		}
	}
}
