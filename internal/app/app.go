package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/opensensors/airsense/internal/controllers/ingestworker"
	"github.com/opensensors/airsense/internal/controllers/restserver"
	"github.com/opensensors/airsense/internal/ingest"
	"github.com/opensensors/airsense/internal/log"
	"github.com/opensensors/airsense/pkg/config"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	apiConfig, err := a.configProvider.GetAPIConfig()
	if err != nil {
		return err
	}

	// Initialize the REST API server
	api, err := restserver.NewController(ctx, &wg, a.configProvider, *apiConfig, a.logger)
	if err != nil {
		return err
	}
	if err := api.StartController(); err != nil {
		return err
	}

	// Initialize the background ingest worker when a bucket is configured.
	// API-only deployments simply omit the ingest section.
	ingestConfig, err := a.configProvider.GetIngestConfig()
	if err != nil {
		return err
	}
	var pool *pgxpool.Pool
	if ingestConfig.Bucket != "" {
		dbConfig, err := a.configProvider.GetDatabaseConfig()
		if err != nil {
			return err
		}
		pool, err = pgxpool.New(ctx, dbConfig.WriteDSN)
		if err != nil {
			return err
		}
		store, err := ingest.NewObjectStore(ingestConfig.Bucket, ingestConfig.Region)
		if err != nil {
			return err
		}
		loader := ingest.NewLoader(pool, store, a.logger)
		logs := ingest.NewFetchlogStore(pool)

		worker, err := ingestworker.NewController(ctx, &wg, *ingestConfig, loader, logs, store, a.logger)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := worker.Start(); err != nil {
				log.Errorf("Ingest worker error: %v", err)
			}
		}()
	}

	log.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	if pool != nil {
		pool.Close()
	}
	log.Info("shutdown complete")

	return nil
}
