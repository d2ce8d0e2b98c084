package database

import (
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/opensensors/airsense/internal/log"
	"go.uber.org/zap"
)

// Client holds the connection to the PostGIS database. API reads may be
// pointed at a replica while ingest uses the primary, so the DSN is taken
// directly instead of a shared pool config.
type Client struct {
	dsn    string
	DB     *gorm.DB // Exported so it can be accessed from other packages
	logger *zap.SugaredLogger
	cache  *resultCache
}

// NewClient creates a new database client
func NewClient(dsn string, logger *zap.SugaredLogger) *Client {
	return &Client{
		dsn:    dsn,
		logger: logger,
		cache:  newResultCache(defaultCacheTTL),
	}
}

// Connect connects to the PostGIS database
func (c *Client) Connect() error {
	var err error

	log.Info("connecting to PostGIS...")
	c.DB, err = CreateConnection(c.dsn)
	if err != nil {
		log.Warn("warning: unable to create a PostGIS connection:", err)
		return err
	}
	log.Info("PostGIS connection successful")

	return nil
}

// CreateConnection is a helper function to create a database connection with standard GORM configuration
func CreateConnection(connectionString string) (*gorm.DB, error) {
	// Create a logger for gorm
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn, // Log level
			IgnoreRecordNotFoundError: true,        // Ignore ErrRecordNotFound error for logger
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, err
	}

	return db, nil
}
