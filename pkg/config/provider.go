package config

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetDatabaseConfig() (*DatabaseData, error)
	GetAPIConfig() (*APIData, error)
	GetIngestConfig() (*IngestData, error)

	// Configuration management
	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Database DatabaseData `json:"database"`
	API      APIData      `json:"api,omitempty"`
	Ingest   IngestData   `json:"ingest,omitempty"`
}

// DatabaseData holds the PostgreSQL connection configuration. Reads and
// writes may be routed to different hosts (a replica for the API, the
// primary for ingest).
type DatabaseData struct {
	ReadDSN  string `json:"read_dsn"`
	WriteDSN string `json:"write_dsn"`
}

// APIData holds the configuration for the public REST API server
type APIData struct {
	ListenAddr  string `json:"listen_addr,omitempty"`
	Port        int    `json:"port,omitempty"`
	Cert        string `json:"cert,omitempty"`
	Key         string `json:"key,omitempty"`
	CacheMaxAge int    `json:"cache_max_age,omitempty"`
	Debug       bool   `json:"debug,omitempty"`
}

// IngestData holds the configuration for the batch ingest pipeline
type IngestData struct {
	Bucket        string `json:"bucket"`
	Prefix        string `json:"prefix,omitempty"`
	Region        string `json:"region,omitempty"`
	FetchInterval int    `json:"fetch_interval,omitempty"`
	BatchSize     int    `json:"batch_size,omitempty"`
}
