package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	// Load into temporary struct with YAML tags
	var yamlConfig struct {
		Database DatabaseYAML `yaml:"database"`
		API      APIYAML      `yaml:"api,omitempty"`
		Ingest   IngestYAML   `yaml:"ingest,omitempty"`
	}

	err = yaml.Unmarshal(cfgFile, &yamlConfig)
	if err != nil {
		return nil, err
	}

	// Convert to our internal format
	config := &ConfigData{
		Database: DatabaseData{
			ReadDSN:  yamlConfig.Database.ReadDSN,
			WriteDSN: yamlConfig.Database.WriteDSN,
		},
		API: APIData{
			ListenAddr:  yamlConfig.API.ListenAddr,
			Port:        yamlConfig.API.Port,
			Cert:        yamlConfig.API.Cert,
			Key:         yamlConfig.API.Key,
			CacheMaxAge: yamlConfig.API.CacheMaxAge,
			Debug:       yamlConfig.API.Debug,
		},
		Ingest: IngestData{
			Bucket:        yamlConfig.Ingest.Bucket,
			Prefix:        yamlConfig.Ingest.Prefix,
			Region:        yamlConfig.Ingest.Region,
			FetchInterval: yamlConfig.Ingest.FetchInterval,
			BatchSize:     yamlConfig.Ingest.BatchSize,
		},
	}

	// Environment overrides for deployments that inject credentials
	// rather than writing them into the config file
	if dsn := os.Getenv("DATABASE_READ_URL"); dsn != "" {
		config.Database.ReadDSN = dsn
	}
	if dsn := os.Getenv("DATABASE_WRITE_URL"); dsn != "" {
		config.Database.WriteDSN = dsn
	}
	if config.Database.WriteDSN == "" {
		config.Database.WriteDSN = config.Database.ReadDSN
	}
	if bucket := os.Getenv("INGEST_BUCKET"); bucket != "" {
		config.Ingest.Bucket = bucket
	}

	y.config = config
	return config, nil
}

// GetDatabaseConfig returns database configuration
func (y *YAMLProvider) GetDatabaseConfig() (*DatabaseData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &y.config.Database, nil
}

// GetAPIConfig returns REST API server configuration
func (y *YAMLProvider) GetAPIConfig() (*APIData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &y.config.API, nil
}

// GetIngestConfig returns ingest pipeline configuration
func (y *YAMLProvider) GetIngestConfig() (*IngestData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &y.config.Ingest, nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

// YAML-specific structs with proper YAML tags for parsing the on-disk format
type DatabaseYAML struct {
	ReadDSN  string `yaml:"read-dsn"`
	WriteDSN string `yaml:"write-dsn,omitempty"`
}

type APIYAML struct {
	ListenAddr  string `yaml:"listen-addr,omitempty"`
	Port        int    `yaml:"port,omitempty"`
	Cert        string `yaml:"cert,omitempty"`
	Key         string `yaml:"key,omitempty"`
	CacheMaxAge int    `yaml:"cache-max-age,omitempty"`
	Debug       bool   `yaml:"debug,omitempty"`
}

type IngestYAML struct {
	Bucket        string `yaml:"bucket"`
	Prefix        string `yaml:"prefix,omitempty"`
	Region        string `yaml:"region,omitempty"`
	FetchInterval int    `yaml:"fetch-interval,omitempty"`
	BatchSize     int    `yaml:"batch-size,omitempty"`
}
