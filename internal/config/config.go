// Package config loads the codexindex service configuration from YAML
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nainya/codexindex/internal/logger"
	"github.com/nainya/codexindex/pkg/engine"
	"github.com/nainya/codexindex/pkg/index"
)

// Config is the full service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Log     logger.Config `yaml:"log"`
}

// ServerConfig controls the gRPC and observability listeners
type ServerConfig struct {
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	MetricsPort     int           `yaml:"metrics_port" validate:"min=0,max=65535"`
	Reflection      bool          `yaml:"reflection"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
	MaxRecvMsgBytes int           `yaml:"max_recv_msg_bytes" validate:"gte=0"`
}

// StorageConfig controls durability. An empty data_dir keeps the index in memory only.
type StorageConfig struct {
	DataDir            string        `yaml:"data_dir"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval" validate:"gte=0"`
	CheckpointOnClose  bool          `yaml:"checkpoint_on_close"`
	SyncWrites         bool          `yaml:"sync_writes"`
	MaxJournalFileSize int64         `yaml:"max_journal_file_size" validate:"gte=0"`
}

// CacheConfig controls the query result cache
type CacheConfig struct {
	Size int           `yaml:"size" validate:"gte=0"`
	TTL  time.Duration `yaml:"ttl" validate:"gte=0"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            50051,
			MetricsPort:     9090,
			Reflection:      true,
			ShutdownTimeout: 10 * time.Second,
			MaxRecvMsgBytes: 16 << 20,
		},
		Storage: StorageConfig{
			DataDir:            "./data",
			CheckpointInterval: 5 * time.Minute,
			CheckpointOnClose:  true,
			SyncWrites:         true,
			MaxJournalFileSize: 64 << 20,
		},
		Cache: CacheConfig{
			Size: index.DefaultCacheSize,
			TTL:  index.DefaultCacheTTL,
		},
		Log: logger.Config{
			Level: "info",
		},
	}
}

// Load reads path, fills unset values from Default and validates the
// result. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates it
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults restores defaults for values explicitly zeroed in YAML
// where zero is not meaningful
func (c *Config) applyDefaults() {
	d := Default()
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if c.Server.MaxRecvMsgBytes == 0 {
		c.Server.MaxRecvMsgBytes = d.Server.MaxRecvMsgBytes
	}
	if c.Storage.MaxJournalFileSize == 0 {
		c.Storage.MaxJournalFileSize = d.Storage.MaxJournalFileSize
	}
	if c.Cache.Size == 0 {
		c.Cache.Size = d.Cache.Size
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = d.Cache.TTL
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

var validate = validator.New()

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid config")

// Validate checks field ranges and cross-field constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Server.MetricsPort != 0 && c.Server.MetricsPort == c.Server.Port {
		return fmt.Errorf("%w: metrics_port must differ from port", ErrInvalidConfig)
	}
	return nil
}

// Engine converts the storage and cache sections to an engine.Config
func (c *Config) Engine() engine.Config {
	return engine.Config{
		DataDir:            c.Storage.DataDir,
		CheckpointInterval: c.Storage.CheckpointInterval,
		CheckpointOnClose:  c.Storage.CheckpointOnClose,
		SyncWrites:         c.Storage.SyncWrites,
		MaxJournalFileSize: c.Storage.MaxJournalFileSize,
		CacheSize:          c.Cache.Size,
		CacheTTL:           c.Cache.TTL,
	}
}
