package ogn

import (
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultCacheMB is the default size of the decoded octree cache.
	DefaultCacheMB = 256

	// DefaultBatchSize is the number of models per batch if none is configured.
	DefaultBatchSize = 1
)

// Config is the parsed TOML configuration shared by the command-line tools.
type Config struct {
	Logging LogConfig
	Store   StoreConfig
	Cache   CacheConfig
	Dataset DatasetConfig
	Convert ConvertConfig
}

// DefaultEngine is the storage engine used if none is configured.
const DefaultEngine = "badger"

// StoreConfig describes the key-value store used to persist octrees.
type StoreConfig struct {
	Engine      string
	Path        string
	Compression string
	SyncWrites  bool `toml:"sync_writes"`
}

// CacheConfig sizes in-memory caches.
type CacheConfig struct {
	SizeMB int `toml:"size_mb"`
}

// Bytes returns the cache size in bytes, using the default if unset.
func (c CacheConfig) Bytes() int {
	if c.SizeMB <= 0 {
		return DefaultCacheMB << 20
	}
	return c.SizeMB << 20
}

// DatasetConfig describes a training data source.
type DatasetConfig struct {
	// Source is a text file listing one octree file per line.
	Source    string
	Preload   bool
	BatchSize int `toml:"batch_size"`
}

// ConvertConfig holds defaults for grid/octree conversion.
type ConvertConfig struct {
	MinLevel int `toml:"min_level"`
	Workers  int
}

// Some settings in the TOML can be given as relative paths.
// This function converts them in-place to absolute paths,
// assuming the given paths were relative to the TOML file's own directory.
func (c *Config) convertPathsToAbsolute(configPath string) error {
	var err error
	configDir := filepath.Dir(configPath)

	// [logging].logfile
	if c.Logging.Logfile != "" {
		c.Logging.Logfile, err = ConvertToAbsolute(c.Logging.Logfile, configDir)
		if err != nil {
			return fmt.Errorf("error converting logfile setting to absolute path: %v", err)
		}
	}

	// [store].path
	if c.Store.Path != "" {
		c.Store.Path, err = ConvertToAbsolute(c.Store.Path, configDir)
		if err != nil {
			return fmt.Errorf("error converting store.path to absolute path: %v", err)
		}
	}

	// [dataset].source
	if c.Dataset.Source != "" {
		c.Dataset.Source, err = ConvertToAbsolute(c.Dataset.Source, configDir)
		if err != nil {
			return fmt.Errorf("error converting dataset.source to absolute path: %v", err)
		}
	}
	return nil
}

// LoadConfig loads configuration from a TOML file.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("no TOML configuration file provided")
	}
	var c Config
	if _, err := toml.DecodeFile(filename, &c); err != nil {
		return nil, fmt.Errorf("could not decode TOML config: %v", err)
	}
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return nil, fmt.Errorf("could not convert relative paths to absolute paths in TOML config: %v", err)
	}
	if c.Store.Engine == "" {
		c.Store.Engine = DefaultEngine
	}
	if c.Dataset.BatchSize <= 0 {
		c.Dataset.BatchSize = DefaultBatchSize
	}
	if _, err := ParseCompression(c.Store.Compression); err != nil {
		return nil, err
	}
	Debugf("config: %+v\n", c)
	return &c, nil
}
