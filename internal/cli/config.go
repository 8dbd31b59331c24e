package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory when no
// --config flag is given.
const DefaultConfigFile = "doctable.yaml"

// Config is the file-backed configuration for store- and
// database-touching commands.
type Config struct {
	// URI is the document database connection string.
	URI string `yaml:"uri"`

	// Database is the source database holding the collections.
	Database string `yaml:"database"`

	// Schema is the schema name commands operate on by default.
	Schema string `yaml:"schema"`

	// SampleSize caps the documents read per collection during
	// generation.
	SampleSize int64 `yaml:"sampleSize"`

	// ScanMethod selects which documents are sampled: idForward,
	// idReverse, random or all.
	ScanMethod string `yaml:"scanMethod"`

	Store StoreConfig `yaml:"store"`
}

// StoreConfig selects the schema store backend.
type StoreConfig struct {
	// Driver is "mongo" (persist into the source database) or
	// "sqlite" (local file).
	Driver string `yaml:"driver"`

	// Path is the SQLite database file, for the sqlite driver.
	Path string `yaml:"path"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		URI:        "mongodb://localhost:27017",
		Schema:     "_default",
		SampleSize: 1000,
		ScanMethod: "idForward",
		Store: StoreConfig{
			Driver: "mongo",
			Path:   "doctable-schemas.db",
		},
	}
}

// LoadConfig reads configuration from the given path, or from
// doctable.yaml in the working directory when path is empty. A missing
// default file yields the defaults; a missing explicit file is an
// error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
