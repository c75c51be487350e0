// Package config loads the TOML configuration file.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// Main Config Structure
// =============================================================================

// Config represents the application configuration.
type Config struct {
	Source    SourceConfig    `toml:"source"`
	Storage   StorageConfig   `toml:"storage"`
	Index     IndexConfig     `toml:"index"`
	Ingestion IngestionConfig `toml:"ingestion"`
	Query     QueryConfig     `toml:"query"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// =============================================================================
// Source Config
// =============================================================================

// SourceConfig contains receipt source settings.
type SourceConfig struct {
	ReceiptDir string `toml:"receipt_dir"` // Path to receipt chunk files
}

// =============================================================================
// Storage Config
// =============================================================================

// StorageConfig contains KV storage settings.
type StorageConfig struct {
	Backend string `toml:"backend"` // "rocksdb" or "memory"
	DBPath  string `toml:"db_path"` // Path to the RocksDB directory

	// Write performance
	WriteBufferSizeMB    int `toml:"write_buffer_size_mb"`    // Memtable size (default: 64)
	MaxWriteBufferNumber int `toml:"max_write_buffer_number"` // Number of memtables (default: 2)

	// Read performance
	BlockCacheSizeMB      int `toml:"block_cache_size_mb"`       // LRU cache size (default: 64)
	BloomFilterBitsPerKey int `toml:"bloom_filter_bits_per_key"` // Bloom filter bits (default: 10, 0 to disable)

	// Background jobs
	MaxBackgroundJobs int `toml:"max_background_jobs"` // Parallel background threads (default: 4)

	// Compression
	Compression string `toml:"compression"` // "none", "snappy", "lz4", "zstd" (default: "lz4")

	// WAL
	DisableWAL bool `toml:"disable_wal"` // Disable write-ahead log for faster bulk ingestion
}

// =============================================================================
// Index Config
// =============================================================================

// IndexConfig contains index-engine settings.
type IndexConfig struct {
	Dir   string `toml:"dir"`   // Directory for temp_index.bin / finalized_index.bin
	Codec string `toml:"codec"` // "zstd", "snappy", "lz4", "none" (default: "zstd")
}

// =============================================================================
// Ingestion Config
// =============================================================================

// IngestionConfig contains ingestion settings.
type IngestionConfig struct {
	ProgressFile     string `toml:"progress_file"`     // Progress file path (empty = timestamped default)
	SnapshotInterval int64  `toml:"snapshot_interval"` // Blocks between history snapshots (default: 100000)

	// Parallelism
	Workers   int `toml:"workers"`    // Parallel chunk parsers (0 = NumCPU)
	QueueSize int `toml:"queue_size"` // Pipeline buffer (0 = workers * 2)
}

// =============================================================================
// Query Config
// =============================================================================

// QueryConfig contains query command settings.
type QueryConfig struct {
	MaxBlockRange uint32 `toml:"max_block_range"` // Max blocks if --to not specified (default: 1000000)
	DefaultLimit  int    `toml:"default_limit"`   // Default max blocks to return (default: 1000)
}

// =============================================================================
// Metrics Config
// =============================================================================

// MetricsConfig contains the optional prometheus listener settings.
type MetricsConfig struct {
	ListenAddr string `toml:"listen_addr"` // e.g. ":9090"; empty disables the listener
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			ReceiptDir: "./data/receipts",
		},
		Storage: StorageConfig{
			Backend:               "rocksdb",
			DBPath:                "./logindex.db",
			WriteBufferSizeMB:     64,
			MaxWriteBufferNumber:  2,
			BlockCacheSizeMB:      64,
			BloomFilterBitsPerKey: 10,
			MaxBackgroundJobs:     4,
			Compression:           "lz4",
			DisableWAL:            false,
		},
		Index: IndexConfig{
			Dir:   "./logindex.db",
			Codec: "zstd",
		},
		Ingestion: IngestionConfig{
			ProgressFile:     "",
			SnapshotInterval: 100000,
			Workers:          0,
			QueueSize:        0,
		},
		Query: QueryConfig{
			MaxBlockRange: 1000000,
			DefaultLimit:  1000,
		},
	}
}

// =============================================================================
// Loading and Validation
// =============================================================================

// LoadConfig loads configuration from a TOML file.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if _, err := toml.Decode(string(data), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "rocksdb", "memory":
	default:
		return fmt.Errorf("storage.backend must be \"rocksdb\" or \"memory\"")
	}

	if c.Storage.Backend == "rocksdb" && c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	if c.Index.Dir == "" {
		return fmt.Errorf("index.dir is required")
	}

	switch c.Index.Codec {
	case "", "zstd", "snappy", "lz4", "none":
	default:
		return fmt.Errorf("index.codec must be one of zstd, snappy, lz4, none")
	}

	return nil
}

// FindConfigFile looks for the config file in the current directory.
func FindConfigFile() (string, error) {
	candidates := []string{
		"logindex.toml",
		"config.toml",
	}

	for _, name := range candidates {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}

	return "", fmt.Errorf("config file not found. Create logindex.toml")
}
