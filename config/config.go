// Package config holds node configuration: load, default, validate, save,
// following the teacher's config package shape.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds all node configuration.
type Config struct {
	DataDir  string `json:"data_dir"`
	HTTPAddr string `json:"http_addr"`

	// DirectCommitIntervalMS is the fixed tick period between block
	// production attempts.
	DirectCommitIntervalMS int `json:"direct_commit_interval_ms"`
	// MaxTxPerBlock bounds how many pool entries a single tick drains.
	MaxTxPerBlock int `json:"max_tx_per_block"`
	// MaxPoolSize bounds the transaction pool's backlog.
	MaxPoolSize int `json:"max_pool_size"`
	// MaxTxDataSize bounds a single transaction's payload in bytes.
	MaxTxDataSize int `json:"max_tx_data_size"`
	// FinalizationWaitTimeoutMS is validated and saved with the rest of the
	// config, but nothing reads it: httpapi's wait_finalization uses its own
	// 2000 ms default or the caller's timeout_ms.
	FinalizationWaitTimeoutMS int `json:"finalization_wait_timeout_ms"`
	// MaxStorageSizeMB triggers size-based pruning when exceeded; 0
	// disables pruning.
	MaxStorageSizeMB int `json:"max_storage_size_mb"`
	// EmptyBlocks, when false, skips a tick with nothing in the pool
	// instead of committing an empty block.
	EmptyBlocks bool `json:"empty_blocks"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir:                   "./data",
		HTTPAddr:                  ":8545",
		DirectCommitIntervalMS:    10,
		MaxTxPerBlock:             10_000,
		MaxPoolSize:               50_000,
		MaxTxDataSize:             1024,
		FinalizationWaitTimeoutMS: 2000,
		MaxStorageSizeMB:          0,
		EmptyBlocks:               false,
	}
}

// Load reads a JSON config file from path, applying DefaultConfig for any
// field the file omits, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr must not be empty")
	}
	if c.DirectCommitIntervalMS <= 0 {
		return fmt.Errorf("direct_commit_interval_ms must be positive, got %d", c.DirectCommitIntervalMS)
	}
	if c.MaxTxPerBlock <= 0 {
		return fmt.Errorf("max_tx_per_block must be positive, got %d", c.MaxTxPerBlock)
	}
	if c.MaxPoolSize <= 0 {
		return fmt.Errorf("max_pool_size must be positive, got %d", c.MaxPoolSize)
	}
	if c.MaxTxDataSize <= 0 {
		return fmt.Errorf("max_tx_data_size must be positive, got %d", c.MaxTxDataSize)
	}
	if c.FinalizationWaitTimeoutMS <= 0 {
		return fmt.Errorf("finalization_wait_timeout_ms must be positive, got %d", c.FinalizationWaitTimeoutMS)
	}
	if c.MaxStorageSizeMB < 0 {
		return fmt.Errorf("max_storage_size_mb must not be negative, got %d", c.MaxStorageSizeMB)
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
