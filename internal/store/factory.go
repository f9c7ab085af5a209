package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ots-go/internal/config"
	"ots-go/internal/ots"
)

// NewStoreFromConfig creates a MetadataStore implementation based on the
// store config type.
func NewStoreFromConfig(cfg config.StoreConfig) (ots.MetadataStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(nil), nil
	case "sqlite", "":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("sqlite store requires data_dir to be set")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		opts := &Options{}
		if cfg.OpTimeoutSeconds > 0 {
			opts.OpTimeout = time.Duration(cfg.OpTimeoutSeconds) * time.Second
		}
		if cfg.HealthIntervalSeconds > 0 {
			opts.HealthInterval = time.Duration(cfg.HealthIntervalSeconds) * time.Second
		}
		return NewSQLiteStore(filepath.Join(cfg.DataDir, "ots.db"), opts)
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
