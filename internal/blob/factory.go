package blob

import (
	"context"
	"fmt"

	"ots-go/internal/config"
	"ots-go/internal/ots"
)

// NewBlobStoreFromConfig creates a BlobStore implementation based on the
// blob config type.
func NewBlobStoreFromConfig(ctx context.Context, cfg config.BlobConfig) (ots.BlobStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryBlobStore(nil), nil
	case "s3":
		return NewS3BlobStore(ctx, cfg)
	case "filesystem", "":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem blob store requires root to be set")
		}
		return NewFileSystemBlobStore(cfg.Root)
	default:
		return nil, fmt.Errorf("unknown blob store type: %s", cfg.Type)
	}
}
