package media

import (
	"context"
	"fmt"

	"github.com/sujalbistaa/setor7/internal/config"
)

// NewStoreFromConfig creates the Store selected by cfg.Type.
func NewStoreFromConfig(ctx context.Context, cfg config.MediaConfig) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(cfg.BaseURL), nil
	case "filesystem", "":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("filesystem media store requires MEDIA_DIR to be set")
		}
		return NewFileSystemStore(cfg.Dir, cfg.BaseURL)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 media store requires S3_BUCKET to be set")
		}
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown media store type: %s", cfg.Type)
	}
}
