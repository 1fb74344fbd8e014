package media

import (
	"context"
	"fmt"
	"path/filepath"

	"cultivate/internal/config"
	"cultivate/internal/forum"
)

// NewAdapterFromConfig creates a media adapter based on the media config type.
// Relative local paths resolve against baseDir.
func NewAdapterFromConfig(ctx context.Context, cfg config.MediaConfig, baseDir string, ids forum.IDGenerator) (forum.MediaAdapter, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	switch cfg.Type {
	case "local":
		root := cfg.Path
		if root == "" {
			root = "./public/uploads"
		}
		if !filepath.IsAbs(root) {
			root = filepath.Join(baseDir, root)
		}
		return NewLocalAdapter(root, ids)
	case "memory":
		return NewMemoryAdapter(ids), nil
	case "s3":
		return NewS3Adapter(ctx, cfg, ids)
	default:
		return nil, fmt.Errorf("unknown media type: %s", cfg.Type)
	}
}
