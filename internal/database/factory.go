package database

import (
	"fmt"
	"path/filepath"
	"strings"

	"cultivate/internal/config"
	"cultivate/internal/forum"
)

// NewDatabaseFromConfig creates a database based on the connection config type.
// Relative sqlite paths resolve against baseDir.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, baseDir string, clock forum.Clock) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		path := strings.TrimPrefix(cfg.URL, "file:")
		if path == "" {
			return nil, fmt.Errorf("url required for sqlite database")
		}
		if path != ":memory:" && !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		return NewSQLiteDatabase(path, clock)
	case "memory":
		return NewSQLiteDatabase(":memory:", clock)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
