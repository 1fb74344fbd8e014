package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"cultivate/internal/forum"
)

// LocalAdapter stores uploads as files in a single directory. URLs are
// relative to the web root: /<dir name>/<key>.
type LocalAdapter struct {
	root string
	ids  forum.IDGenerator
}

// NewLocalAdapter creates the upload directory if needed.
func NewLocalAdapter(root string, ids forum.IDGenerator) (*LocalAdapter, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	if ids == nil {
		ids = forum.UUIDGenerator{}
	}
	return &LocalAdapter{root: root, ids: ids}, nil
}

// Put writes r under a new key using a temp file and rename, so a failed
// upload never leaves a partial object behind.
func (a *LocalAdapter) Put(ctx context.Context, name string, r io.Reader, size int64) (*forum.MediaObject, error) {
	obj, body, err := prepare(a.ids, name, r)
	if err != nil {
		return nil, err
	}

	tmpFile, err := os.CreateTemp(a.root, ".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, body)
	if err != nil {
		tmpFile.Close()
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := checkSize(size, written); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.Rename(tmpPath, filepath.Join(a.root, obj.Key)); err != nil {
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true

	obj.Size = written
	obj.URL = path.Join("/", filepath.Base(a.root), obj.Key)
	return obj, nil
}

// Get copies the stored object to w.
func (a *LocalAdapter) Get(_ context.Context, key string, w io.Writer) error {
	if err := validKey(key); err != nil {
		return err
	}
	f, err := os.Open(filepath.Join(a.root, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return nil
}

// Delete removes the stored object.
func (a *LocalAdapter) Delete(_ context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(a.root, key)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// ValidateSetup verifies the upload directory exists and is writable.
func (a *LocalAdapter) ValidateSetup(_ context.Context) error {
	info, err := os.Stat(a.root)
	if err != nil {
		return fmt.Errorf("upload directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("upload path is not a directory: %s", a.root)
	}

	probe, err := os.CreateTemp(a.root, ".probe-*")
	if err != nil {
		return fmt.Errorf("upload directory not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

var _ forum.MediaAdapter = (*LocalAdapter)(nil)
