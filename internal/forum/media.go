package forum

import (
	"context"
	"io"
)

// MediaObject describes a stored upload.
type MediaObject struct {
	Key      string
	Name     string
	Size     int64
	MimeType string
	URL      string
}

// MediaAdapter stores uploaded files.
type MediaAdapter interface {
	// Put stores size bytes read from r under a generated key. name is the
	// original filename and only contributes its extension to the key.
	Put(ctx context.Context, name string, r io.Reader, size int64) (*MediaObject, error)

	// Get writes the stored object to w.
	Get(ctx context.Context, key string, w io.Writer) error

	// Delete removes the stored object. A missing key yields an error wrapping
	// the adapter's not-found sentinel.
	Delete(ctx context.Context, key string) error

	// ValidateSetup verifies that the backing store is reachable.
	ValidateSetup(ctx context.Context) error
}
