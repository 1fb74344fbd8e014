// Package media stores uploaded files for the forum. Adapters place content
// under generated keys; the caller keeps the returned Object (typically as an
// attachments row).
package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"cultivate/internal/forum"
)

var (
	ErrDisabled   = errors.New("media is disabled")
	ErrNotFound   = errors.New("media object not found")
	ErrEmptyName  = errors.New("media name is required")
	ErrInvalidKey = errors.New("invalid media key")
)

// sniffLen is how much of an upload is inspected for its content type.
const sniffLen = 3072

// sniff detects the MIME type from the head of r and returns a reader that
// still yields the whole stream.
func sniff(r io.Reader) (*mimetype.MIME, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("reading upload: %w", err)
	}
	head = head[:n]
	return mimetype.Detect(head), io.MultiReader(bytes.NewReader(head), r), nil
}

// newKey names an upload: a generated id plus the original extension, or
// the detected one when the name has none.
func newKey(ids forum.IDGenerator, name string, mime *mimetype.MIME) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = mime.Extension()
	}
	return ids.New() + ext
}

// validKey rejects keys that could escape the adapter's namespace.
func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// prepare validates an upload and returns its object skeleton and body.
func prepare(ids forum.IDGenerator, name string, r io.Reader) (*forum.MediaObject, io.Reader, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil, ErrEmptyName
	}
	mime, body, err := sniff(r)
	if err != nil {
		return nil, nil, err
	}
	return &forum.MediaObject{
		Key:      newKey(ids, name, mime),
		Name:     filepath.Base(name),
		MimeType: mime.String(),
	}, body, nil
}

// checkSize compares the bytes stored with the caller's declared size.
// A negative size means unknown.
func checkSize(expected, written int64) error {
	if expected >= 0 && written != expected {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expected, written)
	}
	return nil
}
