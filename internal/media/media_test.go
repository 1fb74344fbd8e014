package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"cultivate/internal/forum"
)

// seqIDs hands out "key-1", "key-2", ...
type seqIDs struct{ n int }

func (s *seqIDs) New() string {
	s.n++
	return fmt.Sprintf("key-%d", s.n)
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

// adapterContract runs the behavior every adapter shares.
func adapterContract(t *testing.T, a forum.MediaAdapter) {
	t.Helper()
	ctx := context.Background()

	t.Run("put and get", func(t *testing.T) {
		data := []byte("hello, porch")
		obj, err := a.Put(ctx, "notes/Greeting.TXT", bytes.NewReader(data), int64(len(data)))
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if !strings.HasSuffix(obj.Key, ".txt") {
			t.Errorf("Key = %q, want lowercased .txt extension", obj.Key)
		}
		if obj.Name != "Greeting.TXT" {
			t.Errorf("Name = %q, want Greeting.TXT", obj.Name)
		}
		if obj.Size != int64(len(data)) {
			t.Errorf("Size = %d, want %d", obj.Size, len(data))
		}
		if !strings.HasPrefix(obj.MimeType, "text/plain") {
			t.Errorf("MimeType = %q, want text/plain", obj.MimeType)
		}
		if obj.URL == "" {
			t.Error("URL is empty")
		}

		var buf bytes.Buffer
		if err := a.Get(ctx, obj.Key, &buf); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !bytes.Equal(buf.Bytes(), data) {
			t.Errorf("Get() = %q, want %q", buf.Bytes(), data)
		}
	})

	t.Run("extension from content when name has none", func(t *testing.T) {
		obj, err := a.Put(ctx, "avatar", bytes.NewReader(pngHeader), -1)
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if obj.MimeType != "image/png" {
			t.Errorf("MimeType = %q, want image/png", obj.MimeType)
		}
		if !strings.HasSuffix(obj.Key, ".png") {
			t.Errorf("Key = %q, want .png extension", obj.Key)
		}
	})

	t.Run("size mismatch", func(t *testing.T) {
		if _, err := a.Put(ctx, "a.txt", strings.NewReader("abc"), 10); err == nil {
			t.Error("Put() expected size mismatch error")
		}
	})

	t.Run("empty name", func(t *testing.T) {
		if _, err := a.Put(ctx, " ", strings.NewReader("abc"), 3); !errors.Is(err, ErrEmptyName) {
			t.Errorf("Put() error = %v, want ErrEmptyName", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		obj, err := a.Put(ctx, "gone.txt", strings.NewReader("bye"), 3)
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if err := a.Delete(ctx, obj.Key); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if err := a.Get(ctx, obj.Key, &bytes.Buffer{}); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
		}
		if err := a.Delete(ctx, obj.Key); !errors.Is(err, ErrNotFound) {
			t.Errorf("second Delete() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("validate setup", func(t *testing.T) {
		if err := a.ValidateSetup(ctx); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})
}

func TestMemoryAdapter(t *testing.T) {
	adapterContract(t, NewMemoryAdapter(&seqIDs{}))
}

func TestMemoryAdapter_Len(t *testing.T) {
	m := NewMemoryAdapter(&seqIDs{})
	m.Put(context.Background(), "a.txt", strings.NewReader("a"), 1)
	m.Put(context.Background(), "b.txt", strings.NewReader("b"), 1)

	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
}

func TestValidKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"key-1.png", false},
		{"", true},
		{"..", true},
		{"../etc/passwd", true},
		{`a\b`, true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := validKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("validKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}
