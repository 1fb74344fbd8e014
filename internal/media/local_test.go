package media

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLocalAdapter(t *testing.T) {
	t.Run("creates upload directory", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "public", "uploads")

		if _, err := NewLocalAdapter(root, nil); err != nil {
			t.Fatalf("NewLocalAdapter() error = %v", err)
		}
		info, err := os.Stat(root)
		if err != nil {
			t.Fatalf("upload directory not created: %v", err)
		}
		if !info.IsDir() {
			t.Error("upload path is not a directory")
		}
	})
}

func TestLocalAdapter(t *testing.T) {
	a, err := NewLocalAdapter(filepath.Join(t.TempDir(), "uploads"), &seqIDs{})
	if err != nil {
		t.Fatalf("NewLocalAdapter() error = %v", err)
	}
	adapterContract(t, a)
}

func TestLocalAdapter_URLAndFile(t *testing.T) {
	root := filepath.Join(t.TempDir(), "uploads")
	a, _ := NewLocalAdapter(root, &seqIDs{})

	obj, err := a.Put(context.Background(), "photo.jpg", strings.NewReader("jpeg-ish"), 8)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if obj.URL != "/uploads/key-1.jpg" {
		t.Errorf("URL = %q, want /uploads/key-1.jpg", obj.URL)
	}
	data, err := os.ReadFile(filepath.Join(root, "key-1.jpg"))
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if string(data) != "jpeg-ish" {
		t.Errorf("stored file = %q", data)
	}
}

func TestLocalAdapter_FailedPutLeavesNothing(t *testing.T) {
	root := filepath.Join(t.TempDir(), "uploads")
	a, _ := NewLocalAdapter(root, &seqIDs{})

	if _, err := a.Put(context.Background(), "short.txt", strings.NewReader("abc"), 99); err == nil {
		t.Fatal("Put() expected size mismatch error")
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("upload directory has %d entries after failed put, want 0", len(entries))
	}
}

func TestLocalAdapter_RejectsPathKeys(t *testing.T) {
	a, _ := NewLocalAdapter(filepath.Join(t.TempDir(), "uploads"), &seqIDs{})

	err := a.Get(context.Background(), "../secret", &bytes.Buffer{})
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Get() error = %v, want ErrInvalidKey", err)
	}
}

func TestLocalAdapter_ValidateSetup_MissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "uploads")
	a, _ := NewLocalAdapter(root, &seqIDs{})
	os.RemoveAll(root)

	if err := a.ValidateSetup(context.Background()); err == nil {
		t.Error("ValidateSetup() expected error for missing directory")
	}
}
