package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"cultivate/internal/forum"
)

// MemoryAdapter keeps uploads in memory. Safe for concurrent use.
type MemoryAdapter struct {
	ids     forum.IDGenerator
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryAdapter(ids forum.IDGenerator) *MemoryAdapter {
	if ids == nil {
		ids = forum.UUIDGenerator{}
	}
	return &MemoryAdapter{ids: ids, objects: make(map[string][]byte)}
}

func (m *MemoryAdapter) Put(_ context.Context, name string, r io.Reader, size int64) (*forum.MediaObject, error) {
	obj, body, err := prepare(m.ids, name, r)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if err := checkSize(size, int64(len(data))); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[obj.Key] = data

	obj.Size = int64(len(data))
	obj.URL = "memory://" + obj.Key
	return obj, nil
}

func (m *MemoryAdapter) Get(_ context.Context, key string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	_, err := io.Copy(w, bytes.NewReader(data))
	return err
}

func (m *MemoryAdapter) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	delete(m.objects, key)
	return nil
}

func (m *MemoryAdapter) ValidateSetup(context.Context) error { return nil }

// Len returns the number of stored objects.
func (m *MemoryAdapter) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

var _ forum.MediaAdapter = (*MemoryAdapter)(nil)
