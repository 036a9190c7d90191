package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory keeps objects in a map. It stands in for a blob store in tests and in-process copies.
type Memory struct {
	mu      sync.RWMutex
	closed  bool
	objects map[string][]byte
}

// NewMemory creates an empty in-memory backend
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// List implements Backend
func (m *Memory) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStorageClosed
	}
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// ListDirs implements Backend
func (m *Memory) ListDirs(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStorageClosed
	}
	seen := map[string]bool{}
	for k := range m.objects {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if i := strings.Index(k[len(prefix):], "/"); i >= 0 {
			seen[k[:len(prefix)+i+1]] = true
		}
	}
	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Read implements Backend
func (m *Memory) Read(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStorageClosed
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	res := make([]byte, len(data))
	copy(res, data)
	return res, nil
}

// Write implements Backend
func (m *Memory) Write(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStorageClosed
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	m.objects[key] = stored
	return nil
}

// Exists implements Backend
func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrStorageClosed
	}
	_, ok := m.objects[key]
	return ok, nil
}

// Delete implements Backend
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStorageClosed
	}
	delete(m.objects, key)
	return nil
}

// DeletePrefix implements Backend
func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStorageClosed
	}
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			delete(m.objects, k)
		}
	}
	return nil
}

// Close implements Backend
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
