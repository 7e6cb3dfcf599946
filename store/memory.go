package store

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is an in-process Store used by tests and the offline commands.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]map[string][]byte
	closed bool
}

func NewMemory() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, ns, key string, dst any) (bool, error) {
	if err := checkKey(ns, key); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrStoreClosed
	}
	b, ok := m.data[ns][key]
	if !ok {
		return false, nil
	}
	return true, decode(b, dst)
}

func (m *MemoryStore) Put(_ context.Context, ns, key string, v any) error {
	if err := checkKey(ns, key); err != nil {
		return err
	}
	b, err := encode(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	bucket := m.data[ns]
	if bucket == nil {
		bucket = make(map[string][]byte)
		m.data[ns] = bucket
	}
	bucket[key] = b
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, ns, key string) error {
	if err := checkKey(ns, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	delete(m.data[ns], key)
	return nil
}

func (m *MemoryStore) Keys(_ context.Context, ns string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	out := make([]string, 0, len(m.data[ns]))
	for k := range m.data[ns] {
		out = append(out, k)
	}
	slices.Sort(out)
	return out, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
