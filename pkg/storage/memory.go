package storage

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore implements KeyValue using in-memory storage.
// This is the default backend and provides fast access with no persistence.
// All data is lost when the process exits.
//
// MemoryStore is thread-safe and supports concurrent access using
// sync.RWMutex.
type MemoryStore struct {
	// values maps key to stored value.
	values map[string][]byte

	// bytes tracks the approximate number of bytes stored (keys + values).
	bytes int64

	// maxBytes is a soft quota; zero means unlimited.
	maxBytes int64

	// mu protects values and bytes.
	mu sync.RWMutex
}

// MemoryStoreConfig configures the memory store.
type MemoryStoreConfig struct {
	// MaxBytes is the byte quota for the store. Writes that would exceed it
	// fail with QuotaExceededError. Zero means unlimited.
	MaxBytes int64
}

// NewMemoryStore creates a new in-memory store with no quota.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithConfig(MemoryStoreConfig{})
}

// NewMemoryStoreWithConfig creates a new in-memory store with custom
// configuration.
func NewMemoryStoreWithConfig(cfg MemoryStoreConfig) *MemoryStore {
	return &MemoryStore{
		values:   make(map[string][]byte),
		maxBytes: cfg.MaxBytes,
	}
}

// Get retrieves the value for a key.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}

	// Copy so callers cannot mutate stored bytes
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// Set stores a value under a key.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delta := int64(len(value)) + int64(len(key))
	if prev, ok := m.values[key]; ok {
		delta -= int64(len(prev)) + int64(len(key))
	}

	if m.maxBytes > 0 && m.bytes+delta > m.maxBytes {
		return &QuotaExceededError{Key: key, InUse: m.bytes, Quota: m.maxBytes}
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	m.values[key] = stored
	m.bytes += delta

	return nil
}

// Remove deletes a key.
func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.values[key]; ok {
		m.bytes -= int64(len(prev)) + int64(len(key))
		delete(m.values, key)
	}

	return nil
}

// Keys returns all keys with the given prefix.
func (m *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.values))
	for key := range m.values {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// BytesInUse returns the approximate number of bytes stored.
func (m *MemoryStore) BytesInUse(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bytes, nil
}

// Close releases the store. The store must not be used afterwards.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values = make(map[string][]byte)
	m.bytes = 0
	return nil
}
