package queue

import (
	"fmt"
	"sync"
)

// KeyValue is the local persistence boundary: string-serialized JSON blobs
// under string keys, the same shape the device storage exposes.
type KeyValue interface {
	GetItem(key string) (string, bool, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// PersistenceError marks a local read/write failure. Callers should treat it
// as potentially transient and distinct from remote errors.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("local persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// MemoryKV is an in-memory KeyValue, used in tests and as a fallback when no
// durable path is configured.
type MemoryKV struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemoryKV creates an empty in-memory key-value store
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{items: make(map[string]string)}
}

func (m *MemoryKV) GetItem(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *MemoryKV) SetItem(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *MemoryKV) RemoveItem(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
