// Package storage provides the key/value backends behind the console's
// token store: an in-memory map for tests and ephemeral sessions, and a
// JSON file under the user's config directory for persisted sessions.
package storage

import (
	"errors"
	"sync"
)

// ErrUnavailable is returned when the backing medium cannot be read or
// written. Callers treat it as "nothing stored".
var ErrUnavailable = errors.New("storage unavailable")

// KV is a flat string key/value store.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(keys ...string) error
}

// Memory is a KV held in process memory.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns an empty in-memory KV.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}
