package cache

import (
	"context"
	"sync"
)

// Memory is an in-process Backend. Contents are lost on restart.
type Memory struct {
	mu      sync.RWMutex
	entries map[memoryKey]Entry
}

type memoryKey struct {
	kind     Kind
	routeTag string
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{entries: make(map[memoryKey]Entry)}
}

// Load returns the entry stored for kind and routeTag.
func (m *Memory) Load(_ context.Context, kind Kind, routeTag string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[memoryKey{kind, routeTag}]
	return e, ok, nil
}

// Store overwrites the entry for kind and routeTag.
func (m *Memory) Store(_ context.Context, kind Kind, routeTag string, e Entry) error {
	payload := make([]byte, len(e.Payload))
	copy(payload, e.Payload)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[memoryKey{kind, routeTag}] = Entry{Payload: payload, CapturedAt: e.CapturedAt}
	return nil
}

