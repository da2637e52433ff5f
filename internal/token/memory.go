package token

import (
	"context"
	"sync"
)

// MemoryStore is a map-backed store for dev/testing.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]Token
	byValue map[string]Token
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Token), byValue: make(map[string]Token)}
}

// Insert writes a new token.
func (m *MemoryStore) Insert(_ context.Context, t Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[t.ID] = t
	m.byValue[t.Value] = t
	return nil
}

// Get returns a token by id.
func (m *MemoryStore) Get(_ context.Context, id string) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok {
		return Token{}, ErrNotFound
	}
	return t, nil
}

// GetByValue returns a token by its scannable value.
func (m *MemoryStore) GetByValue(_ context.Context, value string) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byValue[value]
	if !ok {
		return Token{}, ErrNotFound
	}
	return t, nil
}
