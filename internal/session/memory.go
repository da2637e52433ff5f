package session

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a map-backed store for dev/testing.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

// Insert writes a new session.
func (m *MemoryStore) Insert(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

// Get returns a session by id.
func (m *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

// SetActive updates the activity flag.
func (m *MemoryStore) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Active = active
	m.sessions[id] = s
	return nil
}

// SetTokenID repoints the current-token reference.
func (m *MemoryStore) SetTokenID(_ context.Context, id, tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.TokenID = tokenID
	m.sessions[id] = s
	return nil
}

// List returns sessions newest-first.
func (m *MemoryStore) List(_ context.Context, activeOnly bool, skip, limit int) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Session
	for _, s := range m.sessions {
		if activeOnly && !s.Active {
			continue
		}
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	if skip >= len(res) {
		return nil, nil
	}
	res = res[skip:]
	if limit < len(res) {
		res = res[:limit]
	}
	return res, nil
}

// CountActive counts active sessions.
func (m *MemoryStore) CountActive(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.Active {
			n++
		}
	}
	return n, nil
}
