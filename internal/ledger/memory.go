package ledger

import (
	"context"
	"sort"
	"sync"
)

type pairKey struct {
	sessionID string
	subjectID string
}

// MemoryStore is a map-backed store for dev/testing. It enforces the same
// composite-key uniqueness the Postgres indexes do.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[pairKey]Record
	requests map[string]CorrectionRequest
	reqPairs map[pairKey]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[pairKey]Record),
		requests: make(map[string]CorrectionRequest),
		reqPairs: make(map[pairKey]string),
	}
}

// InsertRecord writes a new attendance record.
func (m *MemoryStore) InsertRecord(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{rec.SessionID, rec.SubjectID}
	if _, ok := m.records[key]; ok {
		return ErrAlreadyClaimed
	}
	m.records[key] = rec
	return nil
}

// GetRecord looks up the record for a (session, subject) pair.
func (m *MemoryStore) GetRecord(_ context.Context, sessionID, subjectID string) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[pairKey{sessionID, subjectID}]
	return rec, ok, nil
}

// SessionRecords lists every record for a session newest-first.
func (m *MemoryStore) SessionRecords(_ context.Context, sessionID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Record
	for key, rec := range m.records {
		if key.sessionID == sessionID {
			res = append(res, rec)
		}
	}
	sortNewest(res)
	return res, nil
}

// SubjectRecords lists a subject's records newest-first.
func (m *MemoryStore) SubjectRecords(_ context.Context, subjectID string, skip, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Record
	for key, rec := range m.records {
		if key.subjectID == subjectID {
			res = append(res, rec)
		}
	}
	sortNewest(res)
	if skip >= len(res) {
		return nil, nil
	}
	res = res[skip:]
	if limit > 0 && limit < len(res) {
		res = res[:limit]
	}
	return res, nil
}

// RecentRecords lists the latest records for a session.
func (m *MemoryStore) RecentRecords(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	res, err := m.SessionRecords(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && limit < len(res) {
		res = res[:limit]
	}
	return res, nil
}

// InsertRequest files a new correction request.
func (m *MemoryStore) InsertRequest(_ context.Context, req CorrectionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{req.SessionID, req.SubjectID}
	if _, ok := m.reqPairs[key]; ok {
		return ErrDuplicateRequest
	}
	m.reqPairs[key] = req.ID
	m.requests[req.ID] = req
	return nil
}

// GetRequest returns a correction request by id.
func (m *MemoryStore) GetRequest(_ context.Context, id string) (CorrectionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return CorrectionRequest{}, ErrNotFound
	}
	return req, nil
}

// UpdateRequest stores the resolution of a request.
func (m *MemoryStore) UpdateRequest(_ context.Context, req CorrectionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[req.ID]; !ok {
		return ErrNotFound
	}
	m.requests[req.ID] = req
	return nil
}

// ListRequests lists correction requests newest-first with optional filters.
func (m *MemoryStore) ListRequests(_ context.Context, filter RequestFilter) ([]CorrectionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []CorrectionRequest
	for _, req := range m.requests {
		if filter.SubjectID != "" && req.SubjectID != filter.SubjectID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		res = append(res, req)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	if filter.Skip >= len(res) {
		return nil, nil
	}
	res = res[filter.Skip:]
	if filter.Limit > 0 && filter.Limit < len(res) {
		res = res[:filter.Limit]
	}
	return res, nil
}

func sortNewest(recs []Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Timestamp.After(recs[j].Timestamp) })
}
