package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidRange means the scheduled end is not after the start.
	ErrInvalidRange = errors.New("session end must be after start")
	// ErrNotFound means no session exists with the given id.
	ErrNotFound = errors.New("session not found")
)

// Session is a scheduled class or training block.
type Session struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	CreatedBy   string    `json:"created_by"`
	TokenID     string    `json:"token_id,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateSpec carries the caller-supplied fields for a new session.
type CreateSpec struct {
	Title       string
	Description string
	StartTime   time.Time
	EndTime     time.Time
	CreatedBy   string
}

// Store persists sessions.
type Store interface {
	Insert(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	SetActive(ctx context.Context, id string, active bool) error
	SetTokenID(ctx context.Context, id, tokenID string) error
	List(ctx context.Context, activeOnly bool, skip, limit int) ([]Session, error)
	CountActive(ctx context.Context) (int, error)
}

// Registry owns session activity state and the current-token reference.
type Registry struct {
	store Store
}

// NewRegistry creates a registry backed by a store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// Create validates the schedule and persists a new active session.
func (r *Registry) Create(ctx context.Context, spec CreateSpec) (Session, error) {
	if !spec.EndTime.After(spec.StartTime) {
		return Session{}, ErrInvalidRange
	}
	s := Session{
		ID:          uuid.NewString(),
		Title:       spec.Title,
		Description: spec.Description,
		StartTime:   spec.StartTime,
		EndTime:     spec.EndTime,
		CreatedBy:   spec.CreatedBy,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.store.Insert(ctx, s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Get returns a session by id.
func (r *Registry) Get(ctx context.Context, id string) (Session, error) {
	return r.store.Get(ctx, id)
}

// List returns sessions newest-first with pagination.
func (r *Registry) List(ctx context.Context, activeOnly bool, skip, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}
	return r.store.List(ctx, activeOnly, skip, limit)
}

// Deactivate flips a session inactive. The transition is one-way and
// idempotent: deactivating an inactive session is a no-op.
func (r *Registry) Deactivate(ctx context.Context, id string) error {
	if _, err := r.store.Get(ctx, id); err != nil {
		return err
	}
	return r.store.SetActive(ctx, id, false)
}

// AttachToken repoints the session's current-token reference. The previous
// token is orphaned, not invalidated.
func (r *Registry) AttachToken(ctx context.Context, sessionID, tokenID string) error {
	return r.store.SetTokenID(ctx, sessionID, tokenID)
}

// IsActive reports whether the session accepts claims.
func (r *Registry) IsActive(ctx context.Context, id string) (bool, error) {
	s, err := r.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return s.Active, nil
}

// CountActive returns the number of active sessions.
func (r *Registry) CountActive(ctx context.Context) (int, error) {
	return r.store.CountActive(ctx)
}
