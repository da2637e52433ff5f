package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/session"
)

var (
	// ErrNotFound means no token exists with the given value.
	ErrNotFound = errors.New("token not found")
	// ErrExpired means the token's TTL has elapsed.
	ErrExpired = errors.New("token expired")
	// ErrSessionInactive means the owning session no longer accepts claims.
	ErrSessionInactive = errors.New("session inactive")
)

// Token is a short-lived scannable value bound to a session.
type Token struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store persists tokens. Expired tokens are never deleted; they stay as an
// audit trail and simply fail validation.
type Store interface {
	Insert(ctx context.Context, t Token) error
	Get(ctx context.Context, id string) (Token, error)
	GetByValue(ctx context.Context, value string) (Token, error)
}

// Sessions is the slice of the session registry the manager needs.
type Sessions interface {
	Get(ctx context.Context, id string) (session.Session, error)
	AttachToken(ctx context.Context, sessionID, tokenID string) error
}

// Manager issues and validates tokens.
type Manager struct {
	store    Store
	sessions Sessions
	ttl      time.Duration
	now      func() time.Time
}

// NewManager creates a manager with the configured TTL.
func NewManager(store Store, sessions Sessions, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Manager{store: store, sessions: sessions, ttl: ttl, now: time.Now}
}

// Issue generates a fresh token for the session and persists it. When bind is
// true the session's current-token reference is repointed; the previous token
// stays valid until its own expiry.
func (m *Manager) Issue(ctx context.Context, sessionID string, bind bool) (Token, error) {
	if _, err := m.sessions.Get(ctx, sessionID); err != nil {
		return Token{}, err
	}
	now := m.now().UTC()
	value, err := codeValue(sessionID, now)
	if err != nil {
		return Token{}, err
	}
	t := Token{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Insert(ctx, t); err != nil {
		return Token{}, err
	}
	if bind {
		if err := m.sessions.AttachToken(ctx, sessionID, t.ID); err != nil {
			return Token{}, err
		}
	}
	return t, nil
}

// Validate resolves a scanned value to its owning session. Expiry is checked
// lazily here; there is no background sweep.
func (m *Manager) Validate(ctx context.Context, value string) (session.Session, error) {
	t, err := m.store.GetByValue(ctx, value)
	if err != nil {
		return session.Session{}, err
	}
	if m.now().UTC().After(t.ExpiresAt) {
		return session.Session{}, ErrExpired
	}
	s, err := m.sessions.Get(ctx, t.SessionID)
	if err != nil {
		return session.Session{}, err
	}
	if !s.Active {
		return session.Session{}, ErrSessionInactive
	}
	return s, nil
}

// CurrentFor returns the session's current token when it is still valid,
// otherwise issues a fresh bound one. Regenerate forces issuance.
func (m *Manager) CurrentFor(ctx context.Context, s session.Session, regenerate bool) (Token, error) {
	if !regenerate && s.TokenID != "" {
		t, err := m.store.Get(ctx, s.TokenID)
		if err == nil && m.now().UTC().Before(t.ExpiresAt) {
			return t, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return Token{}, err
		}
	}
	return m.Issue(ctx, s.ID, true)
}

// codeValue builds an unguessable value in the sessionID:timestamp:random
// shape scanners already understand. 32 bytes of entropy make reuse across the
// system's lifetime infeasible.
func codeValue(sessionID string, now time.Time) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d:%s", sessionID, now.Unix(), base64.RawURLEncoding.EncodeToString(buf)), nil
}
