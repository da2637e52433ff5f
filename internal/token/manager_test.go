package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"rollcall/internal/session"
)

func testFixture(t *testing.T, ttl time.Duration) (*Manager, *session.Registry, session.Session) {
	t.Helper()
	registry := session.NewRegistry(session.NewMemoryStore())
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s, err := registry.Create(context.Background(), session.CreateSpec{
		Title:     "Workshop",
		StartTime: start,
		EndTime:   start.Add(2 * time.Hour),
		CreatedBy: "instructor-1",
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return NewManager(NewMemoryStore(), registry, ttl), registry, s
}

func TestIssueBindsCurrentToken(t *testing.T) {
	m, registry, s := testFixture(t, 15*time.Minute)
	ctx := context.Background()

	tok, err := m.Issue(ctx, s.ID, true)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := registry.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.TokenID != tok.ID {
		t.Fatalf("session TokenID = %q, want %q", got.TokenID, tok.ID)
	}
}

func TestIssueWithoutBinding(t *testing.T) {
	m, registry, s := testFixture(t, 15*time.Minute)
	ctx := context.Background()

	if _, err := m.Issue(ctx, s.ID, false); err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := registry.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.TokenID != "" {
		t.Fatalf("session TokenID = %q, want empty", got.TokenID)
	}
}

func TestIssueValuesNeverRepeat(t *testing.T) {
	m, _, s := testFixture(t, 15*time.Minute)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		tok, err := m.Issue(ctx, s.ID, false)
		if err != nil {
			t.Fatalf("issue #%d: %v", i, err)
		}
		if seen[tok.Value] {
			t.Fatalf("value repeated after %d issues", i)
		}
		seen[tok.Value] = true
	}
}

func TestValidateUnknownValue(t *testing.T) {
	m, _, _ := testFixture(t, 15*time.Minute)
	if _, err := m.Validate(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestValidateExpiryIsLazyAndPermanent(t *testing.T) {
	m, _, s := testFixture(t, 15*time.Minute)
	ctx := context.Background()

	// Token issued at 08:50 expires at 09:05.
	issuedAt := time.Date(2025, 3, 10, 8, 50, 0, 0, time.UTC)
	m.now = func() time.Time { return issuedAt }
	tok, err := m.Issue(ctx, s.ID, true)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if want := issuedAt.Add(15 * time.Minute); !tok.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %s, want %s", tok.ExpiresAt, want)
	}

	// Still fine at 08:58.
	m.now = func() time.Time { return issuedAt.Add(8 * time.Minute) }
	if _, err := m.Validate(ctx, tok.Value); err != nil {
		t.Fatalf("validate before expiry: %v", err)
	}

	// At 09:10 the session is active but the token is dead, and stays dead.
	m.now = func() time.Time { return issuedAt.Add(20 * time.Minute) }
	for i := 0; i < 3; i++ {
		if _, err := m.Validate(ctx, tok.Value); !errors.Is(err, ErrExpired) {
			t.Fatalf("validate after expiry #%d: got %v, want ErrExpired", i+1, err)
		}
	}

	// Expired tokens stay in storage as an audit trail.
	if _, err := m.store.GetByValue(ctx, tok.Value); err != nil {
		t.Fatalf("expired token removed from store: %v", err)
	}
}

func TestValidateInactiveSession(t *testing.T) {
	m, registry, s := testFixture(t, 15*time.Minute)
	ctx := context.Background()

	tok, err := m.Issue(ctx, s.ID, true)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := registry.Deactivate(ctx, s.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := m.Validate(ctx, tok.Value); !errors.Is(err, ErrSessionInactive) {
		t.Fatalf("got %v, want ErrSessionInactive", err)
	}
}

func TestRegenerationOrphansButDoesNotRevoke(t *testing.T) {
	m, registry, s := testFixture(t, 15*time.Minute)
	ctx := context.Background()

	old, err := m.Issue(ctx, s.ID, true)
	if err != nil {
		t.Fatalf("issue old: %v", err)
	}
	fresh, err := m.Issue(ctx, s.ID, true)
	if err != nil {
		t.Fatalf("issue fresh: %v", err)
	}
	got, err := registry.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.TokenID != fresh.ID {
		t.Fatalf("session TokenID = %q, want %q", got.TokenID, fresh.ID)
	}
	// The orphaned token still validates until its own expiry.
	if _, err := m.Validate(ctx, old.Value); err != nil {
		t.Fatalf("orphaned token rejected: %v", err)
	}
}

func TestCurrentForReusesValidToken(t *testing.T) {
	m, registry, s := testFixture(t, 15*time.Minute)
	ctx := context.Background()

	tok, err := m.Issue(ctx, s.ID, true)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	s, err = registry.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}

	same, err := m.CurrentFor(ctx, s, false)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if same.ID != tok.ID {
		t.Fatalf("got token %q, want existing %q", same.ID, tok.ID)
	}

	fresh, err := m.CurrentFor(ctx, s, true)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if fresh.ID == tok.ID {
		t.Fatal("regenerate returned the old token")
	}
}

func TestCurrentForReplacesExpiredToken(t *testing.T) {
	m, registry, s := testFixture(t, 15*time.Minute)
	ctx := context.Background()

	issuedAt := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return issuedAt }
	old, err := m.Issue(ctx, s.ID, true)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	s, err = registry.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}

	m.now = func() time.Time { return issuedAt.Add(time.Hour) }
	fresh, err := m.CurrentFor(ctx, s, false)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if fresh.ID == old.ID {
		t.Fatal("expired token was reused")
	}
}
