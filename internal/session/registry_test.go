package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestRegistry() *Registry {
	return NewRegistry(NewMemoryStore())
}

func validSpec(start time.Time) CreateSpec {
	return CreateSpec{
		Title:     "Morning Standup",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		CreatedBy: "instructor-1",
	}
}

func TestCreateRejectsInvalidRange(t *testing.T) {
	r := newTestRegistry()
	start := time.Now()

	spec := validSpec(start)
	spec.EndTime = start
	if _, err := r.Create(context.Background(), spec); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("end == start: got %v, want ErrInvalidRange", err)
	}

	spec.EndTime = start.Add(-time.Minute)
	if _, err := r.Create(context.Background(), spec); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("end before start: got %v, want ErrInvalidRange", err)
	}
}

func TestCreateStartsActive(t *testing.T) {
	r := newTestRegistry()
	s, err := r.Create(context.Background(), validSpec(time.Now()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !s.Active {
		t.Fatal("new session should be active")
	}
	active, err := r.IsActive(context.Background(), s.ID)
	if err != nil || !active {
		t.Fatalf("IsActive = %v, %v; want true, nil", active, err)
	}
}

func TestDeactivateIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	s, err := r.Create(context.Background(), validSpec(time.Now()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := r.Deactivate(context.Background(), s.ID); err != nil {
			t.Fatalf("deactivate #%d: %v", i+1, err)
		}
	}
	active, err := r.IsActive(context.Background(), s.ID)
	if err != nil || active {
		t.Fatalf("IsActive = %v, %v; want false, nil", active, err)
	}
}

func TestDeactivateUnknownSession(t *testing.T) {
	r := newTestRegistry()
	if err := r.Deactivate(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestAttachTokenRepoints(t *testing.T) {
	r := newTestRegistry()
	s, err := r.Create(context.Background(), validSpec(time.Now()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := r.AttachToken(context.Background(), s.ID, "tok-1"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := r.AttachToken(context.Background(), s.ID, "tok-2"); err != nil {
		t.Fatalf("reattach: %v", err)
	}
	got, err := r.Get(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TokenID != "tok-2" {
		t.Fatalf("TokenID = %q, want tok-2", got.TokenID)
	}
}

func TestCountActive(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	var last Session
	for i := 0; i < 3; i++ {
		s, err := r.Create(ctx, validSpec(time.Now().Add(time.Duration(i)*time.Hour)))
		if err != nil {
			t.Fatalf("create #%d: %v", i, err)
		}
		last = s
	}
	if err := r.Deactivate(ctx, last.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	n, err := r.CountActive(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("CountActive = %d, want 2", n)
	}
}
