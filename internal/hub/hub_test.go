package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rollcall/internal/ledger"
	"rollcall/internal/queue"
)

type fakeConn struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	ev, ok := v.(Event)
	if !ok {
		return errors.New("unexpected payload type")
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) received() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func testEvent(sessionID, subjectID string) Event {
	return AttendanceEvent(ledger.Record{
		SessionID: sessionID,
		SubjectID: subjectID,
		Status:    ledger.StatusOnTime,
		Method:    ledger.MethodScanned,
		Timestamp: time.Now().UTC(),
	})
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	h := New()
	a, b := &fakeConn{}, &fakeConn{}
	h.Subscribe(a, "s1")
	h.Subscribe(b, "s1")

	h.Publish("s1", testEvent("s1", "u1"))

	for name, conn := range map[string]*fakeConn{"a": a, "b": b} {
		got := conn.received()
		if len(got) != 1 {
			t.Fatalf("conn %s received %d events, want 1", name, len(got))
		}
		if got[0].Kind != "attendance" || got[0].Record.SubjectID != "u1" {
			t.Fatalf("conn %s event = %+v", name, got[0])
		}
	}
}

func TestFailedPushPrunesOnlyThatSubscriber(t *testing.T) {
	h := New()
	good1 := &fakeConn{}
	bad := &fakeConn{err: errors.New("broken pipe")}
	good2 := &fakeConn{}
	h.Subscribe(good1, "s1")
	h.Subscribe(bad, "s1")
	h.Subscribe(good2, "s1")

	h.Publish("s1", testEvent("s1", "u1"))

	if len(good1.received()) != 1 || len(good2.received()) != 1 {
		t.Fatal("healthy subscribers must still receive the event")
	}
	if n := h.SubscriberCount("s1"); n != 2 {
		t.Fatalf("subscriber count = %d, want 2 after prune", n)
	}

	// The pruned connection sees nothing further.
	h.Publish("s1", testEvent("s1", "u2"))
	if len(good1.received()) != 2 {
		t.Fatal("remaining subscriber missed the second event")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	h := New()
	conn := &fakeConn{}

	// Never subscribed: no-op.
	h.Unsubscribe(conn, "s1")

	h.Subscribe(conn, "s1")
	h.Unsubscribe(conn, "s1")
	h.Unsubscribe(conn, "s1")

	if n := h.SubscriberCount("s1"); n != 0 {
		t.Fatalf("subscriber count = %d, want 0", n)
	}
}

func TestEmptySetIsPruned(t *testing.T) {
	h := New()
	conn := &fakeConn{}
	h.Subscribe(conn, "s1")
	h.Unsubscribe(conn, "s1")

	h.mu.RLock()
	_, ok := h.rooms["s1"]
	h.mu.RUnlock()
	if ok {
		t.Fatal("empty session entry should be pruned")
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	h := New()
	a, b := &fakeConn{}, &fakeConn{}
	h.Subscribe(a, "s1")
	h.Subscribe(b, "s2")

	h.Publish("s1", testEvent("s1", "u1"))

	if len(a.received()) != 1 || len(b.received()) != 0 {
		t.Fatalf("a=%d b=%d, want 1 and 0", len(a.received()), len(b.received()))
	}
}

func TestPublishOrderPreservedPerSession(t *testing.T) {
	h := New()
	conn := &fakeConn{}
	h.Subscribe(conn, "s1")

	for _, subject := range []string{"u1", "u2", "u3"} {
		h.Publish("s1", testEvent("s1", subject))
	}

	got := conn.received()
	if len(got) != 3 {
		t.Fatalf("received %d events, want 3", len(got))
	}
	for i, want := range []string{"u1", "u2", "u3"} {
		if got[i].Record.SubjectID != want {
			t.Fatalf("event %d = %s, want %s", i, got[i].Record.SubjectID, want)
		}
	}
}

func TestDispatcherDrainsQueueIntoHub(t *testing.T) {
	h := New()
	conn := &fakeConn{}
	h.Subscribe(conn, "s1")

	q := queue.NewInMemory(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = RunDispatcher(ctx, q, h)
	}()

	rec := ledger.Record{
		SessionID: "s1",
		SubjectID: "u1",
		Status:    ledger.StatusLate,
		Method:    ledger.MethodScanned,
		Timestamp: time.Now().UTC(),
	}
	if err := Enqueue(ctx, q, rec); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := conn.received(); len(got) == 1 {
			if got[0].SessionID != "s1" || got[0].Record.Status != "late" {
				t.Fatalf("event = %+v", got[0])
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("dispatcher never delivered the event")
}
