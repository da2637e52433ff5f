package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestInMemoryRoundTrip(t *testing.T) {
	q := NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	body, _ := json.Marshal(map[string]string{"subject_id": "u1"})
	if err := q.Publish(ctx, Message{Kind: "attendance", SessionID: "s1", Body: body}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	select {
	case msg := <-msgs:
		if msg.Kind != "attendance" || msg.SessionID != "s1" {
			t.Fatalf("message = %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestInMemoryPreservesOrder(t *testing.T) {
	q := NewInMemory(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Publish(ctx, Message{Kind: "attendance", SessionID: id}); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}

	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	for _, want := range []string{"a", "b", "c"} {
		select {
		case msg := <-msgs:
			if msg.SessionID != want {
				t.Fatalf("got %s, want %s", msg.SessionID, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing message %s", want)
		}
	}
}

func TestPublishHonorsCancellation(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())

	if err := q.Publish(ctx, Message{Kind: "attendance"}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	cancel()
	// Queue is full and the context is dead; publish must not block forever.
	if err := q.Publish(ctx, Message{Kind: "attendance"}); err == nil {
		t.Fatal("expected context error on full queue")
	}
}
