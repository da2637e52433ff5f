package hub

import (
	"context"
	"encoding/json"
	"log"

	"rollcall/internal/ledger"
	"rollcall/internal/queue"
)

const eventKindAttendance = "attendance"

// Enqueue publishes a ledger record onto the event queue for the dispatcher.
// Failures are the caller's to log and swallow; a fan-out problem must never
// fail the claim that triggered it.
func Enqueue(ctx context.Context, q queue.Queue, rec ledger.Record) error {
	body, err := json.Marshal(AttendanceEvent(rec))
	if err != nil {
		return err
	}
	return q.Publish(ctx, queue.Message{
		Kind:      eventKindAttendance,
		SessionID: rec.SessionID,
		Body:      body,
	})
}

// RunDispatcher drains the event queue into the hub until the context is
// canceled. A single dispatcher per process keeps per-session publish order.
func RunDispatcher(ctx context.Context, q queue.Queue, h *Hub) error {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range msgs {
		if msg.Kind != eventKindAttendance {
			continue
		}
		var ev Event
		if err := json.Unmarshal(msg.Body, &ev); err != nil {
			log.Printf("hub: dropping malformed event for session %s: %v", msg.SessionID, err)
			continue
		}
		h.Publish(msg.SessionID, ev)
	}
	return nil
}
