package hub

import (
	"log"
	"sync"
	"time"

	"rollcall/internal/ledger"
	"rollcall/internal/metrics"
)

// Conn is the minimal write surface of a subscriber connection. Production
// connections are websockets; tests use fakes.
type Conn interface {
	WriteJSON(v any) error
}

// RecordPayload is the record portion of a broadcast event. The shape is the
// same whether the write came from a live scan or a correction approval.
type RecordPayload struct {
	SubjectID string    `json:"subject_id"`
	Status    string    `json:"status"`
	Method    string    `json:"method"`
	Timestamp time.Time `json:"timestamp"`
}

// Event is the envelope pushed to subscribers.
type Event struct {
	Kind      string        `json:"event"`
	SessionID string        `json:"session_id"`
	Record    RecordPayload `json:"record"`
}

// AttendanceEvent builds the envelope for a ledger record.
func AttendanceEvent(rec ledger.Record) Event {
	return Event{
		Kind:      "attendance",
		SessionID: rec.SessionID,
		Record: RecordPayload{
			SubjectID: rec.SubjectID,
			Status:    string(rec.Status),
			Method:    string(rec.Method),
			Timestamp: rec.Timestamp,
		},
	}
}

type room struct {
	mu    sync.Mutex
	conns map[Conn]struct{}
}

// Hub maintains per-session subscriber sets and pushes events to them.
// Delivery is best-effort: a failed push prunes that one connection and never
// blocks the others. The hub is never the source of truth; the polling
// snapshot stays derivable from the ledger alone.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{rooms: make(map[string]*room)}
}

// Subscribe registers a connection under the session's subscriber set.
func (h *Hub) Subscribe(conn Conn, sessionID string) {
	h.mu.Lock()
	r, ok := h.rooms[sessionID]
	if !ok {
		r = &room{conns: make(map[Conn]struct{})}
		h.rooms[sessionID] = r
	}
	r.mu.Lock()
	_, present := r.conns[conn]
	r.conns[conn] = struct{}{}
	r.mu.Unlock()
	h.mu.Unlock()
	if !present {
		metrics.Subscribers.Inc()
	}
}

// Unsubscribe removes a connection. Removing one that was never subscribed,
// or twice in a row, is a no-op; a disconnect signal and a failed push both
// funnel here. Empty sets are pruned to bound memory.
func (h *Hub) Unsubscribe(conn Conn, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[sessionID]
	if !ok {
		return
	}
	r.mu.Lock()
	_, present := r.conns[conn]
	delete(r.conns, conn)
	empty := len(r.conns) == 0
	r.mu.Unlock()
	if present {
		metrics.Subscribers.Dec()
	}
	if empty {
		delete(h.rooms, sessionID)
	}
}

// Publish sends an event to every subscriber of the session. Sends are
// fire-and-forget per connection: a failure prunes that connection and
// delivery continues to the rest.
func (h *Hub) Publish(sessionID string, ev Event) {
	h.mu.RLock()
	r, ok := h.rooms[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	// Copy under the room lock so a send can't race a membership change.
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.conns))
	for conn := range r.conns {
		conns = append(conns, conn)
	}
	r.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(ev); err != nil {
			log.Printf("hub: push failed for session %s, pruning subscriber: %v", sessionID, err)
			metrics.BroadcastFailures.Inc()
			h.Unsubscribe(conn, sessionID)
			continue
		}
		metrics.BroadcastsTotal.Inc()
	}
}

// SubscriberCount reports the size of a session's subscriber set.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	r, ok := h.rooms[sessionID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
