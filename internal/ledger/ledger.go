package ledger

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/session"
)

// Status of an attendance record.
type Status string

const (
	StatusOnTime    Status = "on_time"
	StatusLate      Status = "late"
	StatusCorrected Status = "corrected"
)

// Method by which attendance was recorded.
type Method string

const (
	MethodScanned        Method = "scanned"
	MethodManualOverride Method = "manual_override"
)

// RequestStatus of a correction request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

var (
	// ErrAlreadyClaimed means an attendance record already exists for the
	// (session, subject) pair. A unique-violation at write time maps here too,
	// so the loser of a claim race sees this and not a generic write failure.
	ErrAlreadyClaimed = errors.New("attendance already recorded for this session")
	// ErrDuplicateRequest means a correction request already exists for the pair.
	ErrDuplicateRequest = errors.New("correction request already submitted for this session")
	// ErrAlreadyResolved means the request left the pending state earlier.
	ErrAlreadyResolved = errors.New("correction request already resolved")
	// ErrNotFound means no correction request exists with the given id.
	ErrNotFound = errors.New("correction request not found")
	// ErrInvalidReason means the justification is too short or too long.
	ErrInvalidReason = errors.New("reason must be between 10 and 500 characters")
	// ErrInvalidDecision means the resolution is neither approved nor rejected.
	ErrInvalidDecision = errors.New("decision must be approved or rejected")
)

// Record is one subject's presence at one session. Immutable once written;
// the correction path only ever creates records that did not exist.
type Record struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	SubjectID string    `json:"subject_id"`
	Status    Status    `json:"status"`
	Method    Method    `json:"method"`
	Timestamp time.Time `json:"timestamp"`
}

// CorrectionRequest is a retroactive petition to mark attendance.
type CorrectionRequest struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	SubjectID string        `json:"subject_id"`
	Reason    string        `json:"reason"`
	Status    RequestStatus `json:"status"`
	Response  string        `json:"response,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at,omitempty"`
}

// Stats summarizes one subject's attendance across active sessions.
type Stats struct {
	TotalSessions  int     `json:"total_sessions"`
	AttendedOnTime int     `json:"attended_on_time"`
	AttendedLate   int     `json:"attended_late"`
	Missed         int     `json:"missed"`
	Percentage     float64 `json:"percentage"`
}

// LiveStats is the point-in-time snapshot behind the polling fallback. It is
// computed from the ledger and the registry alone, never from the hub.
type LiveStats struct {
	Session       session.Session `json:"session"`
	TotalSubjects int             `json:"total_subjects"`
	Present       int             `json:"present"`
	Late          int             `json:"late"`
	Absent        int             `json:"absent"`
	Percentage    float64         `json:"percentage"`
	Recent        []Record        `json:"recent_scans"`
}

// RequestFilter narrows correction request listings.
type RequestFilter struct {
	SubjectID string
	Status    RequestStatus
	Skip      int
	Limit     int
}

// Store persists attendance records and correction requests. InsertRecord and
// InsertRequest report composite-key conflicts as ErrAlreadyClaimed and
// ErrDuplicateRequest respectively.
type Store interface {
	InsertRecord(ctx context.Context, rec Record) error
	GetRecord(ctx context.Context, sessionID, subjectID string) (Record, bool, error)
	SessionRecords(ctx context.Context, sessionID string) ([]Record, error)
	SubjectRecords(ctx context.Context, subjectID string, skip, limit int) ([]Record, error)
	RecentRecords(ctx context.Context, sessionID string, limit int) ([]Record, error)
	InsertRequest(ctx context.Context, req CorrectionRequest) error
	GetRequest(ctx context.Context, id string) (CorrectionRequest, error)
	UpdateRequest(ctx context.Context, req CorrectionRequest) error
	ListRequests(ctx context.Context, filter RequestFilter) ([]CorrectionRequest, error)
}

// Sessions is the slice of the session registry the ledger reads.
type Sessions interface {
	Get(ctx context.Context, id string) (session.Session, error)
	CountActive(ctx context.Context) (int, error)
}

// Roster supplies the cohort size for live snapshots. The identity store
// behind it is an external collaborator.
type Roster interface {
	CountSubjects(ctx context.Context) (int, error)
}

// Ledger records presence claims and reconciles corrections.
type Ledger struct {
	store    Store
	sessions Sessions
	roster   Roster
	now      func() time.Time
}

// New creates a ledger.
func New(store Store, sessions Sessions, roster Roster) *Ledger {
	return &Ledger{store: store, sessions: sessions, roster: roster, now: time.Now}
}

// Claim records presence for a subject at a session. Arrival at or before the
// scheduled start is on-time; anything after is late. A second claim for the
// same pair fails with ErrAlreadyClaimed.
func (l *Ledger) Claim(ctx context.Context, sessionID, subjectID string, observedAt time.Time) (Record, error) {
	s, err := l.sessions.Get(ctx, sessionID)
	if err != nil {
		return Record{}, err
	}
	status := StatusOnTime
	if observedAt.After(s.StartTime) {
		status = StatusLate
	}
	rec := Record{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		SubjectID: subjectID,
		Status:    status,
		Method:    MethodScanned,
		Timestamp: observedAt.UTC(),
	}
	if err := l.store.InsertRecord(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// RecordOverride writes the manual-override record produced by an approved
// correction. A correction is always full credit, never late.
func (l *Ledger) RecordOverride(ctx context.Context, sessionID, subjectID string) (Record, error) {
	if _, err := l.sessions.Get(ctx, sessionID); err != nil {
		return Record{}, err
	}
	rec := Record{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		SubjectID: subjectID,
		Status:    StatusOnTime,
		Method:    MethodManualOverride,
		Timestamp: l.now().UTC(),
	}
	if err := l.store.InsertRecord(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// StatsFor summarizes a subject's attendance. Only currently active sessions
// count toward the denominator.
func (l *Ledger) StatsFor(ctx context.Context, subjectID string) (Stats, error) {
	total, err := l.sessions.CountActive(ctx)
	if err != nil {
		return Stats{}, err
	}
	recs, err := l.store.SubjectRecords(ctx, subjectID, 0, 0)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{TotalSessions: total}
	for _, rec := range recs {
		switch rec.Status {
		case StatusLate:
			stats.AttendedLate++
		default:
			stats.AttendedOnTime++
		}
	}
	attended := stats.AttendedOnTime + stats.AttendedLate
	if missed := total - attended; missed > 0 {
		stats.Missed = missed
	}
	if total > 0 {
		stats.Percentage = round2(float64(attended) / float64(total) * 100)
	}
	return stats, nil
}

// RequestCorrection files a pending correction request for a missed session.
func (l *Ledger) RequestCorrection(ctx context.Context, sessionID, subjectID, reason string) (CorrectionRequest, error) {
	if len(reason) < 10 || len(reason) > 500 {
		return CorrectionRequest{}, ErrInvalidReason
	}
	if _, err := l.sessions.Get(ctx, sessionID); err != nil {
		return CorrectionRequest{}, err
	}
	if _, exists, err := l.store.GetRecord(ctx, sessionID, subjectID); err != nil {
		return CorrectionRequest{}, err
	} else if exists {
		return CorrectionRequest{}, ErrAlreadyClaimed
	}
	req := CorrectionRequest{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		SubjectID: subjectID,
		Reason:    reason,
		Status:    RequestPending,
		CreatedAt: l.now().UTC(),
	}
	if err := l.store.InsertRequest(ctx, req); err != nil {
		return CorrectionRequest{}, err
	}
	return req, nil
}

// Resolve approves or rejects a pending request. On approval the override
// record is returned; it is nil when a racing scan had already recorded the
// pair, in which case the request is still marked approved. Callers must
// tolerate that one divergence window.
func (l *Ledger) Resolve(ctx context.Context, requestID string, decision RequestStatus, response string) (CorrectionRequest, *Record, error) {
	if decision != RequestApproved && decision != RequestRejected {
		return CorrectionRequest{}, nil, ErrInvalidDecision
	}
	req, err := l.store.GetRequest(ctx, requestID)
	if err != nil {
		return CorrectionRequest{}, nil, err
	}
	if req.Status != RequestPending {
		return CorrectionRequest{}, nil, ErrAlreadyResolved
	}
	req.Status = decision
	req.Response = response
	req.UpdatedAt = l.now().UTC()
	if err := l.store.UpdateRequest(ctx, req); err != nil {
		return CorrectionRequest{}, nil, err
	}
	if decision != RequestApproved {
		return req, nil, nil
	}
	rec, err := l.RecordOverride(ctx, req.SessionID, req.SubjectID)
	if err != nil {
		if errors.Is(err, ErrAlreadyClaimed) {
			return req, nil, nil
		}
		return CorrectionRequest{}, nil, err
	}
	return req, &rec, nil
}

// SessionAttendance lists every record for a session.
func (l *Ledger) SessionAttendance(ctx context.Context, sessionID string) ([]Record, error) {
	if _, err := l.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return l.store.SessionRecords(ctx, sessionID)
}

// SubjectHistory lists a subject's records newest-first.
func (l *Ledger) SubjectHistory(ctx context.Context, subjectID string, skip, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	if skip < 0 {
		skip = 0
	}
	return l.store.SubjectRecords(ctx, subjectID, skip, limit)
}

// ListCorrections lists correction requests with optional filters.
func (l *Ledger) ListCorrections(ctx context.Context, filter RequestFilter) ([]CorrectionRequest, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Skip < 0 {
		filter.Skip = 0
	}
	return l.store.ListRequests(ctx, filter)
}

// LiveStats computes the polling snapshot for a session.
func (l *Ledger) LiveStats(ctx context.Context, sessionID string, recentN int) (LiveStats, error) {
	s, err := l.sessions.Get(ctx, sessionID)
	if err != nil {
		return LiveStats{}, err
	}
	totalSubjects, err := l.roster.CountSubjects(ctx)
	if err != nil {
		return LiveStats{}, err
	}
	recs, err := l.store.SessionRecords(ctx, sessionID)
	if err != nil {
		return LiveStats{}, err
	}
	stats := LiveStats{Session: s, TotalSubjects: totalSubjects}
	for _, rec := range recs {
		stats.Present++
		if rec.Status == StatusLate {
			stats.Late++
		}
	}
	if absent := totalSubjects - stats.Present; absent > 0 {
		stats.Absent = absent
	}
	if totalSubjects > 0 {
		stats.Percentage = round2(float64(stats.Present) / float64(totalSubjects) * 100)
	}
	if recentN <= 0 {
		recentN = 10
	}
	stats.Recent, err = l.store.RecentRecords(ctx, sessionID, recentN)
	if err != nil {
		return LiveStats{}, err
	}
	return stats, nil
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
