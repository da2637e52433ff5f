package ledger

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// Repo persists ledger data in Postgres. The composite unique indexes on
// (session_id, subject_id) are the authority on double writes: insert
// conflicts surface as the package's sentinel errors.
type Repo struct {
	db *sql.DB
}

// NewRepo creates a repo.
func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// InsertRecord writes a new attendance record.
func (r *Repo) InsertRecord(ctx context.Context, rec Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, session_id, subject_id, status, method, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, rec.ID, rec.SessionID, rec.SubjectID, rec.Status, rec.Method, rec.Timestamp)
	if isUniqueViolation(err) {
		return ErrAlreadyClaimed
	}
	return err
}

// GetRecord looks up the record for a (session, subject) pair.
func (r *Repo) GetRecord(ctx context.Context, sessionID, subjectID string) (Record, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, subject_id, status, method, recorded_at
		FROM attendance_records WHERE session_id = $1 AND subject_id = $2
	`, sessionID, subjectID)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.SubjectID, &rec.Status, &rec.Method, &rec.Timestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

// SessionRecords lists every record for a session.
func (r *Repo) SessionRecords(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, subject_id, status, method, recorded_at
		FROM attendance_records WHERE session_id = $1
		ORDER BY recorded_at DESC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

// SubjectRecords lists a subject's records newest-first. A non-positive limit
// means no limit.
func (r *Repo) SubjectRecords(ctx context.Context, subjectID string, skip, limit int) ([]Record, error) {
	query := `
		SELECT id, session_id, subject_id, status, method, recorded_at
		FROM attendance_records WHERE subject_id = $1
		ORDER BY recorded_at DESC`
	args := []any{subjectID}
	if limit > 0 {
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, limit, skip)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

// RecentRecords lists the latest records for a session.
func (r *Repo) RecentRecords(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, subject_id, status, method, recorded_at
		FROM attendance_records WHERE session_id = $1
		ORDER BY recorded_at DESC LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

// InsertRequest files a new correction request.
func (r *Repo) InsertRequest(ctx context.Context, req CorrectionRequest) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO correction_requests (id, session_id, subject_id, reason, status, response, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, req.ID, req.SessionID, req.SubjectID, req.Reason, req.Status, req.Response, req.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateRequest
	}
	return err
}

// GetRequest returns a correction request by id.
func (r *Repo) GetRequest(ctx context.Context, id string) (CorrectionRequest, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, subject_id, reason, status, COALESCE(response, ''), created_at, COALESCE(updated_at, 'epoch'::timestamptz)
		FROM correction_requests WHERE id = $1
	`, id)
	var req CorrectionRequest
	if err := row.Scan(&req.ID, &req.SessionID, &req.SubjectID, &req.Reason, &req.Status, &req.Response, &req.CreatedAt, &req.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CorrectionRequest{}, ErrNotFound
		}
		return CorrectionRequest{}, err
	}
	return req, nil
}

// UpdateRequest stores the resolution of a request.
func (r *Repo) UpdateRequest(ctx context.Context, req CorrectionRequest) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE correction_requests
		SET status = $2, response = NULLIF($3, ''), updated_at = $4
		WHERE id = $1
	`, req.ID, req.Status, req.Response, req.UpdatedAt)
	return err
}

// ListRequests lists correction requests newest-first with optional filters.
func (r *Repo) ListRequests(ctx context.Context, filter RequestFilter) ([]CorrectionRequest, error) {
	query := `
		SELECT id, session_id, subject_id, reason, status, COALESCE(response, ''), created_at, COALESCE(updated_at, 'epoch'::timestamptz)
		FROM correction_requests`
	args := []any{}
	clauses := []string{}
	if filter.SubjectID != "" {
		args = append(args, filter.SubjectID)
		clauses = append(clauses, "subject_id = $"+itoa(len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, "status = $"+itoa(len(args)))
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY created_at DESC LIMIT $" + itoa(len(args)+1) + " OFFSET $" + itoa(len(args)+2)
	args = append(args, filter.Limit, filter.Skip)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []CorrectionRequest
	for rows.Next() {
		var req CorrectionRequest
		if err := rows.Scan(&req.ID, &req.SessionID, &req.SubjectID, &req.Reason, &req.Status, &req.Response, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, req)
	}
	return res, rows.Err()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.SubjectID, &rec.Status, &rec.Method, &rec.Timestamp); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func itoa(i int) string { return strconv.Itoa(i) }
