package session

import (
	"context"
	"database/sql"
	"errors"
)

// Repo persists sessions in Postgres.
type Repo struct {
	db *sql.DB
}

// NewRepo creates a repo.
func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Insert writes a new session.
func (r *Repo) Insert(ctx context.Context, s Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, title, description, start_time, end_time, created_by, token_id, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,$9)
	`, s.ID, s.Title, s.Description, s.StartTime, s.EndTime, s.CreatedBy, s.TokenID, s.Active, s.CreatedAt)
	return err
}

// Get returns a session by id.
func (r *Repo) Get(ctx context.Context, id string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, title, description, start_time, end_time, created_by, COALESCE(token_id, ''), active, created_at
		FROM sessions WHERE id = $1
	`, id)
	var s Session
	if err := row.Scan(&s.ID, &s.Title, &s.Description, &s.StartTime, &s.EndTime, &s.CreatedBy, &s.TokenID, &s.Active, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	return s, nil
}

// SetActive updates the activity flag.
func (r *Repo) SetActive(ctx context.Context, id string, active bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET active = $2 WHERE id = $1`, id, active)
	return err
}

// SetTokenID repoints the current-token reference.
func (r *Repo) SetTokenID(ctx context.Context, id, tokenID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET token_id = $2 WHERE id = $1`, id, tokenID)
	return err
}

// List returns sessions newest-first.
func (r *Repo) List(ctx context.Context, activeOnly bool, skip, limit int) ([]Session, error) {
	query := `
		SELECT id, title, description, start_time, end_time, created_by, COALESCE(token_id, ''), active, created_at
		FROM sessions`
	args := []any{}
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	args = append(args, limit, skip)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Title, &s.Description, &s.StartTime, &s.EndTime, &s.CreatedBy, &s.TokenID, &s.Active, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// CountActive counts active sessions.
func (r *Repo) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE active = TRUE`).Scan(&n)
	return n, err
}
