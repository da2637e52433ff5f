package ledger

import (
	"context"
	"database/sql"
)

// PgRoster counts enrolled subjects from the users table owned by the
// identity collaborator.
type PgRoster struct {
	db *sql.DB
}

// NewPgRoster creates a roster backed by Postgres.
func NewPgRoster(db *sql.DB) *PgRoster {
	return &PgRoster{db: db}
}

// CountSubjects counts trainee users.
func (r *PgRoster) CountSubjects(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = 'trainee'`).Scan(&n)
	return n, err
}

// FixedRoster reports a constant cohort size, for dev/testing.
type FixedRoster int

// CountSubjects returns the fixed size.
func (r FixedRoster) CountSubjects(context.Context) (int, error) {
	return int(r), nil
}
