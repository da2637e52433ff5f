package token

import (
	"context"
	"database/sql"
	"errors"
)

// Repo persists tokens in Postgres.
type Repo struct {
	db *sql.DB
}

// NewRepo creates a repo.
func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Insert writes a new token.
func (r *Repo) Insert(ctx context.Context, t Token) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tokens (id, session_id, code_value, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5)
	`, t.ID, t.SessionID, t.Value, t.CreatedAt, t.ExpiresAt)
	return err
}

// Get returns a token by id.
func (r *Repo) Get(ctx context.Context, id string) (Token, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, session_id, code_value, created_at, expires_at
		FROM tokens WHERE id = $1
	`, id))
}

// GetByValue returns a token by its scannable value.
func (r *Repo) GetByValue(ctx context.Context, value string) (Token, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, session_id, code_value, created_at, expires_at
		FROM tokens WHERE code_value = $1
	`, value))
}

func (r *Repo) scanOne(row *sql.Row) (Token, error) {
	var t Token
	if err := row.Scan(&t.ID, &t.SessionID, &t.Value, &t.CreatedAt, &t.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Token{}, ErrNotFound
		}
		return Token{}, err
	}
	return t, nil
}
