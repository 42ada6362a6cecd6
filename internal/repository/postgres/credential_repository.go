package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"scribe-console/internal/domain"
)

// Schema is the table backing CredentialRepository.
const Schema = `
	CREATE TABLE IF NOT EXISTS console_credentials (
		key VARCHAR(100) PRIMARY KEY,
		token TEXT NOT NULL,
		expires_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP NOT NULL
	)
`

// CredentialRepository stores the console session in one row keyed by key.
// Token and expiry live in the same row so they are written and removed
// together.
type CredentialRepository struct {
	db        *sql.DB
	key       string
	loadStmt  *sql.Stmt
	saveStmt  *sql.Stmt
	clearStmt *sql.Stmt
}

// EnsureSchema creates the credentials table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create credentials table: %w", err)
	}
	return nil
}

// NewCredentialRepository creates a new CredentialRepository with prepared statements.
// Returns an error if statement preparation fails.
func NewCredentialRepository(db *sql.DB, key string) (*CredentialRepository, error) {
	repo := &CredentialRepository{db: db, key: key}

	var err error
	repo.loadStmt, err = db.Prepare(`
		SELECT token, expires_at
		FROM console_credentials
		WHERE key = $1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare load statement: %w", err)
	}

	repo.saveStmt, err = db.Prepare(`
		INSERT INTO console_credentials (key, token, expires_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare save statement: %w", err)
	}

	repo.clearStmt, err = db.Prepare(`DELETE FROM console_credentials WHERE key = $1`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare clear statement: %w", err)
	}

	return repo, nil
}

func (r *CredentialRepository) Load(ctx context.Context) (domain.Session, error) {
	var (
		session   domain.Session
		expiresAt sql.NullTime
	)
	err := r.loadStmt.QueryRowContext(ctx, r.key).Scan(&session.Token, &expiresAt)
	if err == sql.ErrNoRows {
		return domain.Session{}, domain.ErrCredentialNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to load credential: %w", err)
	}
	if expiresAt.Valid {
		session.ExpiresAt = expiresAt.Time
	}
	return session, nil
}

func (r *CredentialRepository) Save(ctx context.Context, session domain.Session) error {
	var expiresAt sql.NullTime
	if !session.ExpiresAt.IsZero() {
		expiresAt = sql.NullTime{Time: session.ExpiresAt, Valid: true}
	}

	if _, err := r.saveStmt.ExecContext(ctx, r.key, session.Token, expiresAt, time.Now()); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

func (r *CredentialRepository) Clear(ctx context.Context) error {
	if _, err := r.clearStmt.ExecContext(ctx, r.key); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}

// Close releases the prepared statements.
func (r *CredentialRepository) Close() error {
	for _, stmt := range []*sql.Stmt{r.loadStmt, r.saveStmt, r.clearStmt} {
		if err := stmt.Close(); err != nil {
			return err
		}
	}
	return nil
}
