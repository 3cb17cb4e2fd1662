// Package pgstore implements the refresh token store on PostgreSQL via
// database/sql. Single-row DELETEs give the rotation flow its exactly-one
// consumer guarantee through RowsAffected.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/notablehq/sessionkit/refresh"
)

// Store is a PostgreSQL-backed [refresh.Store].
type Store struct {
	db *sql.DB
}

// Open connects, configures the pool, and ensures the schema exists.
func Open(connectionString string) (*Store, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pgstore: ping: %v", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("pgstore: init schema: %v", err)
	}

	return store, nil
}

// NewWithDB wraps an existing connection pool without touching the schema.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS refresh_tokens (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		token_hash VARCHAR(64) NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user_id ON refresh_tokens(user_id);
	CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires_at ON refresh_tokens(expires_at);
	`

	_, err := s.db.Exec(query)
	return err
}

// Create inserts the record. The token value is stored hashed only.
func (s *Store) Create(ctx context.Context, rec refresh.Record) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.UserID, refresh.HashValue(rec.TokenValue), rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}

	return nil
}

// FindByValue looks up the literal token value; expired rows are treated as
// absent even before the sweeper removes them.
func (s *Store) FindByValue(ctx context.Context, tokenValue string) (*refresh.Record, error) {
	query := `
		SELECT id, user_id, created_at, expires_at
		FROM refresh_tokens
		WHERE token_hash = $1 AND expires_at > NOW()
	`

	rec := refresh.Record{TokenValue: tokenValue}
	err := s.db.QueryRowContext(ctx, query, refresh.HashValue(tokenValue)).
		Scan(&rec.ID, &rec.UserID, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, refresh.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}

	return &rec, nil
}

// DeleteByValue removes the row; RowsAffected is the atomic decision point
// between the two concurrent presenters of one token value.
func (s *Store) DeleteByValue(ctx context.Context, tokenValue string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE token_hash = $1`,
		refresh.HashValue(tokenValue))
	if err != nil {
		return false, fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}

	return affected > 0, nil
}

// DeleteAllByUser removes every token for the user.
func (s *Store) DeleteAllByUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}
	return nil
}

// Sweep deletes expired rows and returns how many were removed. Intended to
// run on a ticker; Redis handles this via TTLs, Postgres needs the sweep.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}

	return removed, nil
}
