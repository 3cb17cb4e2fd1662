package refresh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrNotFound reports that no record exists for the presented token value.
	// It is a logical outcome, never retried.
	ErrNotFound = errors.New("refresh token not found")
	// ErrUnavailable reports a transient backend failure. Callers may retry
	// a bounded number of times.
	ErrUnavailable = errors.New("refresh store unavailable")
)

// Record is a persisted refresh token. TokenValue is stored hashed by every
// store implementation; the plaintext exists only in the client cookie.
type Record struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	TokenValue string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Store is the capability interface for refresh token persistence. Any
// key-value or relational backend satisfying it works.
type Store interface {
	Create(ctx context.Context, rec Record) error
	FindByValue(ctx context.Context, tokenValue string) (*Record, error)
	// DeleteByValue reports whether a record was actually removed. Under two
	// concurrent deletes of the same value exactly one caller observes true.
	DeleteByValue(ctx context.Context, tokenValue string) (bool, error)
	DeleteAllByUser(ctx context.Context, userID string) error
}

// HashValue derives the storage key for a token value. Stores never index by
// the plaintext token.
func HashValue(tokenValue string) string {
	sum := sha256.Sum256([]byte(tokenValue))
	return hex.EncodeToString(sum[:])
}
