package sessionkit

import (
	"context"
	"io"
	"time"

	"github.com/notablehq/sessionkit/internal/audit"
	"github.com/notablehq/sessionkit/refresh"
)

// UserRecord is the engine's view of an application user. The engine never
// stores users; it reads them through a UserProvider.
type UserRecord struct {
	UserID        string
	Email         string
	PasswordHash  string
	EmailVerified bool
}

// UserProvider supplies user records from the application's own storage.
// GetUserByIdentifier resolves whatever the login form collects (email,
// username). Both methods must return an error for unknown users.
type UserProvider interface {
	GetUserByIdentifier(ctx context.Context, identifier string) (*UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (*UserRecord, error)
}

// PasswordHasher verifies login passwords against stored hashes. The default
// implementation is password.NewArgon2; applications with an existing hash
// format plug in their own.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(encodedHash, password string) (bool, error)
}

// Mailer delivers security notifications (refresh token reuse alerts).
// Sends happen off the request path; implementations may block.
type Mailer interface {
	SendSecurityAlert(ctx context.Context, to, subject, body string) error
}

// TokenPair is the result of a successful login or refresh. The access token
// goes in the response body, the refresh token in an HttpOnly cookie.
type TokenPair struct {
	UserID           string
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AuthResult is the outcome of validating an access token. ExpiringSoon lets
// middleware hint clients to refresh before the token lapses.
type AuthResult struct {
	UserID       string
	ExpiresAt    time.Time
	ExpiringSoon bool
}

// RefreshTokenRecord is one live refresh token.
type RefreshTokenRecord = refresh.Record

// RefreshTokenStore is the pluggable persistence interface for refresh
// tokens. See redisstore, pgstore, and boltstore for implementations.
type RefreshTokenStore = refresh.Store

// AuditEvent is one security-relevant occurrence emitted by the engine.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's async dispatcher.
type AuditSink = audit.Sink

// Audit event types, as they appear in AuditEvent.EventType.
const (
	AuditLoginSuccess    = audit.EventLoginSuccess
	AuditLoginFailure    = audit.EventLoginFailure
	AuditRefreshSuccess  = audit.EventRefreshSuccess
	AuditRefreshRejected = audit.EventRefreshRejected
	AuditReuseDetected   = audit.EventReuseDetected
	AuditOwnerMismatch   = audit.EventOwnerMismatch
	AuditLogout          = audit.EventLogout
	AuditLogoutAll       = audit.EventLogoutAll
)

// NewAuditChannelSink returns a sink that hands events to a consumer over a
// buffered channel.
func NewAuditChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewAuditJSONSink returns a sink that writes one JSON object per line.
func NewAuditJSONSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}
