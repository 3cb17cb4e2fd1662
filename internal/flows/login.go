package flows

import (
	"context"
	"time"

	"github.com/notablehq/sessionkit/jwt"
	"github.com/notablehq/sessionkit/refresh"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	// LoginFailureUserNotFound and LoginFailureBadPassword both surface as
	// invalid credentials to the client; they are logged differently.
	LoginFailureUserNotFound
	LoginFailureBadPassword
	LoginFailureUnverified
	LoginFailureStore
	LoginFailureIssue
)

// LoginUserRecord is the flow-local user model.
type LoginUserRecord struct {
	UserID        string
	PasswordHash  string
	EmailVerified bool
}

// LoginResult carries the issued token pair or failure metadata.
type LoginResult struct {
	Failure          LoginFailureKind
	Err              error
	UserID           string
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	GetUserByIdentifier func(ctx context.Context, identifier string) (LoginUserRecord, error)
	ComparePassword     func(hash, password string) (bool, error)
	IssuePair           func(userID string) (jwt.Pair, error)
	Store               refresh.Store
	Retry               RetryPolicy
	RequireVerified     bool
	Now                 func() time.Time
}

// RunLogin verifies credentials and establishes a new session: one access
// token in the response body, one persisted refresh token for the cookie.
func RunLogin(ctx context.Context, identifier, password string, deps LoginDeps) LoginResult {
	user, err := deps.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		return LoginResult{Failure: LoginFailureUserNotFound, Err: err}
	}

	match, err := deps.ComparePassword(user.PasswordHash, password)
	if err != nil {
		return LoginResult{Failure: LoginFailureBadPassword, Err: err, UserID: user.UserID}
	}
	if !match {
		return LoginResult{Failure: LoginFailureBadPassword, UserID: user.UserID}
	}

	if deps.RequireVerified && !user.EmailVerified {
		return LoginResult{Failure: LoginFailureUnverified, UserID: user.UserID}
	}

	pair, err := deps.IssuePair(user.UserID)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, UserID: user.UserID}
	}

	rec := refresh.Record{
		ID:         pair.TokenID,
		UserID:     user.UserID,
		TokenValue: pair.RefreshToken,
		CreatedAt:  deps.Now(),
		ExpiresAt:  pair.RefreshExpiresAt,
	}
	err = withRetry(ctx, deps.Retry, func() error {
		return deps.Store.Create(ctx, rec)
	})
	if err != nil {
		return LoginResult{Failure: LoginFailureStore, Err: err, UserID: user.UserID}
	}

	return LoginResult{
		Failure:          LoginFailureNone,
		UserID:           user.UserID,
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}
