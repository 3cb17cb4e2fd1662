package flows

import (
	"context"
	"errors"
	"time"

	"github.com/notablehq/sessionkit/jwt"
	"github.com/notablehq/sessionkit/refresh"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	// RefreshFailureMissing: no token presented at all.
	RefreshFailureMissing
	// RefreshFailureVerify: garbled token, wrong secret, or expired claim set.
	RefreshFailureVerify
	// RefreshFailureReuse: cryptographically valid but absent from the store —
	// the token was already consumed or never existed server-side.
	RefreshFailureReuse
	// RefreshFailureOwnerMismatch: stored record belongs to a different user
	// than the token claims.
	RefreshFailureOwnerMismatch
	// RefreshFailureUnverified: account has not completed email verification.
	RefreshFailureUnverified
	RefreshFailureStore
	RefreshFailureIssue
)

// RefreshResult carries either the rotated token pair or failure metadata.
type RefreshResult struct {
	Failure          RefreshFailureKind
	Err              error
	UserID           string
	VerifyKind       jwt.ResultKind
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	VerifyRefresh   func(string) jwt.Result
	IssuePair       func(userID string) (jwt.Pair, error)
	Store           refresh.Store
	Retry           RetryPolicy
	RequireVerified bool
	UserVerified    func(ctx context.Context, userID string) (bool, error)
	// OnReuse runs the compromise response side effects (alerting). The
	// delete-all remediation itself happens inside the flow.
	OnReuse func(userID string)
	Warn    func(string, ...any)
	Now     func() time.Time
}

// RunRefresh executes the rotation state machine: verify, look up the literal
// value, consume it exactly once, mint and persist a replacement.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if refreshToken == "" {
		return RefreshResult{Failure: RefreshFailureMissing, Err: errors.New("no refresh token presented")}
	}

	res := deps.VerifyRefresh(refreshToken)
	if !res.OK() {
		// Forged or expired token. When the claim set was still decodable,
		// evict everything the claimed user holds: a stolen-but-expired
		// token being retried is treated as compromise.
		claimedUser := ""
		if res.Claims != nil {
			claimedUser = res.Claims.UserID
		}
		if claimedUser != "" {
			deps.remediate(ctx, claimedUser)
		}
		return RefreshResult{
			Failure:    RefreshFailureVerify,
			Err:        res.Err,
			UserID:     claimedUser,
			VerifyKind: res.Kind,
		}
	}

	claimedUser := res.Claims.UserID

	rec, err := findByValue(ctx, deps, refreshToken)
	if err != nil {
		if errors.Is(err, refresh.ErrNotFound) {
			// The reuse/theft signal: cryptographically valid, already
			// consumed or never persisted. Force re-login on every device.
			deps.remediate(ctx, claimedUser)
			if deps.OnReuse != nil {
				deps.OnReuse(claimedUser)
			}
			return RefreshResult{Failure: RefreshFailureReuse, Err: err, UserID: claimedUser}
		}
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: claimedUser}
	}

	if rec.UserID != claimedUser {
		// ID confusion between the claim and the stored record. Reject
		// without mutating the other user's state.
		return RefreshResult{Failure: RefreshFailureOwnerMismatch, Err: errors.New("refresh token owner mismatch"), UserID: claimedUser}
	}

	deleted, err := deleteByValue(ctx, deps, refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: claimedUser}
	}
	if !deleted {
		// Lost a race against a concurrent presenter of the same value:
		// exactly one rotation wins, the other lands here.
		deps.remediate(ctx, claimedUser)
		if deps.OnReuse != nil {
			deps.OnReuse(claimedUser)
		}
		return RefreshResult{Failure: RefreshFailureReuse, Err: refresh.ErrNotFound, UserID: claimedUser}
	}

	if deps.RequireVerified && deps.UserVerified != nil {
		verified, err := deps.UserVerified(ctx, claimedUser)
		if err != nil {
			return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: claimedUser}
		}
		if !verified {
			// The old token is already consumed; not issuing a new one
			// simply forces a fresh login after verification.
			return RefreshResult{Failure: RefreshFailureUnverified, Err: errors.New("email not verified"), UserID: claimedUser}
		}
	}

	pair, err := deps.IssuePair(claimedUser)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, UserID: claimedUser}
	}

	newRec := refresh.Record{
		ID:         pair.TokenID,
		UserID:     claimedUser,
		TokenValue: pair.RefreshToken,
		CreatedAt:  deps.Now(),
		ExpiresAt:  pair.RefreshExpiresAt,
	}
	err = withRetry(ctx, deps.Retry, func() error {
		return deps.Store.Create(ctx, newRec)
	})
	if err != nil {
		// Delete-then-insert ordering: failing here forces re-login rather
		// than ever leaving two live tokens for one rotation event.
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: claimedUser}
	}

	return RefreshResult{
		Failure:          RefreshFailureNone,
		UserID:           claimedUser,
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

// remediate evicts all of a user's refresh tokens. Best-effort idempotent:
// a failure is logged and the deny outcome still stands.
func (deps RefreshDeps) remediate(ctx context.Context, userID string) {
	err := withRetry(ctx, deps.Retry, func() error {
		return deps.Store.DeleteAllByUser(ctx, userID)
	})
	if err != nil && deps.Warn != nil {
		deps.Warn("refresh remediation failed", "user_id", userID, "error", err)
	}
}

func findByValue(ctx context.Context, deps RefreshDeps, value string) (*refresh.Record, error) {
	var rec *refresh.Record
	err := withRetry(ctx, deps.Retry, func() error {
		var err error
		rec, err = deps.Store.FindByValue(ctx, value)
		return err
	})
	return rec, err
}

func deleteByValue(ctx context.Context, deps RefreshDeps, value string) (bool, error) {
	var deleted bool
	err := withRetry(ctx, deps.Retry, func() error {
		var err error
		deleted, err = deps.Store.DeleteByValue(ctx, value)
		return err
	})
	return deleted, err
}
