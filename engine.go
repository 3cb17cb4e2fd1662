package sessionkit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/notablehq/sessionkit/csrf"
	"github.com/notablehq/sessionkit/internal/audit"
	"github.com/notablehq/sessionkit/internal/flows"
	"github.com/notablehq/sessionkit/jwt"
	"github.com/notablehq/sessionkit/ratelimit"
	"github.com/notablehq/sessionkit/refresh"
)

// Engine is the session security facade: login, access token validation,
// refresh rotation, logout, plus CSRF minting for the middleware. Build it
// through the Builder; the zero value is unusable.
type Engine struct {
	config     Config
	jwtManager *jwt.Manager
	csrf       *csrf.Service
	store      refresh.Store
	users      UserProvider
	hasher     PasswordHasher
	mailer     Mailer
	logger     *slog.Logger
	audit      *audit.Dispatcher

	loginLimiter   *ratelimit.Limiter
	refreshLimiter *ratelimit.Limiter

	flows flows.Deps

	// alertWG tracks in-flight reuse alert sends so Close can drain them.
	alertWG sync.WaitGroup
}

func (e *Engine) buildFlowDeps(retry flows.RetryPolicy) flows.Deps {
	return flows.Deps{
		Login: flows.LoginDeps{
			GetUserByIdentifier: e.lookupForLogin,
			ComparePassword:     e.hasher.Compare,
			IssuePair:           e.jwtManager.IssuePair,
			Store:               e.store,
			Retry:               retry,
			RequireVerified:     e.config.Account.RequireVerifiedEmail,
			Now:                 time.Now,
		},
		Refresh: flows.RefreshDeps{
			VerifyRefresh:   e.jwtManager.VerifyRefresh,
			IssuePair:       e.jwtManager.IssuePair,
			Store:           e.store,
			Retry:           retry,
			RequireVerified: e.config.Account.RequireVerifiedEmail,
			UserVerified:    e.userVerified,
			OnReuse:         e.onReuse,
			Warn:            e.warn,
			Now:             time.Now,
		},
		Logout: flows.LogoutDeps{
			Store: e.store,
			Retry: retry,
		},
	}
}

func (e *Engine) lookupForLogin(ctx context.Context, identifier string) (flows.LoginUserRecord, error) {
	user, err := e.users.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		return flows.LoginUserRecord{}, err
	}
	return flows.LoginUserRecord{
		UserID:        user.UserID,
		PasswordHash:  user.PasswordHash,
		EmailVerified: user.EmailVerified,
	}, nil
}

func (e *Engine) userVerified(ctx context.Context, userID string) (bool, error) {
	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.EmailVerified, nil
}

// Login verifies credentials and establishes a session. Unknown identifier
// and wrong password both return ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, identifier, password string) (*TokenPair, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	res := flows.RunLogin(ctx, identifier, password, e.flows.Login)

	switch res.Failure {
	case flows.LoginFailureNone:
		e.emit(ctx, audit.EventLoginSuccess, res.UserID, true, "")
		return &TokenPair{
			UserID:           res.UserID,
			AccessToken:      res.AccessToken,
			RefreshToken:     res.RefreshToken,
			RefreshExpiresAt: res.RefreshExpiresAt,
		}, nil
	case flows.LoginFailureUserNotFound:
		e.emit(ctx, audit.EventLoginFailure, "", false, "user_not_found")
		return nil, ErrInvalidCredentials
	case flows.LoginFailureBadPassword:
		e.emit(ctx, audit.EventLoginFailure, res.UserID, false, "bad_password")
		return nil, ErrInvalidCredentials
	case flows.LoginFailureUnverified:
		e.emit(ctx, audit.EventLoginFailure, res.UserID, false, "unverified")
		return nil, ErrAccountUnverified
	case flows.LoginFailureStore:
		e.warn("login store failure", "error", res.Err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	default:
		e.warn("login token issue failure", "error", res.Err)
		return nil, res.Err
	}
}

// Refresh consumes the presented refresh token and, when it is the live
// single-use value, rotates it into a fresh pair. A valid-but-absent token
// is treated as theft: every session for the user is evicted and
// ErrRefreshReuse is returned.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	res := flows.RunRefresh(ctx, refreshToken, e.flows.Refresh)

	switch res.Failure {
	case flows.RefreshFailureNone:
		e.emit(ctx, audit.EventRefreshSuccess, res.UserID, true, "")
		return &TokenPair{
			UserID:           res.UserID,
			AccessToken:      res.AccessToken,
			RefreshToken:     res.RefreshToken,
			RefreshExpiresAt: res.RefreshExpiresAt,
		}, nil
	case flows.RefreshFailureMissing:
		e.emit(ctx, audit.EventRefreshRejected, "", false, "missing")
		return nil, fmt.Errorf("%w: no token presented", ErrRefreshInvalid)
	case flows.RefreshFailureVerify:
		e.emit(ctx, audit.EventRefreshRejected, res.UserID, false, verifyReason(res.VerifyKind))
		if res.VerifyKind == jwt.KindBadSignature {
			return nil, fmt.Errorf("%w: %v", ErrRefreshTampered, res.Err)
		}
		return nil, fmt.Errorf("%w: %v", ErrRefreshInvalid, res.Err)
	case flows.RefreshFailureReuse:
		e.emit(ctx, audit.EventReuseDetected, res.UserID, false, "reuse")
		return nil, ErrRefreshReuse
	case flows.RefreshFailureOwnerMismatch:
		e.emit(ctx, audit.EventOwnerMismatch, res.UserID, false, "owner_mismatch")
		return nil, ErrRefreshOwnerMismatch
	case flows.RefreshFailureUnverified:
		e.emit(ctx, audit.EventRefreshRejected, res.UserID, false, "unverified")
		return nil, ErrAccountUnverified
	case flows.RefreshFailureStore:
		e.warn("refresh store failure", "user_id", res.UserID, "error", res.Err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	default:
		e.warn("refresh token issue failure", "user_id", res.UserID, "error", res.Err)
		return nil, res.Err
	}
}

// Logout invalidates the presented refresh token. Per-device and
// idempotent: an absent or already-consumed token is still success.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	if err := flows.RunLogout(ctx, refreshToken, e.flows.Logout); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.emit(ctx, audit.EventLogout, "", true, "")
	return nil
}

// LogoutAll invalidates every refresh token the user holds.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	if err := flows.RunLogoutAll(ctx, userID, e.flows.Logout); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.emit(ctx, audit.EventLogoutAll, userID, true, "")
	return nil
}

// Validate checks an access token and returns its identity claims. All
// verification failures map to ErrUnauthorized; expired tokens additionally
// carry jwt.KindExpired detail in the wrapped error.
func (e *Engine) Validate(tokenStr string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	res := e.jwtManager.VerifyAccess(tokenStr)
	if !res.OK() {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, verifyReason(res.Kind))
	}

	expiresAt := res.Claims.ExpiresAt.Time
	return &AuthResult{
		UserID:       res.Claims.UserID,
		ExpiresAt:    expiresAt,
		ExpiringSoon: jwt.ExpiringSoon(expiresAt),
	}, nil
}

// CSRFToken mints a token bound to the given session identifier.
func (e *Engine) CSRFToken(sessionID string) (string, error) {
	if e == nil || e.csrf == nil {
		return "", ErrEngineNotReady
	}
	return e.csrf.GenerateToken(sessionID)
}

// ValidateCSRF reports whether token is live and bound to sessionID.
func (e *Engine) ValidateCSRF(token, sessionID string) bool {
	if e == nil || e.csrf == nil {
		return false
	}
	return e.csrf.ValidateToken(token, sessionID)
}

// CSRF exposes the underlying service for the middleware.
func (e *Engine) CSRF() *csrf.Service {
	return e.csrf
}

// LoginLimiter returns the login rate limiter, or nil when the builder was
// given no Redis client.
func (e *Engine) LoginLimiter() *ratelimit.Limiter {
	return e.loginLimiter
}

// RefreshLimiter returns the refresh rate limiter, or nil when the builder
// was given no Redis client.
func (e *Engine) RefreshLimiter() *ratelimit.Limiter {
	return e.refreshLimiter
}

// Close drains the audit dispatcher and any in-flight reuse alerts. The
// Engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.alertWG.Wait()
	e.audit.Close()
}

// onReuse runs the compromise side effects after the flow has already
// evicted the user's sessions: log, and alert the account email when a
// mailer is configured.
func (e *Engine) onReuse(userID string) {
	e.warn("refresh token reuse detected", "user_id", userID)

	if e.mailer == nil {
		return
	}

	e.alertWG.Add(1)
	go func() {
		defer e.alertWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		user, err := e.users.GetUserByID(ctx, userID)
		if err != nil {
			e.warn("reuse alert: user lookup failed", "user_id", userID, "error", err)
			return
		}

		err = e.mailer.SendSecurityAlert(ctx, user.Email,
			"Security alert: your sessions were signed out",
			"A previously used session token was presented again, which can "+
				"indicate a stolen session. All devices have been signed out "+
				"as a precaution. Please log in again and review your account.")
		if err != nil {
			e.warn("reuse alert: send failed", "user_id", userID, "error", err)
		}
	}()
}

func (e *Engine) emit(ctx context.Context, eventType, userID string, success bool, reason string) {
	e.audit.Emit(audit.Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		ClientIP:  clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Reason:    reason,
	})
}

func (e *Engine) warn(msg string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Warn(msg, args...)
}

func verifyReason(kind jwt.ResultKind) string {
	switch kind {
	case jwt.KindExpired:
		return "expired"
	case jwt.KindBadSignature:
		return "bad_signature"
	case jwt.KindMalformed:
		return "malformed"
	default:
		return "ok"
	}
}
