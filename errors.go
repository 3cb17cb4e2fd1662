package sessionkit

import "errors"

var (
	// ErrUnauthorized reports an access token that did not verify.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials covers both unknown identifier and wrong
	// password; callers must not distinguish the two.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountUnverified reports a login or refresh for an account that
	// has not completed email verification.
	ErrAccountUnverified = errors.New("account unverified")
	// ErrRefreshInvalid reports a refresh token that is missing, malformed,
	// or expired.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshTampered reports a refresh token signed with the wrong
	// secret. All sessions for the claimed user have been evicted.
	ErrRefreshTampered = errors.New("tampered refresh token")
	// ErrRefreshReuse reports presentation of an already-consumed refresh
	// token. All sessions for the affected user have been evicted.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrRefreshOwnerMismatch reports a stored refresh token whose owner
	// differs from the user the token claims.
	ErrRefreshOwnerMismatch = errors.New("refresh token owner mismatch")
	// ErrRateLimited reports a request denied by the rate limiter.
	ErrRateLimited = errors.New("rate limited")
	// ErrCSRFInvalid reports a state-changing request whose CSRF token was
	// missing, expired, or failed validation.
	ErrCSRFInvalid = errors.New("invalid csrf token")
	// ErrStoreUnavailable reports a persistence failure after retries.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrConfig reports invalid engine configuration.
	ErrConfig = errors.New("invalid configuration")
	// ErrEngineNotReady reports use of an Engine that was not built.
	ErrEngineNotReady = errors.New("engine not initialized")
)
