package flows

import (
	"context"

	"github.com/notablehq/sessionkit/refresh"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Store refresh.Store
	Retry RetryPolicy
}

// RunLogout consumes the single presented refresh token. Logout is per-device
// and idempotent: an absent or already-deleted token is still success.
func RunLogout(ctx context.Context, refreshToken string, deps LogoutDeps) error {
	if refreshToken == "" {
		return nil
	}

	return withRetry(ctx, deps.Retry, func() error {
		_, err := deps.Store.DeleteByValue(ctx, refreshToken)
		return err
	})
}

// RunLogoutAll evicts every refresh token the user holds (logout-everywhere).
func RunLogoutAll(ctx context.Context, userID string, deps LogoutDeps) error {
	return withRetry(ctx, deps.Retry, func() error {
		return deps.Store.DeleteAllByUser(ctx, userID)
	})
}
