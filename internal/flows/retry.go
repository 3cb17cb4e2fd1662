package flows

import (
	"context"
	"errors"
	"time"

	"github.com/notablehq/sessionkit/refresh"
)

// RetryPolicy bounds retries of transient store failures. Logical outcomes
// (not found, ownership mismatch) are definitive and never pass through here.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// withRetry runs fn, retrying only [refresh.ErrUnavailable] up to the policy's
// attempt budget with a flat backoff between tries.
func withRetry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !errors.Is(err, refresh.ErrUnavailable) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(policy.Backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return err
}
