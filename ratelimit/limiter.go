// Package ratelimit tracks attempt counts per key inside a fixed time window
// with a blocked state, backed by Redis counters.
//
// The limiter never decides when to count: Check is a pure read used for
// request admission, Increment is called by the owner only after an observed
// failure, and Reset after an observed success. This check → handle →
// increment/reset split means a request is never penalized before its outcome
// is known.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrUnavailable reports that the Redis backend is unreachable.
	ErrUnavailable = errors.New("rate limit backend unavailable")
)

// Policy holds the tuning for one limiter instance.
type Policy struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// Result is the admission decision for a key. ResetAt is the block expiry
// while blocked, otherwise the end of the current counting window.
type Result struct {
	Blocked   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter enforces a fixed-window attempt budget per key. Instances for
// different endpoints use distinct prefixes so their keyspaces never overlap.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	policy Policy
}

// New creates a Limiter. The prefix names the guarded surface, e.g. "login".
func New(client redis.UniversalClient, prefix string, policy Policy) (*Limiter, error) {
	if prefix == "" {
		return nil, errors.New("ratelimit: empty prefix")
	}
	if policy.MaxAttempts <= 0 || policy.Window <= 0 || policy.BlockDuration <= 0 {
		return nil, errors.New("ratelimit: policy values must be positive")
	}
	return &Limiter{redis: client, prefix: prefix, policy: policy}, nil
}

// Policy returns the limiter's tuning, used by middleware for response headers.
func (l *Limiter) Policy() Policy { return l.policy }

// Check reads the current state without incrementing. A missing or
// window-expired counter reports the full budget.
func (l *Limiter) Check(ctx context.Context, key string) (Result, error) {
	now := time.Now()

	blockedUntil, err := l.redis.Get(ctx, l.blockKey(key)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err == nil {
		until := time.Unix(blockedUntil, 0)
		if now.Before(until) {
			// An active block wins regardless of the counter.
			return Result{Blocked: true, Remaining: 0, ResetAt: until}, nil
		}
	}

	count, err := l.redis.Get(ctx, l.countKey(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Result{Blocked: false, Remaining: l.policy.MaxAttempts, ResetAt: now.Add(l.policy.Window)}, nil
		}
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	remaining := l.policy.MaxAttempts - int(count)
	if remaining < 0 {
		remaining = 0
	}

	resetAt := now.Add(l.policy.Window)
	if ttl, err := l.redis.PTTL(ctx, l.countKey(key)).Result(); err == nil && ttl > 0 {
		resetAt = now.Add(ttl)
	}

	return Result{Blocked: false, Remaining: remaining, ResetAt: resetAt}, nil
}

// Increment records one observed failure. When the count reaches the budget,
// the key is blocked for the configured duration.
func (l *Limiter) Increment(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, l.countKey(key)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Fixed-window semantics: TTL is set only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, l.countKey(key), l.policy.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if count >= int64(l.policy.MaxAttempts) {
		blockedUntil := time.Now().Add(l.policy.BlockDuration)
		err := l.redis.Set(ctx,
			l.blockKey(key),
			strconv.FormatInt(blockedUntil.Unix(), 10),
			l.policy.BlockDuration,
		).Err()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return nil
}

// Reset clears the key entirely, restoring the full budget. Called after an
// observed success.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.countKey(key), l.blockKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *Limiter) countKey(key string) string {
	return "rl:" + l.prefix + ":cnt:" + key
}

func (l *Limiter) blockKey(key string) string {
	return "rl:" + l.prefix + ":blk:" + key
}
