package sessionkit

import (
	"bytes"
	"fmt"
	"time"

	"github.com/notablehq/sessionkit/ratelimit"
)

const minSecretLen = 32

// JWTConfig controls token signing. Both secrets are required and must
// differ so an access token can never pass refresh verification.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

// CSRFConfig controls stateless CSRF token minting.
type CSRFConfig struct {
	Secret []byte
	TTL    time.Duration
}

// RateLimitConfig holds per-operation limiter policies. Limiters are only
// constructed when the builder is given a Redis client; without one the
// middleware skips rate limiting.
type RateLimitConfig struct {
	Login       ratelimit.Policy
	Refresh     ratelimit.Policy
	RedisPrefix string
}

// RetryConfig bounds retries of transient store failures.
type RetryConfig struct {
	Attempts int
	Backoff  time.Duration
}

// AccountConfig holds account policy toggles.
type AccountConfig struct {
	// RequireVerifiedEmail gates login and refresh on a verified address.
	RequireVerifiedEmail bool
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	BufferSize int
}

// Config is the full engine configuration. Start from DefaultConfig and
// override; zero-value Config fails validation.
type Config struct {
	JWT       JWTConfig
	CSRF      CSRFConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	Account   AccountConfig
	Audit     AuditConfig
}

// DefaultConfig returns the baseline configuration. Secrets are not
// defaulted; the caller must set them.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Leeway:     30 * time.Second,
		},
		CSRF: CSRFConfig{
			TTL: 2 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Login: ratelimit.Policy{
				MaxAttempts:   5,
				Window:        time.Minute,
				BlockDuration: 15 * time.Minute,
			},
			Refresh: ratelimit.Policy{
				MaxAttempts:   10,
				Window:        time.Minute,
				BlockDuration: 10 * time.Minute,
			},
			RedisPrefix: "sk",
		},
		Retry: RetryConfig{
			Attempts: 3,
			Backoff:  100 * time.Millisecond,
		},
		Audit: AuditConfig{
			BufferSize: 256,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	out.CSRF.Secret = cloneBytes(cfg.CSRF.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks the configuration for internal consistency. All failures
// wrap ErrConfig.
func (c Config) Validate() error {
	if len(c.JWT.AccessSecret) < minSecretLen {
		return fmt.Errorf("%w: JWT.AccessSecret must be at least %d bytes", ErrConfig, minSecretLen)
	}
	if len(c.JWT.RefreshSecret) < minSecretLen {
		return fmt.Errorf("%w: JWT.RefreshSecret must be at least %d bytes", ErrConfig, minSecretLen)
	}
	if bytes.Equal(c.JWT.AccessSecret, c.JWT.RefreshSecret) {
		return fmt.Errorf("%w: access and refresh secrets must differ", ErrConfig)
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return fmt.Errorf("%w: JWT TTLs must be positive", ErrConfig)
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return fmt.Errorf("%w: JWT.AccessTTL must be shorter than JWT.RefreshTTL", ErrConfig)
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return fmt.Errorf("%w: JWT.Leeway must be between 0 and 2m", ErrConfig)
	}
	if len(c.CSRF.Secret) < minSecretLen {
		return fmt.Errorf("%w: CSRF.Secret must be at least %d bytes", ErrConfig, minSecretLen)
	}
	if c.CSRF.TTL <= 0 {
		return fmt.Errorf("%w: CSRF.TTL must be positive", ErrConfig)
	}
	for _, p := range []struct {
		name   string
		policy ratelimit.Policy
	}{
		{"RateLimit.Login", c.RateLimit.Login},
		{"RateLimit.Refresh", c.RateLimit.Refresh},
	} {
		if p.policy.MaxAttempts < 1 {
			return fmt.Errorf("%w: %s.MaxAttempts must be at least 1", ErrConfig, p.name)
		}
		if p.policy.Window <= 0 || p.policy.BlockDuration <= 0 {
			return fmt.Errorf("%w: %s window and block duration must be positive", ErrConfig, p.name)
		}
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("%w: Retry.Attempts must be at least 1", ErrConfig)
	}
	if c.Retry.Backoff < 0 {
		return fmt.Errorf("%w: Retry.Backoff must not be negative", ErrConfig)
	}
	return nil
}
