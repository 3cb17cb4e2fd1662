package sessionkit

import (
	"errors"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-0123456789abcdefghij")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-0123456789abcdefghi")
	cfg.CSRF.Secret = []byte("csrf-secret-0123456789abcdefghijkl")
	return cfg
}

func TestDefaultConfigIsValidOnceSecretsAreSet(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := map[string]func(*Config){
		"no access secret":      func(c *Config) { c.JWT.AccessSecret = nil },
		"short refresh secret":  func(c *Config) { c.JWT.RefreshSecret = []byte("short") },
		"matching secrets":      func(c *Config) { c.JWT.RefreshSecret = c.JWT.AccessSecret },
		"zero access ttl":       func(c *Config) { c.JWT.AccessTTL = 0 },
		"access outlives refresh": func(c *Config) {
			c.JWT.AccessTTL = 8 * 24 * time.Hour
		},
		"oversized leeway":   func(c *Config) { c.JWT.Leeway = 5 * time.Minute },
		"no csrf secret":     func(c *Config) { c.CSRF.Secret = nil },
		"zero csrf ttl":      func(c *Config) { c.CSRF.TTL = 0 },
		"zero login budget":  func(c *Config) { c.RateLimit.Login.MaxAttempts = 0 },
		"zero refresh block": func(c *Config) { c.RateLimit.Refresh.BlockDuration = 0 },
		"zero retries":       func(c *Config) { c.Retry.Attempts = 0 },
	}

	for name, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrConfig) {
			t.Fatalf("%s: got %v", name, err)
		}
	}
}

func TestCloneConfigCopiesSecrets(t *testing.T) {
	cfg := validConfig()
	clone := cloneConfig(cfg)

	clone.JWT.AccessSecret[0] ^= 0xff
	if cfg.JWT.AccessSecret[0] == clone.JWT.AccessSecret[0] {
		t.Fatal("clone shares the access secret backing array")
	}
}
