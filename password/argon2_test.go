package password

import (
	"strings"
	"testing"
)

func fastConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
}

func TestHashCompareRoundTrip(t *testing.T) {
	hasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}

	hash, err := hasher.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("unexpected hash format: %s", hash)
	}

	ok, err := hasher.Compare(hash, "correct horse battery staple")
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if !ok {
		t.Fatal("correct password did not verify")
	}

	ok, err = hasher.Compare(hash, "wrong password")
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if ok {
		t.Fatal("wrong password verified")
	}
}

func TestHashesAreSalted(t *testing.T) {
	hasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}

	h1, err := hasher.Hash("pw")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	h2, err := hasher.Hash("pw")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if h1 == h2 {
		t.Fatal("two hashes of the same password must differ")
	}
}

func TestCompareRejectsMalformed(t *testing.T) {
	hasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}

	for _, bad := range []string{"", "plaintext", "$bcrypt$whatever", "$argon2id$v=19$m=x$s$h"} {
		if _, err := hasher.Compare(bad, "pw"); err == nil {
			t.Fatalf("hash %q: expected parse error", bad)
		}
	}
}

func TestNewArgon2RejectsWeakParams(t *testing.T) {
	cfg := fastConfig()
	cfg.Memory = 1024
	if _, err := NewArgon2(cfg); err == nil {
		t.Fatal("expected error for weak memory parameter")
	}

	cfg = fastConfig()
	cfg.SaltLength = 4
	if _, err := NewArgon2(cfg); err == nil {
		t.Fatal("expected error for short salt")
	}
}

func TestZeroConfigUsesDefaults(t *testing.T) {
	hasher, err := NewArgon2(Config{})
	if err != nil {
		t.Fatalf("NewArgon2 with zero config failed: %v", err)
	}
	if hasher.config != DefaultConfig() {
		t.Fatal("zero config must be replaced with defaults")
	}
}
