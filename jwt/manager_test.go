package jwt

import (
	"strings"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		AccessSecret:  []byte("access-secret-for-tests-0123456789"),
		RefreshSecret: []byte("refresh-secret-for-tests-987654321"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "sessionkit-test",
	}
}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestNewManagerRejectsEmptySecret(t *testing.T) {
	cfg := testConfig()
	cfg.AccessSecret = nil
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("expected error for empty access secret")
	}

	cfg = testConfig()
	cfg.RefreshSecret = []byte{}
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("expected error for empty refresh secret")
	}
}

func TestNewManagerRejectsBadTTL(t *testing.T) {
	cfg := testConfig()
	cfg.AccessTTL = 0
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("expected error for zero TTL")
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	m := newTestManager(t, testConfig())

	token, err := m.SignAccess("u1")
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}

	res := m.VerifyAccess(token)
	if !res.OK() {
		t.Fatalf("expected OK, got kind=%d err=%v", res.Kind, res.Err)
	}
	if res.Claims.UserID != "u1" {
		t.Fatalf("unexpected user id %q", res.Claims.UserID)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	m := newTestManager(t, testConfig())

	other := testConfig()
	other.AccessSecret = []byte("a completely different access secret")
	m2 := newTestManager(t, other)

	token, err := m.SignAccess("u1")
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}

	res := m2.VerifyAccess(token)
	if res.OK() {
		t.Fatal("token verified under wrong secret")
	}
	if res.Kind != KindBadSignature {
		t.Fatalf("expected KindBadSignature, got %d (%v)", res.Kind, res.Err)
	}
	if res.Claims == nil || res.Claims.UserID != "u1" {
		t.Fatal("bad-signature result must still expose the claimed user")
	}
}

func TestVerifyRejectsCrossSecretUse(t *testing.T) {
	// An access token must never verify as a refresh token.
	m := newTestManager(t, testConfig())

	token, err := m.SignAccess("u1")
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}
	if res := m.VerifyRefresh(token); res.OK() {
		t.Fatal("access token verified against refresh secret")
	}
}

func TestVerifyExpiredKeepsClaims(t *testing.T) {
	cfg := testConfig()
	cfg.AccessTTL = 1 * time.Millisecond
	m := newTestManager(t, cfg)

	token, err := m.SignAccess("u1")
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	res := m.VerifyAccess(token)
	if res.Kind != KindExpired {
		t.Fatalf("expected KindExpired, got %d (%v)", res.Kind, res.Err)
	}
	if res.Claims == nil || res.Claims.UserID != "u1" {
		t.Fatal("expired result must still expose the claimed user")
	}
}

func TestVerifyMalformed(t *testing.T) {
	m := newTestManager(t, testConfig())

	for _, token := range []string{"", "garbage", "a.b.c", strings.Repeat("x", 600)} {
		if res := m.VerifyAccess(token); res.Kind != KindMalformed {
			t.Fatalf("token %q: expected KindMalformed, got %d", token, res.Kind)
		}
	}
}

func TestIssuePair(t *testing.T) {
	m := newTestManager(t, testConfig())

	pair, err := m.IssuePair("u1")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}
	if pair.TokenID == "" {
		t.Fatal("pair must carry a token id")
	}

	res := m.VerifyRefresh(pair.RefreshToken)
	if !res.OK() {
		t.Fatalf("refresh token did not verify: %v", res.Err)
	}
	if res.Claims.ID != pair.TokenID {
		t.Fatalf("jti mismatch: %q vs %q", res.Claims.ID, pair.TokenID)
	}
	if res.Claims.UserID != "u1" {
		t.Fatalf("unexpected user id %q", res.Claims.UserID)
	}
}

func TestExpiringSoonBoundary(t *testing.T) {
	if !ExpiringSoon(time.Now().Add(ExpiringSoonWindow - time.Second)) {
		t.Fatal("inside the window must report expiring soon")
	}
	if ExpiringSoon(time.Now().Add(ExpiringSoonWindow + time.Second)) {
		t.Fatal("outside the window must not report expiring soon")
	}
	if !ExpiringSoon(time.Now().Add(-time.Second)) {
		t.Fatal("already expired counts as expiring soon")
	}
}
