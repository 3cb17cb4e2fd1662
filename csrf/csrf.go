// Package csrf issues and validates self-verifying, session-bound tokens for
// state-changing requests. Nothing is stored server-side: validity is fully
// reconstructable from the token plus the caller-supplied session id.
package csrf

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Service mints and checks HMAC-signed tokens. It is stateless and safe for
// concurrent use.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New validates the key material. The secret must not be shared with the JWT
// signing secrets: the two keyspaces are independent.
func New(secret []byte, ttl time.Duration) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("csrf: empty secret")
	}
	if ttl <= 0 {
		return nil, errors.New("csrf: TTL must be positive")
	}
	return &Service{secret: secret, ttl: ttl, now: time.Now}, nil
}

// TTL returns the configured token lifetime, used by the middleware to size
// the cookie max-age.
func (s *Service) TTL() time.Duration { return s.ttl }

// GenerateToken mints a token bound to sessionID. Format:
// base36(expiryUnixMilli) + "." + base64url(HMAC-SHA256(secret, sessionID|expiry)).
func (s *Service) GenerateToken(sessionID string) (string, error) {
	if sessionID == "" {
		return "", errors.New("csrf: empty session id")
	}

	expiresAt := strconv.FormatInt(s.now().Add(s.ttl).UnixMilli(), 36)
	sig := s.signature(sessionID, expiresAt)

	return expiresAt + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// ValidateToken reports whether token was minted for sessionID and has not
// expired. Any parse failure or mismatch fails closed.
func (s *Service) ValidateToken(token, sessionID string) bool {
	if token == "" || sessionID == "" {
		return false
	}

	expiresAt, sigPart, ok := strings.Cut(token, ".")
	if !ok {
		return false
	}

	expiryMilli, err := strconv.ParseInt(expiresAt, 36, 64)
	if err != nil {
		return false
	}
	if s.now().After(time.UnixMilli(expiryMilli)) {
		return false
	}

	provided, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return false
	}

	return hmac.Equal(provided, s.signature(sessionID, expiresAt))
}

func (s *Service) signature(sessionID, expiresAt string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(sessionID))
	mac.Write([]byte("|"))
	mac.Write([]byte(expiresAt))
	return mac.Sum(nil)
}
