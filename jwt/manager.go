package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ExpiringSoonWindow is the remaining-validity threshold below which callers
// should proactively refresh instead of waiting for a failed request.
const ExpiringSoonWindow = 3 * time.Minute

// ErrConfig reports an unusable Manager configuration (empty secret, bad TTL).
var ErrConfig = errors.New("jwt config invalid")

// Config carries the two signing secrets and lifetimes. Access tokens are
// short-lived and verified without a store lookup; refresh tokens are
// long-lived and additionally backed by the refresh store.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

// Manager signs and verifies HS256 access and refresh tokens. It is a pure
// function of its secrets and the wall clock and is safe for concurrent use.
type Manager struct {
	config Config
}

// Claims is the signed claim set. UserID rides in "uid"; refresh tokens carry
// the stored record ID in "jti".
type Claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// ResultKind classifies a verification outcome. All non-OK kinds collapse to
// the same caller-visible rejection but are logged differently.
type ResultKind int

const (
	// KindOK means the signature and expiry both checked out.
	KindOK ResultKind = iota
	// KindMalformed means the token was absent, garbled, or structurally invalid.
	KindMalformed
	// KindExpired means the signature was valid but the expiry has passed.
	KindExpired
	// KindBadSignature means the token was signed with a different secret.
	KindBadSignature
)

// Result is the tri-state verification outcome. Claims is populated for
// KindOK and, when the payload was decodable, for KindExpired and
// KindBadSignature — the claimed user drives remediation when a stolen or
// forged token is presented.
type Result struct {
	Claims *Claims
	Kind   ResultKind
	Err    error
}

// OK reports whether verification succeeded.
func (r Result) OK() bool { return r.Kind == KindOK }

// Pair is an issued access+refresh token pair. TokenID is the refresh
// token's jti, which the caller persists as the record ID.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	TokenID          string
	RefreshExpiresAt time.Time
}

// NewManager validates the configuration. Both secrets are required; there is
// no fallback from refresh to access secret.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, fmt.Errorf("%w: empty signing secret", ErrConfig)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("%w: TTL must be positive", ErrConfig)
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, fmt.Errorf("%w: leeway out of range", ErrConfig)
	}
	return &Manager{config: cfg}, nil
}

// SignAccess issues a short-lived access token for the subject.
func (m *Manager) SignAccess(userID string) (string, error) {
	return m.sign(userID, "", m.config.AccessSecret, m.config.AccessTTL)
}

// SignRefresh issues a long-lived refresh token carrying the record ID.
func (m *Manager) SignRefresh(userID, tokenID string) (string, error) {
	return m.sign(userID, tokenID, m.config.RefreshSecret, m.config.RefreshTTL)
}

// IssuePair mints an access+refresh pair with a fresh record ID.
func (m *Manager) IssuePair(userID string) (Pair, error) {
	access, err := m.SignAccess(userID)
	if err != nil {
		return Pair{}, err
	}

	tokenID := uuid.NewString()
	refresh, err := m.SignRefresh(userID, tokenID)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenID:          tokenID,
		RefreshExpiresAt: time.Now().Add(m.config.RefreshTTL),
	}, nil
}

// VerifyAccess verifies a token against the access secret.
func (m *Manager) VerifyAccess(tokenStr string) Result {
	return m.verify(tokenStr, m.config.AccessSecret)
}

// VerifyRefresh verifies a token against the refresh secret.
func (m *Manager) VerifyRefresh(tokenStr string) Result {
	return m.verify(tokenStr, m.config.RefreshSecret)
}

// ExpiringSoon reports whether remaining validity has dropped below
// [ExpiringSoonWindow].
func ExpiringSoon(expiresAt time.Time) bool {
	return time.Until(expiresAt) < ExpiringSoonWindow
}

func (m *Manager) sign(userID, tokenID string, secret []byte, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrConfig
	}

	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	if tokenID != "" {
		claims.ID = tokenID
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (m *Manager) verify(tokenStr string, secret []byte) Result {
	if tokenStr == "" {
		return Result{Kind: KindMalformed, Err: errors.New("empty token")}
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		claims, _ := claimsOf(token)
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			// Expired-but-decodable: surface the claimed user so the caller
			// can run its stolen-token remediation.
			return Result{Claims: claims, Kind: KindExpired, Err: err}
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			// Claims decode before the signature check, so the claimed user
			// is available for remediation even on a forged token.
			return Result{Claims: claims, Kind: KindBadSignature, Err: err}
		default:
			return Result{Kind: KindMalformed, Err: err}
		}
	}

	claims, ok := claimsOf(token)
	if !ok || !token.Valid {
		return Result{Kind: KindMalformed, Err: jwt.ErrTokenInvalidClaims}
	}

	return Result{Claims: claims, Kind: KindOK}
}

func claimsOf(token *jwt.Token) (*Claims, bool) {
	if token == nil {
		return nil, false
	}
	claims, ok := token.Claims.(*Claims)
	return claims, ok
}
