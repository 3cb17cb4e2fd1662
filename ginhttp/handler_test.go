package ginhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	sessionkit "github.com/notablehq/sessionkit"
)

type staticProvider struct {
	user sessionkit.UserRecord
}

func (p staticProvider) GetUserByIdentifier(_ context.Context, identifier string) (*sessionkit.UserRecord, error) {
	if identifier != p.user.Email {
		return nil, errors.New("user not found")
	}
	u := p.user
	return &u, nil
}

func (p staticProvider) GetUserByID(_ context.Context, userID string) (*sessionkit.UserRecord, error) {
	if userID != p.user.UserID {
		return nil, errors.New("user not found")
	}
	u := p.user
	return &u, nil
}

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain:" + password, nil }

func (plainHasher) Compare(encodedHash, password string) (bool, error) {
	return encodedHash == "plain:"+password, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *sessionkit.Engine) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := sessionkit.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-0123456789abcdefghij")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-0123456789abcdefghi")
	cfg.CSRF.Secret = []byte("csrf-secret-0123456789abcdefghijkl")

	engine, err := sessionkit.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserProvider(staticProvider{user: sessionkit.UserRecord{
			UserID:        "user-1",
			Email:         "user@example.com",
			PasswordHash:  "plain:pw",
			EmailVerified: true,
		}}).
		WithHasher(plainHasher{}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(engine, Options{}).Register(router.Group("/auth"))

	return router, engine
}

func doJSON(router *gin.Engine, method, path, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.50:44000"
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == "refresh_token" {
			return cookie
		}
	}
	t.Fatal("no refresh_token cookie in response")
	return nil
}

func accessToken(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if body.AccessToken == "" {
		t.Fatal("empty access_token in response")
	}
	return body.AccessToken
}

func login(t *testing.T, router *gin.Engine) *httptest.ResponseRecorder {
	t.Helper()
	rec := doJSON(router, http.MethodPost, "/auth/login", `{"identifier":"user@example.com","password":"pw"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}
	return rec
}

func TestLoginSetsCookieAndReturnsAccessToken(t *testing.T) {
	router, engine := newTestRouter(t)

	rec := login(t, router)
	cookie := refreshCookie(t, rec)

	if !cookie.HttpOnly {
		t.Fatal("refresh cookie must be HttpOnly")
	}
	if cookie.Path != "/auth" {
		t.Fatalf("cookie path = %q", cookie.Path)
	}
	if cookie.MaxAge <= 0 {
		t.Fatalf("cookie max age = %d", cookie.MaxAge)
	}

	// The body carries only the access token, never the refresh token.
	if strings.Contains(rec.Body.String(), cookie.Value) {
		t.Fatal("refresh token leaked into the response body")
	}

	auth, err := engine.Validate(accessToken(t, rec))
	if err != nil {
		t.Fatalf("returned access token does not validate: %v", err)
	}
	if auth.UserID != "user-1" {
		t.Fatalf("UserID = %q", auth.UserID)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(router, http.MethodPost, "/auth/login", `{"identifier":"user@example.com","password":"nope"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = doJSON(router, http.MethodPost, "/auth/login", `{"identifier":"user@example.com"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing password: status = %d", rec.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	router, engine := newTestRouter(t)
	max := engine.LoginLimiter().Policy().MaxAttempts

	for i := 0; i < max; i++ {
		rec := doJSON(router, http.MethodPost, "/auth/login", `{"identifier":"user@example.com","password":"nope"}`, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d", i+1, rec.Code)
		}
	}

	rec := doJSON(router, http.MethodPost, "/auth/login", `{"identifier":"user@example.com","password":"pw"}`, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("blocked login: status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
}

func TestRefreshRotatesCookie(t *testing.T) {
	router, _ := newTestRouter(t)

	oldCookie := refreshCookie(t, login(t, router))

	rec := doJSON(router, http.MethodPost, "/auth/refresh", "", []*http.Cookie{oldCookie})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body = %s", rec.Code, rec.Body.String())
	}
	newCookie := refreshCookie(t, rec)
	if newCookie.Value == oldCookie.Value {
		t.Fatal("refresh did not rotate the cookie value")
	}
	accessToken(t, rec)

	// Replaying the consumed cookie is reuse: 403 and the cookie cleared.
	rec = doJSON(router, http.MethodPost, "/auth/refresh", "", []*http.Cookie{oldCookie})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("replayed refresh status = %d", rec.Code)
	}
	cleared := refreshCookie(t, rec)
	if cleared.Value != "" || cleared.MaxAge >= 0 {
		t.Fatalf("cookie not cleared: value=%q maxAge=%d", cleared.Value, cleared.MaxAge)
	}

	// The reuse response evicted everything, including the rotated token.
	rec = doJSON(router, http.MethodPost, "/auth/refresh", "", []*http.Cookie{newCookie})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("post-eviction refresh status = %d", rec.Code)
	}
}

func TestRefreshTamperedCookieForbidden(t *testing.T) {
	router, _ := newTestRouter(t)

	// An access token in the refresh cookie fails signature verification
	// against the refresh secret: tampering, not a mere expiry.
	rec := login(t, router)
	tampered := &http.Cookie{Name: "refresh_token", Value: accessToken(t, rec)}

	rec = doJSON(router, http.MethodPost, "/auth/refresh", "", []*http.Cookie{tampered})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("tampered refresh status = %d", rec.Code)
	}
	cleared := refreshCookie(t, rec)
	if cleared.Value != "" || cleared.MaxAge >= 0 {
		t.Fatalf("cookie not cleared: value=%q maxAge=%d", cleared.Value, cleared.MaxAge)
	}
}

func TestRefreshStoreOutageKeepsCookie(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := sessionkit.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-0123456789abcdefghij")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-0123456789abcdefghi")
	cfg.CSRF.Secret = []byte("csrf-secret-0123456789abcdefghijkl")
	cfg.Retry.Backoff = time.Millisecond

	engine, err := sessionkit.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserProvider(staticProvider{user: sessionkit.UserRecord{
			UserID:        "user-1",
			Email:         "user@example.com",
			PasswordHash:  "plain:pw",
			EmailVerified: true,
		}}).
		WithHasher(plainHasher{}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(engine, Options{}).Register(router.Group("/auth"))

	cookie := refreshCookie(t, login(t, router))

	mr.SetError("connection refused")
	rec := doJSON(router, http.MethodPost, "/auth/refresh", "", []*http.Cookie{cookie})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("outage refresh status = %d", rec.Code)
	}
	// The token was never consumed; clearing the cookie here would force a
	// needless re-login once the store is back.
	for _, c := range rec.Result().Cookies() {
		if c.Name == "refresh_token" {
			t.Fatalf("refresh cookie touched during outage: value=%q maxAge=%d", c.Value, c.MaxAge)
		}
	}

	// Store recovers; the same cookie still rotates.
	mr.SetError("")
	rec = doJSON(router, http.MethodPost, "/auth/refresh", "", []*http.Cookie{cookie})
	if rec.Code != http.StatusOK {
		t.Fatalf("post-outage refresh status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestRefreshWithoutCookie(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(router, http.MethodPost, "/auth/refresh", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestLogoutClearsCookieAndConsumesToken(t *testing.T) {
	router, _ := newTestRouter(t)

	cookie := refreshCookie(t, login(t, router))

	rec := doJSON(router, http.MethodPost, "/auth/logout", "", []*http.Cookie{cookie})
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rec.Code)
	}
	cleared := refreshCookie(t, rec)
	if cleared.Value != "" || cleared.MaxAge >= 0 {
		t.Fatalf("cookie not cleared: value=%q maxAge=%d", cleared.Value, cleared.MaxAge)
	}

	// Logout is idempotent even with no cookie at all.
	rec = doJSON(router, http.MethodPost, "/auth/logout", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat logout status = %d", rec.Code)
	}
}

func TestLogoutAllRequiresAuthAndEvicts(t *testing.T) {
	router, _ := newTestRouter(t)

	first := login(t, router)
	second := login(t, router)
	firstCookie := refreshCookie(t, first)
	secondCookie := refreshCookie(t, second)

	rec := doJSON(router, http.MethodPost, "/auth/logout_all", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated logout_all status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/logout_all", strings.NewReader(""))
	req.Header.Set("Authorization", "Bearer "+accessToken(t, first))
	req.RemoteAddr = "203.0.113.50:44000"
	out := httptest.NewRecorder()
	router.ServeHTTP(out, req)
	if out.Code != http.StatusOK {
		t.Fatalf("logout_all status = %d, body = %s", out.Code, out.Body.String())
	}

	for name, cookie := range map[string]*http.Cookie{"first": firstCookie, "second": secondCookie} {
		rec := doJSON(router, http.MethodPost, "/auth/refresh", "", []*http.Cookie{cookie})
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s device refresh after logout_all: status = %d", name, rec.Code)
		}
	}
}
