package ginhttp

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	sessionkit "github.com/notablehq/sessionkit"
)

// Options tunes the cookie transport. Zero values get the defaults below.
type Options struct {
	// RefreshCookieName defaults to "refresh_token".
	RefreshCookieName string
	// CookiePath scopes the refresh cookie so it is only sent to the auth
	// endpoints. Defaults to "/auth".
	CookiePath   string
	CookieDomain string
	// Secure marks cookies HTTPS-only. Leave false only in development.
	Secure bool
}

func (o Options) withDefaults() Options {
	if o.RefreshCookieName == "" {
		o.RefreshCookieName = "refresh_token"
	}
	if o.CookiePath == "" {
		o.CookiePath = "/auth"
	}
	return o
}

// Handler bundles the auth endpoints for one Engine.
type Handler struct {
	engine *sessionkit.Engine
	opts   Options
}

// NewHandler wraps the engine with HTTP handlers.
func NewHandler(engine *sessionkit.Engine, opts Options) *Handler {
	return &Handler{engine: engine, opts: opts.withDefaults()}
}

// Register mounts the auth routes on the given group. Login and refresh are
// wrapped with the engine's rate limiters when those are configured.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/login", rateLimited(h.engine.LoginLimiter()), h.Login)
	r.POST("/refresh", rateLimited(h.engine.RefreshLimiter()), h.Refresh)
	r.POST("/logout", h.Logout)
	r.POST("/logout_all", RequireAuth(h.engine), h.LogoutAll)
}

type loginInput struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// Login verifies credentials, sets the refresh cookie, and returns the
// access token.
func (h *Handler) Login(c *gin.Context) {
	var input loginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identifier and password required"})
		return
	}

	pair, err := h.engine.Login(requestContext(c), input.Identifier, input.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.setRefreshCookie(c, pair)
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken})
}

// Refresh rotates the session. The refresh token is read from its cookie
// only; a body-supplied token is ignored.
func (h *Handler) Refresh(c *gin.Context) {
	refreshToken, _ := c.Cookie(h.opts.RefreshCookieName)

	pair, err := h.engine.Refresh(requestContext(c), refreshToken)
	if err != nil {
		// A denied token is dead and its cookie goes with it. A transient
		// store failure keeps the cookie: the token was not consumed and
		// the client can simply retry.
		if !errors.Is(err, sessionkit.ErrStoreUnavailable) {
			h.clearRefreshCookie(c)
		}
		h.fail(c, err)
		return
	}

	h.setRefreshCookie(c, pair)
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken})
}

// Logout invalidates this device's refresh token and clears the cookie.
// Always succeeds from the client's point of view unless the store is down.
func (h *Handler) Logout(c *gin.Context) {
	refreshToken, _ := c.Cookie(h.opts.RefreshCookieName)

	if err := h.engine.Logout(requestContext(c), refreshToken); err != nil {
		h.fail(c, err)
		return
	}

	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// LogoutAll evicts every session of the authenticated user. Mounted behind
// RequireAuth.
func (h *Handler) LogoutAll(c *gin.Context) {
	auth, ok := AuthFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.engine.LogoutAll(requestContext(c), auth.UserID); err != nil {
		h.fail(c, err)
		return
	}

	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out everywhere"})
}

func (h *Handler) setRefreshCookie(c *gin.Context, pair *sessionkit.TokenPair) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		h.opts.RefreshCookieName,
		pair.RefreshToken,
		int(timeUntil(pair.RefreshExpiresAt).Seconds()),
		h.opts.CookiePath,
		h.opts.CookieDomain,
		h.opts.Secure,
		true, // HttpOnly, always
	)
}

func (h *Handler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.opts.RefreshCookieName, "", -1, h.opts.CookiePath, h.opts.CookieDomain, h.opts.Secure, true)
}

// fail maps engine sentinels to HTTP statuses. Bodies stay generic; the
// detail lives in audit events and logs.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sessionkit.ErrInvalidCredentials),
		errors.Is(err, sessionkit.ErrUnauthorized),
		errors.Is(err, sessionkit.ErrRefreshInvalid):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, sessionkit.ErrRefreshTampered),
		errors.Is(err, sessionkit.ErrRefreshReuse),
		errors.Is(err, sessionkit.ErrRefreshOwnerMismatch),
		errors.Is(err, sessionkit.ErrAccountUnverified):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, sessionkit.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
