package middleware

import (
	"net/http"

	sessionkit "github.com/notablehq/sessionkit"
)

// CSRFOptions tunes token transport. Zero values get the defaults below.
type CSRFOptions struct {
	// HeaderName carries the token on requests and freshly minted tokens on
	// responses. Default "X-CSRF-Token".
	HeaderName string
	// FormField is the fallback request field. Default "csrf_token".
	FormField string
	// CookieName holds the double-submit cookie. Default "csrf_token". The
	// cookie is deliberately not HttpOnly; the token is worthless without
	// the session it is bound to.
	CookieName string
	// Secure marks the cookie HTTPS-only.
	Secure bool
	// RotateAfterUse mints a replacement token once an unsafe request has
	// passed validation, so each token authorizes one state change.
	RotateAfterUse bool
}

func (o CSRFOptions) withDefaults() CSRFOptions {
	if o.HeaderName == "" {
		o.HeaderName = "X-CSRF-Token"
	}
	if o.FormField == "" {
		o.FormField = "csrf_token"
	}
	if o.CookieName == "" {
		o.CookieName = "csrf_token"
	}
	return o
}

// CSRF enforces CSRF tokens on state-changing methods and mints them on safe
// ones. Safe methods always set a fresh token cookie so a later unsafe
// request has something to send back; unsafe methods require both the
// caller-supplied token (header, form, or query, in that order) and the
// cookie to be present, and the supplied token must validate against the
// authenticated identity. Tokens are bound to that identity, so Guard must
// run first; requests without one fail closed with 403.
func CSRF(engine *sessionkit.Engine, opts CSRFOptions) func(http.Handler) http.Handler {
	opts = opts.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, ok := AuthResultFromContext(r.Context())
			if !ok || engine == nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			if safeMethod(r.Method) {
				mintToken(w, engine, auth.UserID, opts)
				next.ServeHTTP(w, r)
				return
			}

			token := requestToken(r, opts)
			cookie, err := r.Cookie(opts.CookieName)
			if token == "" || err != nil || cookie.Value == "" ||
				!engine.ValidateCSRF(token, auth.UserID) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			if opts.RotateAfterUse {
				// Response headers are immutable once the handler writes, so
				// the replacement token goes out as soon as validation
				// passes.
				mintToken(w, engine, auth.UserID, opts)
			}

			next.ServeHTTP(w, r)
		})
	}
}

func mintToken(w http.ResponseWriter, engine *sessionkit.Engine, sessionID string, opts CSRFOptions) {
	token, err := engine.CSRFToken(sessionID)
	if err != nil {
		return
	}
	w.Header().Set(opts.HeaderName, token)
	http.SetCookie(w, &http.Cookie{
		Name:     opts.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(engine.CSRF().TTL().Seconds()),
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func requestToken(r *http.Request, opts CSRFOptions) string {
	if token := r.Header.Get(opts.HeaderName); token != "" {
		return token
	}
	if token := r.PostFormValue(opts.FormField); token != "" {
		return token
	}
	return r.URL.Query().Get(opts.FormField)
}
