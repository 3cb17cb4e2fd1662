package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	sessionkit "github.com/notablehq/sessionkit"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the identity Guard injected for this
// request.
func AuthResultFromContext(ctx context.Context) (*sessionkit.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*sessionkit.AuthResult)
	return res, ok
}

// ExpiringSoonHeader is set to "true" on responses served under an access
// token close to expiry, hinting the client to refresh proactively.
const ExpiringSoonHeader = "X-Token-Expiring-Soon"

// Guard rejects requests without a valid bearer access token. The validated
// identity is injected into the request context together with the caller's
// IP and user agent for audit logging.
func Guard(engine *sessionkit.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.Validate(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if res.ExpiringSoon {
				w.Header().Set(ExpiringSoonHeader, "true")
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			ctx = sessionkit.WithClientIP(ctx, ClientIP(r))
			ctx = sessionkit.WithUserAgent(ctx, r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

// ClientIP extracts the caller address without the port. Deliberately
// ignores X-Forwarded-For; terminate that at the proxy layer.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
