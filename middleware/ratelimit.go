package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/notablehq/sessionkit/ratelimit"
)

// KeyFunc derives the rate limit key for a request. The default keys on
// client IP.
type KeyFunc func(*http.Request) string

// statusRecorder captures the handler's status code so the limiter learns
// the request outcome.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// RateLimit wraps a credential-guessing surface (login, refresh) with
// admission control. Blocked keys receive 429 with Retry-After before the
// handler runs; otherwise the request is served and its outcome recorded:
// a 4xx response spends one attempt, a success restores the full budget.
//
// A nil limiter disables the middleware. Limiter outages fail open: an
// unreachable Redis must not take authentication down with it.
func RateLimit(limiter *ratelimit.Limiter, keyFn KeyFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = func(r *http.Request) string { return ClientIP(r) }
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}

		policy := limiter.Policy()

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)

			res, err := limiter.Check(r.Context(), key)
			if err != nil {
				logger.Warn("rate limit check failed, admitting request", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if res.Blocked {
				retryAfter := int(time.Until(res.ResetAt).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeLimitHeaders(w, policy, res)
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			writeLimitHeaders(w, policy, res)

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			switch {
			case rec.status >= 400 && rec.status < 500:
				if err := limiter.Increment(r.Context(), key); err != nil {
					logger.Warn("rate limit increment failed", "error", err)
				}
			case rec.status < 400:
				if err := limiter.Reset(r.Context(), key); err != nil {
					logger.Warn("rate limit reset failed", "error", err)
				}
			}
		})
	}
}

func writeLimitHeaders(w http.ResponseWriter, policy ratelimit.Policy, res ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(policy.MaxAttempts))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}
