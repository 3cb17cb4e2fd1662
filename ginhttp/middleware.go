package ginhttp

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	sessionkit "github.com/notablehq/sessionkit"
	"github.com/notablehq/sessionkit/ratelimit"
)

const authContextKey = "sessionkit.auth"

// AuthFromContext returns the identity RequireAuth stored for this request.
func AuthFromContext(c *gin.Context) (*sessionkit.AuthResult, bool) {
	value, ok := c.Get(authContextKey)
	if !ok {
		return nil, false
	}
	res, ok := value.(*sessionkit.AuthResult)
	return res, ok
}

// RequireAuth aborts with 401 unless the request carries a valid bearer
// access token.
func RequireAuth(engine *sessionkit.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const bearer = "Bearer "
		if !strings.HasPrefix(header, bearer) || header == bearer {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		res, err := engine.Validate(header[len(bearer):])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if res.ExpiringSoon {
			c.Header("X-Token-Expiring-Soon", "true")
		}
		c.Set(authContextKey, res)
		c.Next()
	}
}

// rateLimited applies check-then-record admission around the remaining
// handlers in the chain. A nil limiter is a no-op; limiter outages fail open.
func rateLimited(limiter *ratelimit.Limiter) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}

	policy := limiter.Policy()

	return func(c *gin.Context) {
		key := c.ClientIP()

		res, err := limiter.Check(c.Request.Context(), key)
		if err == nil {
			if res.Blocked {
				retryAfter := int(timeUntil(res.ResetAt).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				c.Header("Retry-After", strconv.Itoa(retryAfter))
				writeLimitHeaders(c, policy, res)
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
				return
			}
			writeLimitHeaders(c, policy, res)
		}

		c.Next()

		status := c.Writer.Status()
		switch {
		case status >= 400 && status < 500:
			_ = limiter.Increment(c.Request.Context(), key)
		case status < 400:
			_ = limiter.Reset(c.Request.Context(), key)
		}
	}
}

func writeLimitHeaders(c *gin.Context, policy ratelimit.Policy, res ratelimit.Result) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(policy.MaxAttempts))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

// requestContext tags the request context with caller metadata for audit
// events.
func requestContext(c *gin.Context) context.Context {
	ctx := sessionkit.WithClientIP(c.Request.Context(), c.ClientIP())
	return sessionkit.WithUserAgent(ctx, c.Request.UserAgent())
}

func timeUntil(t time.Time) time.Duration {
	d := time.Until(t)
	if d < 0 {
		return 0
	}
	return d
}
