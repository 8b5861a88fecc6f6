package ratelimit

import (
	"log/slog"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/vpr-analytics/internal/errors"
)

// IPRateLimitMiddleware limits requests per client IP. A failing limiter
// never blocks traffic.
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		result, err := rl.AllowIP(c.Request.Context(), ip)
		if err != nil {
			slog.Error("Rate limit check failed", "ip", ip, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitIPBlock()
			}
			if rl.prom != nil {
				rl.prom.IncRateLimited()
			}

			retryAfter := strconv.Itoa(int(math.Ceil(result.RetryAfter.Seconds())))
			c.Header("Retry-After", retryAfter)
			_ = c.Error(apperrors.NewRateLimitError(retryAfter))
			c.Abort()
			return
		}

		c.Next()
	}
}
