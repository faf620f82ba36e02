package http

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stexs-auth/internal/service"
)

// RateLimitMiddleware consume un punto por IP antes de llegar al handler. Si
// el limitador falla la peticion sigue adelante.
func RateLimitMiddleware(limiter service.RateLimiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		res, err := limiter.Consume(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Error("rate limiter unavailable", zap.Error(err), zap.String("path", c.FullPath()))
			c.Next()
			return
		}

		header := c.Writer.Header()
		header.Set("X-RateLimit-Limit", strconv.Itoa(limiter.Points()))
		header.Set("X-RateLimit-Duration", strconv.Itoa(int(limiter.Duration()/time.Second)))
		header.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		header.Set("X-RateLimit-Reset", time.Now().Add(time.Duration(res.MsBeforeNext)*time.Millisecond).UTC().Format(time.RFC3339))

		if !res.Allowed {
			retryAfter := int(math.Round(float64(res.MsBeforeNext) / 1000))
			header.Set("Retry-After", strconv.Itoa(retryAfter))
			logger.Warn("rate limit exceeded",
				zap.String("client_ip", c.ClientIP()),
				zap.String("path", c.FullPath()),
			)
			respondErrors(c, http.StatusTooManyRequests, newErrorItem(
				codeRateLimitExceeded,
				"Too many requests. Please try again later.",
				gin.H{"retryAfter": retryAfter},
			))
			c.Abort()
			return
		}
		c.Next()
	}
}
