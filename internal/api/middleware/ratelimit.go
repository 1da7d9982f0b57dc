package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/db"
	"github.com/tenantops/platform-core/internal/metrics"
	"github.com/tenantops/platform-core/internal/ratelimit"
)

// RateLimit enforces the tenant's effective policy for one limit type.
// Policy resolution errors fail open: the limiter protects the API, it
// is not allowed to take it down.
func RateLimit(guard *ratelimit.Guard, limitType db.LimitType, collector *metrics.Collector, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetString("tenant_id")
		if tenantID == "" {
			c.Next()
			return
		}

		decision, err := guard.Allow(c.Request.Context(), tenantID, limitType)
		if err != nil {
			logger.Warn("Rate limit check failed, admitting request",
				zap.Error(err),
				zap.String("tenant_id", tenantID),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Policy.MaxRequests))
		if remaining := int64(decision.Policy.MaxRequests) - decision.Count; remaining > 0 {
			c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		} else {
			c.Header("X-RateLimit-Remaining", "0")
		}

		if !decision.Allowed {
			if collector != nil {
				collector.RecordRateLimitRejection(tenantID, string(limitType))
			}
			c.Header("Retry-After", strconv.Itoa(int(decision.Policy.Window.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}

		c.Next()
	}
}
