package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tenantops/platform-core/internal/db"
)

// TenantActive rejects requests from deactivated accounts. Runs after
// AuthRequired, which puts tenant_id in the context.
func TenantActive(repo *db.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetString("tenant_id")
		if tenantID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Tenant not resolved"})
			c.Abort()
			return
		}

		tenant, err := repo.GetTenant(c.Request.Context(), tenantID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unknown tenant"})
			c.Abort()
			return
		}
		if !tenant.IsActive {
			c.JSON(http.StatusForbidden, gin.H{"error": "Account is disabled"})
			c.Abort()
			return
		}

		c.Next()
	}
}
