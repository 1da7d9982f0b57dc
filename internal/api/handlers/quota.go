package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tenantops/platform-core/internal/db"
)

func (h *Handler) ListQuotaWarnings(c *gin.Context) {
	warnings, err := h.quota.ActiveWarnings(c.Request.Context(), c.GetString("tenant_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list quota warnings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"warnings": warnings})
}

// DismissQuotaWarning closes the warning cycle. The next threshold
// breach for the same quota starts a fresh cycle with a fresh grace
// period.
func (h *Handler) DismissQuotaWarning(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	err := h.quota.Dismiss(c.Request.Context(), c.Param("id"), tenantID, tenantID)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Quota warning not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to dismiss quota warning"})
		return
	}

	c.Status(http.StatusNoContent)
}
