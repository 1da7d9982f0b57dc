package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tenantops/platform-core/internal/billing"
)

type SubscribeRequest struct {
	Plan         string `json:"plan" binding:"required"`
	BillingCycle string `json:"billing_cycle" binding:"required,oneof=monthly yearly"`
}

type CancelRequest struct {
	Reason    string `json:"reason"`
	Immediate bool   `json:"immediate"`
}

type RecordUsageRequest struct {
	Metric   string `json:"metric" binding:"required"`
	Quantity int64  `json:"quantity" binding:"required,min=1"`
}

func (h *Handler) ListPlans(c *gin.Context) {
	plans, err := h.billing.ListPlans(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list plans"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

func (h *Handler) Subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.billing.Subscribe(c.Request.Context(), c.GetString("tenant_id"), req.Plan, req.BillingCycle)
	if errors.Is(err, billing.ErrAlreadySubscribed) {
		c.JSON(http.StatusConflict, gin.H{"error": "Tenant already has a subscription"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create subscription"})
		return
	}

	c.JSON(http.StatusCreated, sub)
}

func (h *Handler) CurrentSubscription(c *gin.Context) {
	sub, err := h.billing.Current(c.Request.Context(), c.GetString("tenant_id"))
	if errors.Is(err, billing.ErrNoSubscription) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No subscription"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load subscription"})
		return
	}

	c.JSON(http.StatusOK, sub)
}

func (h *Handler) CancelSubscription(c *gin.Context) {
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.billing.Cancel(
		c.Request.Context(), c.Param("id"), c.GetString("tenant_id"), req.Reason, req.Immediate,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel subscription"})
		return
	}

	c.JSON(http.StatusOK, sub)
}

// ModuleAccess answers the gating question for one module: does the
// tenant's current subscription grant it.
func (h *Handler) ModuleAccess(c *gin.Context) {
	module := c.Param("module")

	allowed, err := h.billing.HasModuleAccess(c.Request.Context(), c.GetString("tenant_id"), module)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check module access"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"module": module, "allowed": allowed})
}

func (h *Handler) RecordUsage(c *gin.Context) {
	var req RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.billing.RecordUsage(c.Request.Context(), c.GetString("tenant_id"), req.Metric, req.Quantity)
	if errors.Is(err, billing.ErrNoSubscription) {
		c.JSON(http.StatusConflict, gin.H{"error": "No active subscription"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record usage"})
		return
	}

	c.JSON(http.StatusCreated, record)
}

func (h *Handler) ListUsage(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	records, err := h.billing.ListUsage(c.Request.Context(), tenantID)
	if errors.Is(err, billing.ErrNoSubscription) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No subscription"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list usage"})
		return
	}

	if metric := c.Query("metric"); metric != "" {
		pct, err := h.billing.UsagePercentage(c.Request.Context(), tenantID, metric)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"records": records, "percentage": pct})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"records": records})
}
