package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tenantops/platform-core/internal/db"
)

type RateLimitConfigRequest struct {
	LimitType       db.LimitType `json:"limit_type" binding:"required,oneof=api web webhook other"`
	MaxRequests     int          `json:"max_requests" binding:"required,min=1"`
	WindowSeconds   int          `json:"window_seconds" binding:"required,min=1"`
	BurstLimit      int          `json:"burst_limit"`
	ThrottlePercent int          `json:"throttle_percent"`
	BlockSeconds    int          `json:"block_seconds"`
	IPAllowList     []string     `json:"ip_allow_list"`
	IPDenyList      []string     `json:"ip_deny_list"`
}

func (h *Handler) GetRateLimitPolicy(c *gin.Context) {
	limitType := db.LimitType(c.DefaultQuery("type", string(db.LimitTypeAPI)))

	policy, err := h.rateLimits.GetConfig(c.Request.Context(), c.GetString("tenant_id"), limitType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve rate limit policy"})
		return
	}

	c.JSON(http.StatusOK, policy)
}

func (h *Handler) ListRateLimitConfigs(c *gin.Context) {
	configs, err := h.rateLimits.List(c.Request.Context(), c.GetString("tenant_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list rate limit configs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"configs": configs})
}

func (h *Handler) CreateRateLimitConfig(c *gin.Context) {
	var req RateLimitConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenantID := c.GetString("tenant_id")
	now := time.Now()
	cfg := &db.RateLimitConfig{
		ID:              uuid.New().String(),
		TenantID:        &tenantID,
		LimitType:       req.LimitType,
		MaxRequests:     req.MaxRequests,
		WindowSeconds:   req.WindowSeconds,
		BurstLimit:      req.BurstLimit,
		ThrottlePercent: req.ThrottlePercent,
		BlockSeconds:    req.BlockSeconds,
		IPAllowList:     req.IPAllowList,
		IPDenyList:      req.IPDenyList,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := h.rateLimits.Create(c.Request.Context(), cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create rate limit config"})
		return
	}

	c.JSON(http.StatusCreated, cfg)
}

func (h *Handler) UpdateRateLimitConfig(c *gin.Context) {
	var req RateLimitConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenantID := c.GetString("tenant_id")
	cfg := &db.RateLimitConfig{
		ID:              c.Param("id"),
		TenantID:        &tenantID,
		LimitType:       req.LimitType,
		MaxRequests:     req.MaxRequests,
		WindowSeconds:   req.WindowSeconds,
		BurstLimit:      req.BurstLimit,
		ThrottlePercent: req.ThrottlePercent,
		BlockSeconds:    req.BlockSeconds,
		IPAllowList:     req.IPAllowList,
		IPDenyList:      req.IPDenyList,
		IsActive:        true,
		UpdatedAt:       time.Now(),
	}

	if err := h.rateLimits.Update(c.Request.Context(), cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update rate limit config"})
		return
	}

	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) DeleteRateLimitConfig(c *gin.Context) {
	if err := h.rateLimits.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete rate limit config"})
		return
	}
	c.Status(http.StatusNoContent)
}
