package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/db"
)

type CreateWebhookRequest struct {
	ConnectorID    string            `json:"connector_id"`
	URL            string            `json:"url" binding:"required,url"`
	Secret         string            `json:"secret"`
	Events         []string          `json:"events" binding:"required,min=1"`
	Headers        map[string]string `json:"headers"`
	MaxAttempts    int               `json:"max_attempts"`
	TimeoutSeconds int               `json:"timeout_seconds"`
}

type UpdateWebhookRequest struct {
	URL            *string            `json:"url"`
	Secret         *string            `json:"secret"`
	Events         *[]string          `json:"events"`
	Headers        *map[string]string `json:"headers"`
	IsActive       *bool              `json:"is_active"`
	MaxAttempts    *int               `json:"max_attempts"`
	TimeoutSeconds *int               `json:"timeout_seconds"`
}

func (h *Handler) CreateWebhook(c *gin.Context) {
	var req CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	webhook := &db.Webhook{
		ID:             uuid.New().String(),
		TenantID:       c.GetString("tenant_id"),
		ConnectorID:    req.ConnectorID,
		URL:            req.URL,
		Secret:         req.Secret,
		Events:         req.Events,
		Headers:        req.Headers,
		IsActive:       true,
		MaxAttempts:    req.MaxAttempts,
		TimeoutSeconds: req.TimeoutSeconds,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if webhook.Headers == nil {
		webhook.Headers = map[string]string{}
	}

	if err := h.repo.CreateWebhook(c.Request.Context(), webhook); err != nil {
		h.logger.Error("Failed to create webhook", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create webhook"})
		return
	}

	c.JSON(http.StatusCreated, webhook)
}

func (h *Handler) ListWebhooks(c *gin.Context) {
	limit, offset := pagination(c)

	webhooks, err := h.repo.ListWebhooks(c.Request.Context(), c.GetString("tenant_id"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list webhooks"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"webhooks": webhooks})
}

func (h *Handler) GetWebhook(c *gin.Context) {
	webhook, err := h.repo.GetWebhook(c.Request.Context(), c.Param("id"), c.GetString("tenant_id"))
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Webhook not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load webhook"})
		return
	}

	c.JSON(http.StatusOK, webhook)
}

func (h *Handler) UpdateWebhook(c *gin.Context) {
	webhook, err := h.repo.GetWebhook(c.Request.Context(), c.Param("id"), c.GetString("tenant_id"))
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Webhook not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load webhook"})
		return
	}

	var req UpdateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.URL != nil {
		webhook.URL = *req.URL
	}
	if req.Secret != nil {
		webhook.Secret = *req.Secret
	}
	if req.Events != nil {
		webhook.Events = *req.Events
	}
	if req.Headers != nil {
		webhook.Headers = *req.Headers
	}
	if req.IsActive != nil {
		webhook.IsActive = *req.IsActive
	}
	if req.MaxAttempts != nil {
		webhook.MaxAttempts = *req.MaxAttempts
	}
	if req.TimeoutSeconds != nil {
		webhook.TimeoutSeconds = *req.TimeoutSeconds
	}
	webhook.UpdatedAt = time.Now()

	if err := h.repo.UpdateWebhook(c.Request.Context(), webhook); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update webhook"})
		return
	}

	c.JSON(http.StatusOK, webhook)
}

func (h *Handler) DeleteWebhook(c *gin.Context) {
	if err := h.repo.DeleteWebhook(c.Request.Context(), c.Param("id"), c.GetString("tenant_id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete webhook"})
		return
	}
	c.Status(http.StatusNoContent)
}

// TestWebhook fires a synthetic delivery so the customer can verify
// their endpoint and signature validation before going live.
func (h *Handler) TestWebhook(c *gin.Context) {
	webhook, err := h.repo.GetWebhook(c.Request.Context(), c.Param("id"), c.GetString("tenant_id"))
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Webhook not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load webhook"})
		return
	}

	result := h.deliverer.Test(c.Request.Context(), webhook)
	c.JSON(http.StatusOK, result)
}

func (h *Handler) ListWebhookLogs(c *gin.Context) {
	limit, offset := pagination(c)

	logs, err := h.repo.ListWebhookLogs(c.Request.Context(), c.Param("id"), c.GetString("tenant_id"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list webhook logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func pagination(c *gin.Context) (int, int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
