package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tenantops/platform-core/internal/webhooks"
)

type DispatchRequest struct {
	Event   string                 `json:"event" binding:"required"`
	Payload map[string]interface{} `json:"payload"`
	Sync    bool                   `json:"sync"`
}

type DispatchBatchRequest struct {
	Events []struct {
		Event   string                 `json:"event" binding:"required"`
		Payload map[string]interface{} `json:"payload"`
	} `json:"events" binding:"required,min=1"`
	Sync bool `json:"sync"`
}

// DispatchEvent fans one event out to the tenant's subscribed webhooks.
// Async is the default; sync delivery blocks until every endpoint has
// been attempted.
func (h *Handler) DispatchEvent(c *gin.Context) {
	var req DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.dispatcher.Dispatch(
		c.Request.Context(), c.GetString("tenant_id"), req.Event, req.Payload, !req.Sync,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to dispatch event"})
		return
	}

	c.JSON(http.StatusAccepted, result)
}

func (h *Handler) DispatchBatch(c *gin.Context) {
	var req DispatchBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events := make([]webhooks.Event, len(req.Events))
	for i, e := range req.Events {
		events[i] = webhooks.Event{Name: e.Event, Payload: e.Payload}
	}

	total, err := h.dispatcher.DispatchBatch(
		c.Request.Context(), c.GetString("tenant_id"), events, !req.Sync,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "One or more events failed to dispatch",
			"dispatched": total,
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"dispatched": total})
}
