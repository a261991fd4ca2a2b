package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/assetline/cloudhooks/internal/hooks"
)

// WebhookHandler decodes platform webhook calls and answers with the
// registry's single terminal response.
type WebhookHandler struct {
	registry *hooks.Registry
	log      *logrus.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(registry *hooks.Registry, log *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{registry: registry, log: log}
}

func (h *WebhookHandler) bind(c *gin.Context) (*hooks.Request, bool) {
	var req hooks.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.WithError(err).WithField("path", c.Request.URL.Path).Warn("invalid webhook payload")
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid webhook payload")
		return nil, false
	}

	return &req, true
}

// Function handles POST /hooks/functions/:name.
func (h *WebhookHandler) Function(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, h.registry.RunFunction(c.Request.Context(), c.Param("name"), req))
}

// Trigger handles POST /hooks/triggers/:class/:trigger.
func (h *WebhookHandler) Trigger(c *gin.Context) {
	class, trigger := c.Param("class"), c.Param("trigger")

	req, ok := h.bind(c)
	if !ok {
		return
	}
	req.TriggerName = trigger

	c.JSON(http.StatusOK, h.registry.RunTrigger(c.Request.Context(), class, trigger, req))
}
