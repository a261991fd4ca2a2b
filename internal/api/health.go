// Package api provides the HTTP surface of the webhook server.
package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/assetline/cloudhooks/internal/domain"
)

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	checks    map[string]domain.Pinger
	log       *logrus.Logger
	version   string
	startTime time.Time
}

// NewHealthHandler creates a HealthHandler. checks maps a dependency name to
// its ping; nil entries are skipped.
func NewHealthHandler(checks map[string]domain.Pinger, log *logrus.Logger, version string) *HealthHandler {
	return &HealthHandler{
		checks:    checks,
		log:       log,
		version:   version,
		startTime: time.Now(),
	}
}

type healthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Liveness handles GET /health.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	})
}

// Readiness handles GET /ready by pinging every configured dependency.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "ready", http.StatusOK
	results := make(map[string]string, len(names))

	for _, name := range names {
		p := h.checks[name]
		if p == nil {
			continue
		}

		if err := p.Ping(ctx); err != nil {
			h.log.WithError(err).WithField("check", name).Error("readiness check failed")
			results[name] = "error"
			status, code = "not_ready", http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	c.JSON(code, readinessResponse{Status: status, Checks: results})
}
