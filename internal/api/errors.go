package api

import (
	"github.com/gin-gonic/gin"

	"github.com/assetline/cloudhooks/internal/httputil"
	"github.com/assetline/cloudhooks/internal/metrics"
)

// Error codes for transport-level failures. Handler outcomes always use the
// webhook envelope instead.
const (
	ErrCodeInvalidRequest = "invalid_request"
)

func respondError(c *gin.Context, status int, code, message string) {
	metrics.ErrorsTotal.WithLabelValues(code).Inc()
	httputil.RespondError(c, status, code, message)
}
