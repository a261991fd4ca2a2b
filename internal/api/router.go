package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/assetline/cloudhooks/internal/domain"
	"github.com/assetline/cloudhooks/internal/hooks"
	"github.com/assetline/cloudhooks/internal/middleware"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Log         *logrus.Logger
	Registry    *hooks.Registry
	Checks      map[string]domain.Pinger
	WebhookKey  string
	CORSOrigins []string
	Version     string
}

// maxBodySize bounds a webhook payload, which carries at most one object and
// its original.
const maxBodySize = 2 << 20

func setupMiddleware(r *gin.Engine, deps *RouterDeps) {
	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.
	r.Use(middleware.RequestID(deps.Log))
	r.Use(ginLogger(deps.Log))
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.MaxBodySize(maxBodySize))

	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: deps.CORSOrigins,
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Content-Type", middleware.WebhookKeyHeader},
			MaxAge:       1 * time.Hour,
		}))
	}

	r.Use(middleware.Metrics())
}

func registerRoutes(ctx context.Context, r *gin.Engine, deps *RouterDeps) {
	health := NewHealthHandler(deps.Checks, deps.Log, deps.Version)
	webhooks := NewWebhookHandler(deps.Registry, deps.Log)

	r.GET("/health", health.Liveness)
	r.GET("/ready", health.Readiness)

	g := r.Group("/hooks")
	g.Use(middleware.WebhookKey(deps.WebhookKey, deps.Log, middleware.NewLockout(ctx, deps.Log)))
	g.POST("/functions/:name", webhooks.Function)
	g.POST("/triggers/:class/:trigger", webhooks.Trigger)
}

// NewRouter creates the gin engine with all middleware and routes. ctx bounds
// the background work of the middleware.
func NewRouter(ctx context.Context, deps *RouterDeps) http.Handler {
	r := gin.New()
	setupMiddleware(r, deps)
	registerRoutes(ctx, r, deps)

	return r
}

func ginLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		}
		if rid := c.GetString(middleware.RequestIDKey); rid != "" {
			fields["request_id"] = rid
		}
		if crid := c.GetString("client_request_id"); crid != "" {
			fields["client_request_id"] = crid
		}
		log.WithFields(fields).Info("request")
	}
}
