package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/assetline/cloudhooks/internal/api"
	"github.com/assetline/cloudhooks/internal/domain"
	"github.com/assetline/cloudhooks/internal/hooks"
	"github.com/assetline/cloudhooks/internal/middleware"
)

const testWebhookKey = "test-webhook-key-0123456789"

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)

	return l
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// newTestRouter builds the full router around reg.
func newTestRouter(ctx context.Context, reg *hooks.Registry, checks map[string]domain.Pinger) http.Handler {
	return api.NewRouter(ctx, &api.RouterDeps{
		Log:        testLogger(),
		Registry:   reg,
		Checks:     checks,
		WebhookKey: testWebhookKey,
		Version:    "test-v1",
	})
}

// doRequest performs an HTTP request and returns the recorder. A non-empty
// key is sent as the webhook key.
func doRequest(h http.Handler, method, path, body, key string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, http.NoBody)
	}

	if key != "" {
		req.Header.Set(middleware.WebhookKeyHeader, key)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	return w
}
