package middleware

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// WebhookKeyHeader carries the shared secret on every platform webhook call.
const WebhookKeyHeader = "X-Parse-Webhook-Key"

// keyTimingFloor is the minimum response time of a rejected key.
const keyTimingFloor = 50 * time.Millisecond

func enforceTimingFloor(start time.Time) {
	if elapsed := time.Since(start); elapsed < keyTimingFloor {
		time.Sleep(keyTimingFloor - elapsed)
	}
}

// WebhookKey rejects requests whose webhook key does not match key. With a
// non-nil lockout, clients that keep failing are refused before comparison.
func WebhookKey(key string, log *logrus.Logger, lockout *Lockout) gin.HandlerFunc {
	want := []byte(key)

	return func(c *gin.Context) {
		client := c.ClientIP()

		if lockout != nil && lockout.IsBlocked(client) {
			respondError(c, http.StatusTooManyRequests, "locked_out", "too many failed webhook key attempts")
			return
		}

		start := time.Now()
		got := c.GetHeader(WebhookKeyHeader)

		if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			log.WithFields(logrus.Fields{
				"client_ip":  client,
				"path":       c.Request.URL.Path,
				"request_id": c.GetString(RequestIDKey),
				"key_sent":   got != "",
			}).Warn("webhook key rejected")

			if lockout != nil {
				lockout.RecordFailure(client)
			}

			respondError(c, http.StatusUnauthorized, "unauthorized", "unauthorized")
			enforceTimingFloor(start)
			return
		}

		if lockout != nil {
			lockout.Reset(client)
		}

		c.Next()
	}
}
