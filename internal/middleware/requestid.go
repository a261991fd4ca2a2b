// Package middleware provides the HTTP middleware of the webhook server.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// RequestIDKey is the gin context key for the request ID.
	RequestIDKey = "request_id"

	// RequestIDHeader is the HTTP header used to propagate the request ID.
	RequestIDHeader = "X-Request-ID"

	// ParseRequestIDHeader carries the platform's own request ID on webhook calls.
	ParseRequestIDHeader = "X-Parse-Request-Id"
)

// RequestID assigns a fresh UUID to every request. An ID sent by the caller
// is kept under "client_request_id" for log correlation only.
func RequestID(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()

		clientID := c.GetHeader(RequestIDHeader)
		if clientID == "" {
			clientID = c.GetHeader(ParseRequestIDHeader)
		}
		if clientID != "" {
			c.Set("client_request_id", clientID)
			log.WithFields(logrus.Fields{
				"request_id":        id,
				"client_request_id": clientID,
			}).Trace("request.correlated")
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
