// Package httputil provides shared HTTP response helpers.
package httputil

import "github.com/gin-gonic/gin"

// RespondError writes a JSON error response and aborts the request. The body
// keeps the webhook envelope's "error" key so callers parse one shape.
func RespondError(c *gin.Context, status int, code, message string) {
	resp := gin.H{
		"error": message,
		"code":  code,
	}

	if rid := c.GetString("request_id"); rid != "" {
		resp["request_id"] = rid
	}

	c.AbortWithStatusJSON(status, resp)
}
