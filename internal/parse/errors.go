package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/assetline/cloudhooks/internal/models"
)

// Store error codes that carry meaning for callers.
const (
	CodeObjectNotFound     = 101
	CodeInvalidSession     = 209
	CodeOperationForbidden = 119
)

// APIError represents an error response from the document store.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"error"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("parse: %d code=%d: %s", e.StatusCode, e.Code, e.Message)
}

// Is lets errors.Is match models.ErrNotFound for missing objects.
func (e *APIError) Is(target error) bool {
	return target == models.ErrNotFound && (e.Code == CodeObjectNotFound || e.StatusCode == http.StatusNotFound)
}

// IsNotFound returns true if the error reports a missing object.
func IsNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}

// IsUnauthorized returns true for rejected credentials or sessions.
func IsUnauthorized(err error) bool {
	var e *APIError
	if errors.As(err, &e) {
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden || e.Code == CodeInvalidSession
	}
	return false
}

// parseAPIError attempts to decode a JSON error body; falls back to raw text.
func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = string(body)
	}
	return apiErr
}
