// Package hooks dispatches platform webhook calls to registered function and
// trigger handlers and shapes their single terminal response.
package hooks

import (
	"encoding/json"
	"fmt"

	"github.com/assetline/cloudhooks/internal/models"
)

// Trigger names.
const (
	TriggerBeforeSave = "beforeSave"
)

// Request is the webhook payload sent by the platform.
type Request struct {
	Master         bool              `json:"master"`
	User           *models.User      `json:"user,omitempty"`
	InstallationID string            `json:"installationId,omitempty"`
	Params         json.RawMessage   `json:"params,omitempty"`
	Object         models.Document   `json:"object,omitempty"`
	Original       models.Document   `json:"original,omitempty"`
	TriggerName    string            `json:"triggerName,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	IP             string            `json:"ip,omitempty"`
}

// DecodeParams unmarshals the function parameters into v.
func (r *Request) DecodeParams(v any) error {
	if len(r.Params) == 0 {
		return nil
	}

	if err := json.Unmarshal(r.Params, v); err != nil {
		return fmt.Errorf("decoding params: %w", err)
	}

	return nil
}

// HasIdentity reports whether the call carries an acting user or master privilege.
func (r *Request) HasIdentity() bool {
	return r.User != nil || r.Master
}

// Auth returns the store privilege of the acting user.
func (r *Request) Auth() models.Auth {
	if r.User != nil && r.User.SessionToken != "" {
		return models.Session(r.User.SessionToken)
	}
	return models.Auth{}
}

// Response is the platform's webhook response envelope. Exactly one of
// Success and Error is set.
type Response struct {
	Success any `json:"success,omitempty"`
	Error   any `json:"error,omitempty"`
}

// MarshalJSON always emits the success key for successful responses, even
// when the payload is null.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(map[string]any{"error": r.Error})
	}
	return json.Marshal(map[string]any{"success": r.Success})
}
