package hooks

import (
	"errors"
	"fmt"
)

// Error is a handler failure whose payload is returned to the caller verbatim.
// Payload is a string or a JSON-encodable object.
type Error struct {
	Payload any
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v: %v", e.Payload, e.Cause)
	}
	return fmt.Sprint(e.Payload)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// Fail returns an error whose payload is sent to the caller.
func Fail(payload any) error {
	return &Error{Payload: payload}
}

// FailWith is Fail with an underlying cause kept for logging.
func FailWith(payload any, cause error) error {
	return &Error{Payload: payload, Cause: cause}
}

// Reject is Fail for triggers: the platform aborts the save with reason.
func Reject(reason string) error {
	return &Error{Payload: reason}
}

// InternalErrorMessage is returned for failures without a caller-facing payload.
const InternalErrorMessage = "internal error"

// payloadOf extracts the caller-facing payload of err.
func payloadOf(err error) (any, bool) {
	var he *Error
	if errors.As(err, &he) {
		return he.Payload, true
	}
	return InternalErrorMessage, false
}
