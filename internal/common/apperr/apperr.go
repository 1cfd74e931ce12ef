// Package apperr provides the proxy's error taxonomy and its mapping onto
// JSON-RPC 2.0 error codes, in place of exceptions-for-control-flow: every
// fallible operation returns an error the dispatcher can inspect with
// errors.As and translate at the wire boundary.
package apperr

import (
	"errors"
	"fmt"

	"github.com/kandev/claude-acp-agent/internal/validate"
)

// Code identifies the semantic error kind, independent of its JSON-RPC
// numeric mapping, so callers can branch on it with errors.As.
type Code string

const (
	CodeMethodNotFound        Code = "method_not_found"
	CodeCapabilityNotSupported Code = "capability_not_supported"
	CodeInvalidParams         Code = "invalid_params"
	CodeSessionNotFound       Code = "session_not_found"
	CodeTurnInProgress        Code = "turn_in_progress"
	CodeSubprocessDead        Code = "subprocess_dead"
	CodeSubprocessSpawnFailed Code = "subprocess_spawn_failed"
	CodeInternal              Code = "internal"
)

// JSONRPCCode is the wire-level numeric code for a Code.
func (c Code) JSONRPCCode() int {
	switch c {
	case CodeMethodNotFound, CodeCapabilityNotSupported:
		return -32601
	case CodeInvalidParams:
		return -32602
	default:
		return -32603
	}
}

// AppError is the structured error type carried from any component to the
// dispatcher boundary. Data is serialized verbatim as the JSON-RPC error's
// "data" field.
type AppError struct {
	Code       Code
	Message    string
	Data       *Data
	Err        error
}

// Data is the structured payload attached to a JSON-RPC error response:
// kind of failure, the offending field, and an optional remediation hint.
type Data struct {
	Kind       string `json:"kind"`
	Field      string `json:"field,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New constructs an AppError with no structured data.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap constructs an AppError around an underlying error.
func Wrap(code Code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// MethodNotFound builds the error for a method the dispatcher does not
// recognize or that capability negotiation has not admitted.
func MethodNotFound(method string) *AppError {
	return &AppError{
		Code:    CodeMethodNotFound,
		Message: fmt.Sprintf("method %q not found", method),
		Data:    &Data{Kind: "method_not_found", Field: method},
	}
}

// CapabilityNotSupported builds the error for a method gated by a capability
// bit the agent does not declare (e.g. session/load while loadSession is
// false).
func CapabilityNotSupported(method, capability string) *AppError {
	return &AppError{
		Code:    CodeCapabilityNotSupported,
		Message: fmt.Sprintf("method %q requires capability %q", method, capability),
		Data:    &Data{Kind: "capability_not_supported", Field: capability},
	}
}

// SessionNotFound builds the error for an unknown sessionId.
func SessionNotFound(sessionID string) *AppError {
	return &AppError{
		Code:    CodeSessionNotFound,
		Message: fmt.Sprintf("session %q not found", sessionID),
		Data:    &Data{Kind: "session_not_found", Field: "sessionId"},
	}
}

// TurnInProgress builds the error for a second concurrent session/prompt.
func TurnInProgress(sessionID string) *AppError {
	return &AppError{
		Code:    CodeTurnInProgress,
		Message: fmt.Sprintf("session %q already has an active prompt turn", sessionID),
		Data:    &Data{Kind: "turn_in_progress", Field: "sessionId"},
	}
}

// FromValidation converts a validate.Error into an AppError with
// CodeInvalidParams, preserving kind/field/suggestion in Data.
func FromValidation(err error) *AppError {
	var verr *validate.Error
	if errors.As(err, &verr) {
		return &AppError{
			Code:    CodeInvalidParams,
			Message: verr.Error(),
			Data:    &Data{Kind: string(verr.Kind), Field: verr.Field, Suggestion: verr.Suggestion},
			Err:     err,
		}
	}
	return Wrap(CodeInvalidParams, "invalid parameters", err)
}

// As is a thin re-export of errors.As for call sites that only import apperr.
func As(err error, target any) bool {
	return errors.As(err, target)
}
