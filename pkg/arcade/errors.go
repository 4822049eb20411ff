package arcade

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned before any I/O when no API key is set.
	ErrNotConfigured = errors.New("arcade API key not configured")
	// ErrRemoteUnavailable covers network and transport failures.
	ErrRemoteUnavailable = errors.New("arcade API unavailable")
	// ErrRemoteRejected matches every *RemoteError.
	ErrRemoteRejected = errors.New("arcade API rejected request")
	// ErrNotFound is returned when the remote reports no such tool.
	ErrNotFound = errors.New("tool not found")
	// ErrAuthorizationTimeout is returned when polling exceeds its budget.
	ErrAuthorizationTimeout = errors.New("authorization timed out")
	// ErrInvalidInput marks input rejected before dispatch.
	ErrInvalidInput = errors.New("invalid input")
)

// Machine codes carried by failed execution results.
const (
	CodeNotConfigured        = "not_configured"
	CodeRemoteUnavailable    = "remote_unavailable"
	CodeRemoteRejected       = "remote_rejected"
	CodeAuthorizationTimeout = "authorization_timeout"
	CodeAuthorizationFailed  = "authorization_failed"
	CodeNotFound             = "not_found"
	CodeInvalidInput         = "invalid_input"
	CodeToolDenied           = "tool_denied"
	CodeCanceled             = "canceled"
)

// RemoteError is a well-formed error response from the remote API.
type RemoteError struct {
	Operation  string
	StatusCode int
	Message    string
	Code       string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: remote returned status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s: remote returned status %d: %s", e.Operation, e.StatusCode, e.Message)
}

// Is lets callers classify a RemoteError with errors.Is.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrRemoteRejected:
		return true
	case ErrNotFound:
		return e.StatusCode == 404
	}
	return false
}

// Code maps an error to its machine code. Unknown errors map to
// remote_rejected so they are never presented without a code.
func Code(err error) string {
	var remoteErr *RemoteError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotConfigured):
		return CodeNotConfigured
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrAuthorizationTimeout):
		return CodeAuthorizationTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrRemoteUnavailable):
		return CodeRemoteUnavailable
	case errors.As(err, &remoteErr):
		if remoteErr.Code != "" {
			return remoteErr.Code
		}
		return CodeRemoteRejected
	default:
		return CodeRemoteRejected
	}
}
