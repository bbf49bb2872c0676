package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies application errors into the agent's taxonomy.
type ErrorCode string

const (
	// ErrCodeTransport covers discovery, HTTP registration and channel
	// failures. Retryable: drives reconnect backoff.
	ErrCodeTransport ErrorCode = "TRANSPORT_ERROR"

	// ErrCodeProtocol covers malformed or unexpected server messages.
	// The affected stream logs and continues.
	ErrCodeProtocol ErrorCode = "PROTOCOL_ERROR"

	// ErrCodeState covers operations attempted in an invalid session
	// state. Rejected without crashing the agent.
	ErrCodeState ErrorCode = "STATE_ERROR"

	// ErrCodeTimeout covers bounded waits that expired. Treated as
	// transport for retry purposes.
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// AppError is an application error with a code and structured context.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Reason returns the failure tag set with WithReason, or "".
func (e *AppError) Reason() string {
	if e.Context == nil {
		return ""
	}
	if r, ok := e.Context["reason"].(string); ok {
		return r
	}
	return ""
}

// WithReason tags the error with a session failure reason such as
// "discovery_failed" or "session_registration_timeout".
func (e *AppError) WithReason(reason string) *AppError {
	return e.WithContext("reason", reason)
}

// NewAppError creates a new application error.
func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with an application error.
func WrapError(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

func NewTransportError(message string) *AppError {
	return NewAppError(ErrCodeTransport, message)
}

func NewProtocolError(message string) *AppError {
	return NewAppError(ErrCodeProtocol, message)
}

func NewStateError(message string) *AppError {
	return NewAppError(ErrCodeState, message)
}

func NewTimeoutError(message string) *AppError {
	return NewAppError(ErrCodeTimeout, message)
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message)
}

// GetAppError extracts an AppError from an error chain.
func GetAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsAppError checks if err carries an AppError anywhere in its chain.
func IsAppError(err error) bool {
	return GetAppError(err) != nil
}

// IsRetryable reports whether err is worth retrying: transport failures and
// timeouts are, protocol and state errors are not. Unknown errors default
// to retryable so transient transport problems that were not wrapped keep
// driving the reconnect loop.
func IsRetryable(err error) bool {
	appErr := GetAppError(err)
	if appErr == nil {
		return true
	}
	return appErr.Code == ErrCodeTransport || appErr.Code == ErrCodeTimeout
}
