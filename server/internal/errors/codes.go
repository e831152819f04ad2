// Package errors carries the structured error taxonomy shared by the session
// manager and the dispatch scheduler, so log lines and retry decisions key on
// stable codes instead of message text.
package errors

import (
	"fmt"
)

// ErrorCode identifies a failure class.
type ErrorCode string

const (
	// ErrCodeTransportFailed indicates a gateway or network failure.
	ErrCodeTransportFailed ErrorCode = "TRANSPORT_FAILED"
	// ErrCodeDataInvalid indicates malformed or inconsistent stored data.
	ErrCodeDataInvalid ErrorCode = "DATA_INVALID"
	// ErrCodePreconditionNotMet indicates a send was skipped because its
	// precondition (connected session, business hours) did not hold.
	ErrCodePreconditionNotMet ErrorCode = "PRECONDITION_NOT_MET"
	// ErrCodeTemplateUnresolved indicates a message referenced no deliverable
	// content and no resolvable template.
	ErrCodeTemplateUnresolved ErrorCode = "TEMPLATE_UNRESOLVED"
	// ErrCodeSessionFailed indicates the channel session entered FAILED.
	ErrCodeSessionFailed ErrorCode = "SESSION_FAILED"
	// ErrCodeRateLimitExceeded indicates the send limiter refused the pass.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeContextCanceled indicates the operation was canceled.
	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
)

// FlowError is a structured error with a stable code.
type FlowError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *FlowError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *FlowError) Unwrap() error {
	return e.Cause
}

// TransportFailed creates a transport failure error.
func TransportFailed(msg string, cause error) *FlowError {
	return &FlowError{Code: ErrCodeTransportFailed, Message: msg, Cause: cause}
}

// DataInvalid creates a data validation error.
func DataInvalid(msg string) *FlowError {
	return &FlowError{Code: ErrCodeDataInvalid, Message: msg}
}

// PreconditionNotMet creates a precondition error.
func PreconditionNotMet(msg string) *FlowError {
	return &FlowError{Code: ErrCodePreconditionNotMet, Message: msg}
}

// TemplateUnresolved creates a template resolution error.
func TemplateUnresolved(msg string, cause error) *FlowError {
	return &FlowError{Code: ErrCodeTemplateUnresolved, Message: msg, Cause: cause}
}

// SessionFailed creates a session failure error.
func SessionFailed(msg string, cause error) *FlowError {
	return &FlowError{Code: ErrCodeSessionFailed, Message: msg, Cause: cause}
}

// Wrap wraps an existing error under a code.
func Wrap(cause error, code ErrorCode, msg string) *FlowError {
	return &FlowError{Code: code, Message: msg, Cause: cause}
}

// IsCode checks whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	if flowErr, ok := err.(*FlowError); ok {
		return flowErr.Code == code
	}
	return false
}

// CodeOf extracts the code from any error, falling back to the default.
func CodeOf(err error, defaultCode ErrorCode) ErrorCode {
	if flowErr, ok := err.(*FlowError); ok {
		return flowErr.Code
	}
	return defaultCode
}
