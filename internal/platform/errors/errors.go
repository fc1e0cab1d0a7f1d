package errors

import (
	stderrors "errors"

	"github.com/google/uuid"
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code          Code              // Machine-readable error code
	Message       string            // Internal message (for logs/telemetry)
	Metadata      map[string]string // Additional context for templating
	Cause         error             // Wrapped underlying error
	CorrelationID string            // Shown to users, logged with the cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithMetadata creates a domain error with metadata for i18n templating.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: metadata,
	}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Correlated returns a copy of err carrying a fresh correlation id. Errors
// that are not domain errors are wrapped as CodeUnknown. A domain error that
// already has an id is returned unchanged.
func Correlated(err error) *Error {
	if err == nil {
		return nil
	}
	var domainErr *Error
	if stderrors.As(err, &domainErr) {
		if domainErr.CorrelationID != "" {
			return domainErr
		}
		copied := *domainErr
		copied.CorrelationID = uuid.NewString()
		return &copied
	}
	return &Error{
		Code:          CodeUnknown,
		Message:       "unexpected failure",
		Cause:         err,
		CorrelationID: uuid.NewString(),
	}
}

// CodeOf returns the code of the first domain error in err's chain.
func CodeOf(err error) Code {
	var domainErr *Error
	if stderrors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeUnknown
}
