package shared

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTimeout            = fmt.Errorf("operation timed out")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")

	// Persistence errors
	ErrNotFound = fmt.Errorf("not found")
	ErrConflict = fmt.Errorf("conflict")
)

// Code is a machine-readable error code surfaced to API clients.
type Code string

const (
	CodeUnknown            Code = "UNKNOWN"
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeNotFound           Code = "NOT_FOUND"
	CodePositionExhausted  Code = "POSITION_EXHAUSTED"
	CodeDuplicatePosition  Code = "DUPLICATE_POSITION"
	CodeInvalidMove        Code = "INVALID_MOVE"
	CodeSlideOutOfRange    Code = "SLIDE_INDEX_OUT_OF_RANGE"
	CodeContentUnavailable Code = "CONTENT_UNAVAILABLE"
	CodeSessionClosed      Code = "SESSION_CLOSED"
	CodeConflict           Code = "CONFLICT"
	CodeUnavailable        Code = "UNAVAILABLE"
)

// HTTPStatus maps a code to the status written by the API.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidInput, CodeInvalidMove:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicatePosition, CodeConflict:
		return http.StatusConflict
	case CodeSessionClosed:
		return http.StatusUnprocessableEntity
	case CodeContentUnavailable, CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is the domain error type carrying a [Code].
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Human-readable message
	Metadata map[string]string // Additional context (slide ids, positions)
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
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

// NewError creates a domain error with a code and message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a domain error that wraps an underlying cause.
func WrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithMetadata returns a copy of e carrying the given metadata.
func (e *Error) WithMetadata(kv map[string]string) *Error {
	cp := *e
	cp.Metadata = kv
	return &cp
}

// Sentinel domain errors matched by code through [errors.Is].
var (
	ErrPositionExhausted  = NewError(CodePositionExhausted, "no position left between neighbors")
	ErrDuplicatePosition  = NewError(CodeDuplicatePosition, "two slides would share a position")
	ErrInvalidMove        = NewError(CodeInvalidMove, "move crosses a locked boundary")
	ErrSlideOutOfRange    = NewError(CodeSlideOutOfRange, "slide index outside the sequence")
	ErrContentUnavailable = NewError(CodeContentUnavailable, "content unavailable")
	ErrSessionClosed      = NewError(CodeSessionClosed, "session is completed")
)

// CodeOf extracts the [Code] of err, mapping plain sentinels to their closest code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrMissingArgument):
		return CodeInvalidInput
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrServiceUnavailable), errors.Is(err, ErrTimeout):
		return CodeUnavailable
	default:
		return CodeUnknown
	}
}
