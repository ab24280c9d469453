package types

import "fmt"

// ErrorCode represents a unified error code across the pipeline.
type ErrorCode string

// Provider / upstream error codes
const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrRateLimited         ErrorCode = "RATE_LIMITED"
	ErrUpstreamTimeout     ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError       ErrorCode = "UPSTREAM_ERROR"
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
)

// Pipeline error codes
const (
	ErrParseFailure   ErrorCode = "PARSE_FAILURE"
	ErrRetrieval      ErrorCode = "RETRIEVAL_ERROR"
	ErrEmptyContext   ErrorCode = "EMPTY_CONTEXT"
	ErrScheduler      ErrorCode = "SCHEDULER_ERROR"
	ErrNodePanic      ErrorCode = "NODE_PANIC"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrCacheError     ErrorCode = "CACHE_ERROR"
	ErrInvalidConfig  ErrorCode = "INVALID_CONFIG"
	ErrRunTerminated  ErrorCode = "RUN_TERMINATED"
	ErrRerankFailure  ErrorCode = "RERANK_FAILURE"
	ErrBudgetExceeded ErrorCode = "BUDGET_EXCEEDED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Node      string    `json:"node,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithNode tags the error with the graph node it escaped from.
func (e *Error) WithNode(node string) *Error {
	e.Node = node
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
