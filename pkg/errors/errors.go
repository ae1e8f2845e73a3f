// Package errors defines the service's error taxonomy. Each sentinel maps to a
// stable machine-readable code and an HTTP status; AppError attaches a
// caller-facing message and optional details.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrStoryNotFound    = errors.New("story not found")
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrDatabase         = errors.New("database error")
	ErrInternal         = errors.New("internal error")
	ErrGenerationFailed = errors.New("ai generation failed")
	ErrGenerationDown   = errors.New("ai api unavailable")
	ErrTimeout          = errors.New("operation timed out")
)

// Error codes as they appear on the wire.
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeStoryNotFound    = "STORY_NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeDatabaseError    = "DATABASE_ERROR"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeGenerationFailed = "AI_GENERATION_FAILED"
	CodeGenerationDown   = "AI_API_UNAVAILABLE"
	CodeRequestTimeout   = "REQUEST_TIMEOUT"
)

var taxonomy = []struct {
	sentinel error
	code     string
	status   int
}{
	{ErrInvalidInput, CodeInvalidInput, http.StatusBadRequest},
	{ErrStoryNotFound, CodeStoryNotFound, http.StatusNotFound},
	{ErrMethodNotAllowed, CodeMethodNotAllowed, http.StatusMethodNotAllowed},
	{ErrRateLimited, CodeRateLimited, http.StatusTooManyRequests},
	{ErrDatabase, CodeDatabaseError, http.StatusInternalServerError},
	{ErrGenerationFailed, CodeGenerationFailed, http.StatusBadGateway},
	{ErrGenerationDown, CodeGenerationDown, http.StatusServiceUnavailable},
	{ErrTimeout, CodeRequestTimeout, http.StatusGatewayTimeout},
	{context.DeadlineExceeded, CodeRequestTimeout, http.StatusGatewayTimeout},
	{ErrInternal, CodeInternalError, http.StatusInternalServerError},
}

type AppError struct {
	Err        error
	Code       string
	Message    string
	StatusCode int
	Details    any
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of e carrying details for the response body.
func (e *AppError) WithDetails(details any) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// New builds an AppError whose code and status derive from the sentinel.
func New(sentinel error, message string) *AppError {
	code, status := classify(sentinel)
	return &AppError{
		Err:        sentinel,
		Code:       code,
		Message:    message,
		StatusCode: status,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return New(sentinel, fmt.Sprintf(format, args...))
}

// Wrap is like New but keeps cause in the chain so errors.Is still sees it.
func Wrap(sentinel error, cause error, message string) *AppError {
	e := New(sentinel, message)
	e.Err = fmt.Errorf("%w: %w", sentinel, cause)
	return e
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	_, status := classify(err)
	return status
}

// Code returns the wire code for err, INTERNAL_ERROR when unclassified.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	code, _ := classify(err)
	return code
}

func classify(err error) (string, int) {
	for _, t := range taxonomy {
		if errors.Is(err, t.sentinel) {
			return t.code, t.status
		}
	}
	return CodeInternalError, http.StatusInternalServerError
}
