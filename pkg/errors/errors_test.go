package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaxonomy(t *testing.T) {
	tests := []struct {
		sentinel error
		code     string
		status   int
	}{
		{ErrInvalidInput, "INVALID_INPUT", http.StatusBadRequest},
		{ErrStoryNotFound, "STORY_NOT_FOUND", http.StatusNotFound},
		{ErrMethodNotAllowed, "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed},
		{ErrRateLimited, "RATE_LIMITED", http.StatusTooManyRequests},
		{ErrDatabase, "DATABASE_ERROR", http.StatusInternalServerError},
		{ErrInternal, "INTERNAL_ERROR", http.StatusInternalServerError},
		{ErrGenerationFailed, "AI_GENERATION_FAILED", http.StatusBadGateway},
		{ErrGenerationDown, "AI_API_UNAVAILABLE", http.StatusServiceUnavailable},
		{ErrTimeout, "REQUEST_TIMEOUT", http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			appErr := New(tt.sentinel, "boom")
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.status, appErr.StatusCode)

			wrapped := fmt.Errorf("handler: %w", appErr)
			assert.Equal(t, tt.code, Code(wrapped))
			assert.Equal(t, tt.status, HTTPStatusCode(wrapped))
			assert.ErrorIs(t, wrapped, tt.sentinel)
		})
	}
}

func TestUnclassifiedErrorIsInternal(t *testing.T) {
	err := errors.New("something odd")
	assert.Equal(t, CodeInternalError, Code(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusCode(err))
}

func TestBareSentinelAndDeadline(t *testing.T) {
	assert.Equal(t, CodeStoryNotFound, Code(fmt.Errorf("lookup: %w", ErrStoryNotFound)))
	assert.Equal(t, CodeRequestTimeout, Code(fmt.Errorf("upstream: %w", context.DeadlineExceeded)))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("fk violation")
	err := Wrap(ErrDatabase, cause, "failed to record read")

	assert.ErrorIs(t, err, ErrDatabase)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeDatabaseError, err.Code)
	assert.Equal(t, "failed to record read", err.Message)
}

func TestWithDetails(t *testing.T) {
	base := New(ErrInvalidInput, "validation failed")
	detailed := base.WithDetails(map[string]string{"story_id": "required"})

	assert.Nil(t, base.Details)
	assert.Equal(t, map[string]string{"story_id": "required"}, detailed.Details)
}
