package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := NewInvalidInputError("call_type is required")
	assert.Contains(t, err.Error(), "INVALID_INPUT")
	assert.Contains(t, err.Error(), "call_type is required")
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("permission denied")
	err := NewMediaAccessError(cause)
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.Equal(t, http.StatusForbidden, err.HTTPStatus)
}

func TestGetAppError_UnwrapsChain(t *testing.T) {
	app := NewCallTerminalError()
	wrapped := fmt.Errorf("update failed: %w", app)
	got := GetAppError(wrapped)
	assert.NotNil(t, got)
	assert.Equal(t, ErrCodeCallTerminal, got.Code)
}

func TestGetAppError_NilForPlainError(t *testing.T) {
	assert.Nil(t, GetAppError(errors.New("plain")))
	assert.Nil(t, GetAppError(nil))
}

func TestWithContext(t *testing.T) {
	err := NewRecordingUploadError(errors.New("network")).WithContext("call_id", "c-1")
	assert.Equal(t, "c-1", err.Context["call_id"])
}
