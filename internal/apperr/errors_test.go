package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raysh454/sitegen/internal/apperr"
)

func TestKindOf_UnwrapsWrappedErrors(t *testing.T) {
	t.Parallel()
	base := apperr.NewNotFound("job not found", nil)
	wrapped := fmt.Errorf("loading job: %w", base)

	assert.True(t, apperr.IsNotFound(wrapped))
	assert.False(t, apperr.IsTimeout(wrapped))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(wrapped))
}

func TestStatusCodes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, http.StatusRequestTimeout, apperr.NewTimeout("slow", nil).Status)
	assert.Equal(t, http.StatusServiceUnavailable, apperr.NewUnavailable("down", nil).Status)
	assert.Equal(t, http.StatusConflict, apperr.NewBackend(http.StatusConflict, "dup").Status)
}

func TestIsTransient(t *testing.T) {
	t.Parallel()
	assert.True(t, apperr.IsTransient(apperr.NewTransport("socket reset", errors.New("EOF"))))
	assert.True(t, apperr.IsTransient(apperr.NewUnavailable("refused", nil)))
	assert.False(t, apperr.IsTransient(apperr.NewBackend(http.StatusBadRequest, "bad input")))
	assert.False(t, apperr.IsTransient(errors.New("plain")))
}

func TestUserMessage(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("generate: %w", apperr.NewBackend(http.StatusUnprocessableEntity, "Company name is required"))
	assert.Equal(t, "Company name is required", apperr.UserMessage(err))
	assert.Equal(t, "plain", apperr.UserMessage(errors.New("plain")))
	assert.Equal(t, "", apperr.UserMessage(nil))
}

func TestError_IncludesCause(t *testing.T) {
	t.Parallel()
	err := apperr.NewTimeout("request timed out", errors.New("context deadline exceeded"))
	assert.Contains(t, err.Error(), "TIMEOUT")
	assert.Contains(t, err.Error(), "context deadline exceeded")
	assert.ErrorIs(t, err, err.Cause)
}
