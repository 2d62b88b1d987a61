package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssistantFailureCarriesPromptAndCause(t *testing.T) {
	err := NewAssistantFailure("Hello", io.ErrUnexpectedEOF)

	assert.True(t, stderrors.Is(err, io.ErrUnexpectedEOF))
	assert.True(t, err.Retryable())

	details, ok := err.Details.(AssistantFailureDetails)
	require.True(t, ok)
	assert.Equal(t, "Hello", details.Prompt)
}

func TestHasCodeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("send: %w", NewQuotaExhaustedError())

	assert.True(t, HasCode(wrapped, CodeQuotaExhausted))
	assert.True(t, Is(wrapped, NewQuotaExhaustedError()))
	assert.False(t, HasCode(wrapped, CodeUploadFailure))
	assert.False(t, NewQuotaExhaustedError().Retryable())
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	plain := FromError(stderrors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, plain.StatusCode)
	assert.Equal(t, "INTERNAL_ERROR", plain.Code)

	validation := NewValidationError("empty message")
	assert.Same(t, validation, FromError(fmt.Errorf("wrap: %w", validation)))
	assert.Equal(t, http.StatusBadRequest, GetStatusCode(validation))
	assert.Equal(t, CodeValidation, GetErrorCode(validation))
	assert.Equal(t, "UNKNOWN_ERROR", GetErrorCode(stderrors.New("x")))
}
