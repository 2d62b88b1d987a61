package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

// Error kinds surfaced to the UI layer. Transport and parsing failures are translated into
// one of these at the session boundary.
const (
	CodeQuotaExhausted   = "QUOTA_EXHAUSTED"
	CodeAssistantFailure = "ASSISTANT_FAILURE"
	CodeUploadFailure    = "UPLOAD_FAILURE"
	CodeDownloadFailure  = "DOWNLOAD_FAILURE"
	CodeValidation       = "VALIDATION_FAILURE"
)

// LimitReachedText is the fixed assistant text shown once a conversation hits its quota.
const LimitReachedText = "You have reached the message limit for this conversation. Start a new conversation to continue."

// AppError represents an application error with HTTP status code and error code
type AppError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	Stack      string `json:"-"`
	cause      error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause
func (e *AppError) Unwrap() error {
	return e.cause
}

// Retryable reports whether the UI should offer a retry affordance
func (e *AppError) Retryable() bool {
	switch e.Code {
	case CodeAssistantFailure, CodeUploadFailure, CodeDownloadFailure:
		return true
	default:
		return false
	}
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// WithCause records the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// NewError creates a new application error
func NewError(statusCode int, code string, message string) *AppError {
	return &AppError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Stack:      string(debug.Stack()),
	}
}

// NewQuotaExhaustedError is returned when the account or conversation hit its usage ceiling
func NewQuotaExhaustedError() *AppError {
	return NewError(http.StatusTooManyRequests, CodeQuotaExhausted, LimitReachedText)
}

// AssistantFailureDetails carries the prompt a retry should resubmit
type AssistantFailureDetails struct {
	Prompt string `json:"prompt"`
}

// NewAssistantFailure wraps a failed exchange; prompt is what a retry resubmits
func NewAssistantFailure(prompt string, cause error) *AppError {
	return NewError(http.StatusBadGateway, CodeAssistantFailure, "The assistant could not reply").
		WithDetails(AssistantFailureDetails{Prompt: prompt}).
		WithCause(cause)
}

// NewUploadFailure is returned when any file of a batch fails to upload
func NewUploadFailure(cause error) *AppError {
	return NewError(http.StatusBadGateway, CodeUploadFailure, "Attachment upload failed").WithCause(cause)
}

// NewDownloadFailure is returned when an attachment could not be fetched into the cache
func NewDownloadFailure(attachmentID string, cause error) *AppError {
	return NewError(http.StatusBadGateway, CodeDownloadFailure, "Attachment download failed").
		WithDetails(map[string]string{"attachment_id": attachmentID}).
		WithCause(cause)
}

// NewValidationError is returned for requests rejected locally before any network call
func NewValidationError(message string) *AppError {
	return NewError(http.StatusBadRequest, CodeValidation, message)
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(code string, message string) *AppError {
	return NewError(http.StatusBadRequest, code, message)
}

// NewUnauthorizedError creates a 401 Unauthorized error
func NewUnauthorizedError(code string, message string) *AppError {
	return NewError(http.StatusUnauthorized, code, message)
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(code string, message string) *AppError {
	return NewError(http.StatusNotFound, code, message)
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(code string, message string) *AppError {
	return NewError(http.StatusConflict, code, message)
}

// NewInternalServerError creates a 500 Internal Server Error
func NewInternalServerError(code string, message string) *AppError {
	return NewError(http.StatusInternalServerError, code, message)
}

// As extracts an AppError from err's chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is checks whether err carries an AppError with the target's code
func Is(err error, target *AppError) bool {
	return HasCode(err, target.Code)
}

// HasCode checks whether err carries an AppError with the given code
func HasCode(err error, code string) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}
