// Package errors provides standardized error handling for the query pipeline.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeRegistryLoadFailed ErrorCode = "REGISTRY_LOAD_FAILED"

	ErrCodeRoutingFailed     ErrorCode = "ROUTING_FAILED"
	ErrCodeRoutingAPITimeout ErrorCode = "ROUTING_API_TIMEOUT"

	ErrCodeGeocodeFailed   ErrorCode = "GEOCODE_FAILED"
	ErrCodeGeocodeNotFound ErrorCode = "GEOCODE_NOT_FOUND"

	ErrCodeExtractionFailed ErrorCode = "EXTRACTION_FAILED"

	ErrCodeProviderFetchFailed ErrorCode = "PROVIDER_FETCH_FAILED"
	ErrCodeProviderTimeout     ErrorCode = "PROVIDER_TIMEOUT"
	ErrCodeProviderBadPayload  ErrorCode = "PROVIDER_BAD_PAYLOAD"

	ErrCodeLLMTimeout          ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMCompletionFailed ErrorCode = "LLM_COMPLETION_FAILED"
	ErrCodeLLMInvalidJSON      ErrorCode = "LLM_INVALID_JSON"

	ErrCodeRetrievalFailed ErrorCode = "RETRIEVAL_FAILED"

	ErrCodeDuplicateSession ErrorCode = "DUPLICATE_SESSION"
	ErrCodeSessionNotFound  ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSessionStore     ErrorCode = "SESSION_STORE_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause so errors.Is/As see through the
// standardized wrapper.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// ==========================
// 2. Error Constructors
// ==========================

// NewRegistryLoadFailedError creates a non-retryable registry load error.
// This is fatal at startup: the process must not serve without a registry.
func NewRegistryLoadFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRegistryLoadFailed,
		Message:   "Pipeline registry source missing or malformed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewRoutingFailedError creates a retryable routing classification error.
func NewRoutingFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRoutingFailed,
		Message:   "Pipeline classification error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewGeocodeFailedError creates a retryable geocoder error.
func NewGeocodeFailedError(provider string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeGeocodeFailed,
		Message:   fmt.Sprintf("Geocoder '%s' error", provider),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewGeocodeNotFoundError creates a non-retryable place-not-found error.
func NewGeocodeNotFoundError(place string) *StandardError {
	return &StandardError{
		Code:      ErrCodeGeocodeNotFound,
		Message:   "Place name could not be geocoded",
		Details:   fmt.Sprintf("place: %s", place),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewExtractionFailedError creates a non-retryable extraction error.
// Extraction failures are treated as "no hint" downstream, never surfaced.
func NewExtractionFailedError(kind string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExtractionFailed,
		Message:   fmt.Sprintf("Field extraction '%s' failed", kind),
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewProviderFetchFailedError creates a retryable provider fetch error.
func NewProviderFetchFailedError(capability string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderFetchFailed,
		Message:   fmt.Sprintf("External provider '%s' error", capability),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewProviderTimeoutError creates a retryable provider timeout error.
func NewProviderTimeoutError(capability string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderTimeout,
		Message:   fmt.Sprintf("External provider '%s' timeout", capability),
		Details:   "call exceeded its deadline",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderBadPayloadError creates a non-retryable malformed payload error.
func NewProviderBadPayloadError(capability string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderBadPayload,
		Message:   fmt.Sprintf("External provider '%s' returned a malformed payload", capability),
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewLLMTimeoutError creates a retryable LLM timeout error.
func NewLLMTimeoutError(cause error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMTimeout,
		Message:   "LLM completion timeout",
		Details:   "completion call exceeded its deadline",
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewLLMCompletionFailedError creates a retryable LLM completion error.
func NewLLMCompletionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMCompletionFailed,
		Message:   "LLM completion API error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewLLMInvalidJSONError creates a non-retryable strict-JSON parse error.
// Callers fall back to defaults instead of retrying.
func NewLLMInvalidJSONError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMInvalidJSON,
		Message:   "LLM returned unparsable or schema-invalid JSON",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewRetrievalFailedError creates a retryable document retrieval error.
func NewRetrievalFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRetrievalFailed,
		Message:   "Document retrieval error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewDuplicateSessionError creates a non-retryable duplicate session error.
func NewDuplicateSessionError(sessionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateSession,
		Message:   "Session already pending",
		Details:   fmt.Sprintf("sessionId: %s", sessionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionStoreError creates a retryable session store error.
func NewSessionStoreError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionStore,
		Message:   "Session store operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// GetRetryCount returns the recommended retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeRoutingFailed,
		ErrCodeProviderFetchFailed,
		ErrCodeLLMCompletionFailed,
		ErrCodeRetrievalFailed,
		ErrCodeSessionStore:
		return 3

	case ErrCodeGeocodeFailed,
		ErrCodeProviderTimeout,
		ErrCodeRoutingAPITimeout:
		return 2

	case ErrCodeLLMTimeout:
		return 1

	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "REGISTRY") || strings.Contains(codeStr, "ROUTING"):
		return "ROUTING"
	case strings.Contains(codeStr, "GEOCODE"):
		return "GEO"
	case strings.Contains(codeStr, "PROVIDER"):
		return "PROVIDER"
	case strings.Contains(codeStr, "LLM") || strings.Contains(codeStr, "EXTRACTION"):
		return "AI"
	case strings.Contains(codeStr, "SESSION"):
		return "SESSION"
	case strings.Contains(codeStr, "RETRIEVAL"):
		return "RETRIEVAL"
	default:
		return "OTHER"
	}
}
