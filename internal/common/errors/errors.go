// Package errors provides the standardized error taxonomy of the search courier
// and its conversion to BPMN errors for the Zeebe job worker.
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
	ErrCodeElasticsearchConnectionFailed ErrorCode = "ELASTICSEARCH_CONNECTION_FAILED"
	ErrCodeSearchQueryFailed             ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeSearchTimeout                 ErrorCode = "SEARCH_TIMEOUT"
	ErrCodeSearchAborted                 ErrorCode = "SEARCH_ABORTED"

	ErrCodeInvalidSearchInput  ErrorCode = "INVALID_SEARCH_INPUT"
	ErrCodeNoViableStrategy    ErrorCode = "NO_VIABLE_STRATEGY"
	ErrCodeSerializationFailed ErrorCode = "SERIALIZATION_FAILED"

	ErrCodeSecondaryUnavailable ErrorCode = "SECONDARY_UNAVAILABLE"
	ErrCodeSettingsStoreFailed  ErrorCode = "SETTINGS_STORE_FAILED"
	ErrCodeAuditWriteFailed     ErrorCode = "AUDIT_WRITE_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewElasticsearchConnectionFailedError creates a retryable Elasticsearch connection error.
func NewElasticsearchConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeElasticsearchConnectionFailed,
		Message:   "Elasticsearch connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchQueryFailedError wraps a primary backend failure.
func NewSearchQueryFailedError(searchErr *SearchError) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchQueryFailed,
		Message:   "Multi-search request failed",
		Details:   searchErr.Error(),
		Retryable: searchErr.Status == 0 || searchErr.Status >= 500,
		Metadata: map[string]interface{}{
			"status": searchErr.Status,
			"title":  searchErr.Title,
			"path":   searchErr.Path,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchTimeoutError creates a retryable search timeout error.
func NewSearchTimeoutError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchTimeout,
		Message:   "Multi-search timed out",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchAbortedError reports a search canceled by its caller.
func NewSearchAbortedError() *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchAborted,
		Message:   "Search was aborted",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidSearchInputError creates a non-retryable input validation error.
func NewInvalidSearchInputError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidSearchInput,
		Message:   "Search input validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNoViableStrategyError is returned when no registered strategy accepts an index pattern.
func NewNoViableStrategyError(indexPattern string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoViableStrategy,
		Message:   "No search strategy accepts the index pattern",
		Details:   fmt.Sprintf("indexPattern: %s", indexPattern),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSerializationFailedError wraps a fetch-params serializer failure.
func NewSerializationFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSerializationFailed,
		Message:   "Failed to serialize fetch params",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSecondaryUnavailableError records a secondary backend failure. It is
// never surfaced to search callers; it only feeds logs and metrics.
func NewSecondaryUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSecondaryUnavailable,
		Message:   "Secondary backend unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSettingsStoreFailedError wraps a settings store failure.
func NewSettingsStoreFailedError(key string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSettingsStoreFailed,
		Message:   "Settings store operation failed",
		Details:   fmt.Sprintf("key: %s, error: %s", key, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAuditWriteFailedError wraps a search audit insert failure.
func NewAuditWriteFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuditWriteFailed,
		Message:   "Search audit write failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// Generic constructors

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "TIMEOUT_ERROR",
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return &StandardError{
		Code:      "RESOURCE_NOT_FOUND",
		Message:   fmt.Sprintf("Resource not found in %s", service),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeElasticsearchConnectionFailed: "ELASTICSEARCH_CONNECTION_FAILED",
	ErrCodeSearchQueryFailed:             "SEARCH_QUERY_FAILED",
	ErrCodeSearchTimeout:                 "SEARCH_TIMEOUT",
	ErrCodeSearchAborted:                 "SEARCH_ABORTED",
	ErrCodeInvalidSearchInput:            "INVALID_SEARCH_INPUT",
	ErrCodeNoViableStrategy:              "NO_VIABLE_STRATEGY",
	ErrCodeSerializationFailed:           "SERIALIZATION_FAILED",
}

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeElasticsearchConnectionFailed,
		ErrCodeSearchQueryFailed,
		ErrCodeSettingsStoreFailed,
		ErrCodeAuditWriteFailed:
		return 3

	case ErrCodeSearchTimeout:
		return 2

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "SERIALIZATION") || strings.Contains(codeStr, "STRATEGY"):
		return "VALIDATION"
	case strings.Contains(codeStr, "SECONDARY"):
		return "SECONDARY"
	case strings.Contains(codeStr, "SETTINGS") || strings.Contains(codeStr, "AUDIT"):
		return "STORAGE"
	case strings.Contains(codeStr, "ELASTICSEARCH") || strings.Contains(codeStr, "SEARCH") || strings.Contains(codeStr, "INDEX"):
		return "SEARCH"
	default:
		return "OTHER"
	}
}
