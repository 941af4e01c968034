package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// BackendError is the raw failure reported by a search backend transport.
type BackendError struct {
	StatusCode  int
	DisplayName string
	Message     string
	Path        string
}

func (e *BackendError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.DisplayName, e.Message)
	}
	return fmt.Sprintf("%s [%d] %s: %s", e.DisplayName, e.StatusCode, e.Path, e.Message)
}

// NewBackendError builds a BackendError for an HTTP status. The display
// name is the status text without spaces ("Not Found" -> "NotFound").
func NewBackendError(statusCode int, path, message string) *BackendError {
	name := strings.ReplaceAll(http.StatusText(statusCode), " ", "")
	if name == "" {
		name = "ResponseError"
	}
	return &BackendError{
		StatusCode:  statusCode,
		DisplayName: name,
		Message:     message,
		Path:        path,
	}
}

// SearchError is the normalized failure of a search invocation.
type SearchError struct {
	Status  int    `json:"status"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("SearchError[%d] %s: %s", e.Status, e.Title, e.Message)
}

// NewSearchError normalizes any backend error into a SearchError.
func NewSearchError(err error) *SearchError {
	var searchErr *SearchError
	if stderrors.As(err, &searchErr) {
		return searchErr
	}

	var backendErr *BackendError
	if stderrors.As(err, &backendErr) {
		return &SearchError{
			Status:  backendErr.StatusCode,
			Title:   backendErr.DisplayName,
			Message: backendErr.Message,
			Path:    backendErr.Path,
		}
	}

	return &SearchError{
		Title:   "ConnectionError",
		Message: err.Error(),
	}
}
