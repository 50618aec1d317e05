package ai

import (
	"fmt"
	"net/http"
)

// ErrorResponse is the error envelope returned by OpenAI-compatible APIs:
// {"error":{"message":"...","code":"..."}}
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// APIError is an error response from the generation API.
type APIError struct {
	StatusCode int    `json:"-"`
	Type       string `json:"type"`
	Message    string `json:"message"`
	Code       any    `json:"code"`
	RequestID  string `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != nil && e.Code != "" {
		return fmt.Sprintf("API error %d (%v): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the request may succeed if repeated.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// IsAuthError reports whether the key was rejected.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}
