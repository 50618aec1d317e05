package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Scriptflow error code.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // 400
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrFileNotFound     ErrorCode = "FILE_NOT_FOUND"    // 404
	ErrTurnInProgress   ErrorCode = "TURN_IN_PROGRESS"  // 409
	ErrUnsupportedFile  ErrorCode = "UNSUPPORTED_FILE"  // 415
	ErrRecordUnreadable ErrorCode = "RECORD_UNREADABLE" // 422
	ErrInternal         ErrorCode = "INTERNAL"          // 500
	ErrStreamFailed     ErrorCode = "STREAM_FAILED"     // 502
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE" // 503
	ErrWriteFailed      ErrorCode = "WRITE_FAILED"      // 507
)

// ScriptflowError represents a structured error with code, status, and details.
type ScriptflowError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	cause error
}

// Error implements the error interface.
func (e *ScriptflowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *ScriptflowError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *ScriptflowError {
	return &ScriptflowError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a project cannot be found.
func NewNotFound(id int64) *ScriptflowError {
	return &ScriptflowError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("project not found: %d", id),
		Details: map[string]any{"id": id},
	}
}

// NewFileNotFound creates a 404 error for a missing upload source.
func NewFileNotFound(path string) *ScriptflowError {
	return &ScriptflowError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewTurnInProgress creates a 409 error when a chat turn is submitted while another is streaming.
func NewTurnInProgress() *ScriptflowError {
	return &ScriptflowError{
		Code:    ErrTurnInProgress,
		Status:  409,
		Message: "a chat turn is already in progress",
	}
}

// NewUnsupportedFile creates a 415 error for upload files with an unknown extension.
func NewUnsupportedFile(ext string, supported []string) *ScriptflowError {
	return &ScriptflowError{
		Code:    ErrUnsupportedFile,
		Status:  415,
		Message: fmt.Sprintf("unsupported file type %q (supported: %v)", ext, supported),
		Details: map[string]any{"extension": ext, "supported": supported},
	}
}

// NewRecordUnreadable creates a 422 error for a stored record that could not be
// brought up to the current schema.
func NewRecordUnreadable(id int64, err error) *ScriptflowError {
	return &ScriptflowError{
		Code:    ErrRecordUnreadable,
		Status:  422,
		Message: fmt.Sprintf("project %d could not be read: %v", id, err),
		Details: map[string]any{"id": id},
		cause:   err,
	}
}

// NewStoreUnavailable creates a 503 error when the store cannot be opened.
func NewStoreUnavailable(err error) *ScriptflowError {
	return &ScriptflowError{
		Code:    ErrStoreUnavailable,
		Status:  503,
		Message: fmt.Sprintf("store unavailable: %v", err),
		cause:   err,
	}
}

// NewWriteFailed creates a 507 error when the store rejects a write.
func NewWriteFailed(err error) *ScriptflowError {
	return &ScriptflowError{
		Code:    ErrWriteFailed,
		Status:  507,
		Message: fmt.Sprintf("write rejected: %v", err),
		cause:   err,
	}
}

// NewStreamFailed creates a 502 error when the AI collaborator fails mid-turn.
func NewStreamFailed(err error) *ScriptflowError {
	msg := "AI request failed"
	if err != nil {
		msg = fmt.Sprintf("AI request failed: %v", err)
	}
	return &ScriptflowError{
		Code:    ErrStreamFailed,
		Status:  502,
		Message: msg,
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the cause is kept in Details for logging.
func NewInternal(err error) *ScriptflowError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &ScriptflowError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
		cause:   err,
	}
}

// Is checks if err (or anything it wraps) is a ScriptflowError with the given code.
func Is(err error, code ErrorCode) bool {
	var sfErr *ScriptflowError
	if stderrors.As(err, &sfErr) {
		return sfErr.Code == code
	}
	return false
}
