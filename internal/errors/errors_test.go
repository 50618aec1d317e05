package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestScriptflowError_Error(t *testing.T) {
	err := &ScriptflowError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "project not found",
	}

	expected := "NOT_FOUND: project not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("title is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "title is required" {
		t.Errorf("Message = %q, want %q", err.Message, "title is required")
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound(42)

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["id"] != int64(42) {
		t.Errorf("Details[id] = %v, want 42", err.Details["id"])
	}
}

func TestNewUnsupportedFile(t *testing.T) {
	err := NewUnsupportedFile(".docx", []string{".txt", ".md"})

	if err.Code != ErrUnsupportedFile {
		t.Errorf("Code = %q, want %q", err.Code, ErrUnsupportedFile)
	}
	if err.Status != 415 {
		t.Errorf("Status = %d, want 415", err.Status)
	}
	if err.Details["extension"] != ".docx" {
		t.Errorf("Details[extension] = %v, want .docx", err.Details["extension"])
	}
}

func TestCauseIsUnwrappable(t *testing.T) {
	cause := fmt.Errorf("disk full")

	tests := []struct {
		name string
		err  *ScriptflowError
		code ErrorCode
		want int
	}{
		{"store unavailable", NewStoreUnavailable(cause), ErrStoreUnavailable, 503},
		{"write failed", NewWriteFailed(cause), ErrWriteFailed, 507},
		{"stream failed", NewStreamFailed(cause), ErrStreamFailed, 502},
		{"record unreadable", NewRecordUnreadable(7, cause), ErrRecordUnreadable, 422},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Status != tt.want {
				t.Errorf("Status = %d, want %d", tt.err.Status, tt.want)
			}
			if !stderrors.Is(tt.err, cause) {
				t.Error("errors.Is(err, cause) = false, want true")
			}
		})
	}
}

func TestNewInternal(t *testing.T) {
	t.Run("with error", func(t *testing.T) {
		err := NewInternal(fmt.Errorf("database connection failed"))

		if err.Code != ErrInternal {
			t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
		}
		if err.Message != "an internal error occurred" {
			t.Errorf("Message = %q, want %q", err.Message, "an internal error occurred")
		}
		if err.Details["internal_error"] != "database connection failed" {
			t.Errorf("Details[internal_error] = %q, want %q", err.Details["internal_error"], "database connection failed")
		}
	})

	t.Run("with nil", func(t *testing.T) {
		err := NewInternal(nil)
		if err.Details == nil {
			t.Error("Details should not be nil")
		}
	})
}

func TestIs(t *testing.T) {
	t.Run("matching code", func(t *testing.T) {
		if !Is(NewNotFound(1), ErrNotFound) {
			t.Error("Is() = false, want true")
		}
	})

	t.Run("non-matching code", func(t *testing.T) {
		if Is(NewNotFound(1), ErrWriteFailed) {
			t.Error("Is() = true, want false")
		}
	})

	t.Run("plain error", func(t *testing.T) {
		if Is(fmt.Errorf("plain error"), ErrNotFound) {
			t.Error("Is() = true, want false for plain error")
		}
	})

	t.Run("wrapped", func(t *testing.T) {
		wrapped := fmt.Errorf("finalize: %w", NewWriteFailed(nil))
		if !Is(wrapped, ErrWriteFailed) {
			t.Error("Is() = false, want true for wrapped error")
		}
	})
}
