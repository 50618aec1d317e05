package ops

import (
	"context"
	"strings"
	"testing"

	"github.com/hpungsan/scriptflow/internal/config"
	"github.com/hpungsan/scriptflow/internal/db"
	"github.com/hpungsan/scriptflow/internal/errors"
	"github.com/hpungsan/scriptflow/internal/project"
)

func stringPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func testStore(t *testing.T) *db.Store {
	t.Helper()
	s, err := db.Open(context.Background(), db.Options{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("db.Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreate(t *testing.T, s *db.Store, title, script string) int64 {
	t.Helper()
	out, err := CreateProject(context.Background(), s, config.DefaultConfig(), CreateProjectInput{Title: title, Script: script})
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	return out.ID
}

func TestValidateInput(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		wantErr bool
		wantMsg string
	}{
		{"valid id", GetProjectInput{ID: 1}, false, ""},
		{"zero id", GetProjectInput{ID: 0}, true, "id must be greater than 0"},
		{"missing path", UploadScriptInput{ID: 1}, true, "path is required"},
		{"bad context", ChatViewInput{ID: 1, Context: "sidebar"}, true, "context must be one of"},
		{"missing context", ChatViewInput{ID: 1}, true, "context is required"},
		{"valid context", ChatViewInput{ID: 1, Context: project.ContextAssistant}, false, ""},
		{"negative apply title", GenerateMetadataInput{ID: 1, ApplyTitle: intPtr(-1)}, true, "apply_title must be at least 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateInput(tt.input)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("validateInput() error = %v", err)
				}
				return
			}
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Fatalf("validateInput() error = %v, want INVALID_REQUEST", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestToSnake(t *testing.T) {
	tests := map[string]string{
		"ID":          "id",
		"Path":        "path",
		"ApplyTitle":  "apply_title",
		"ChatHistory": "chat_history",
	}
	for in, want := range tests {
		if got := toSnake(in); got != want {
			t.Errorf("toSnake(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCheckScriptSize(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxScriptChars = 3

	if err := checkScriptSize(cfg, "日本語"); err != nil {
		t.Errorf("3 runes should fit: %v", err)
	}
	if err := checkScriptSize(cfg, "abcd"); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected INVALID_REQUEST, got %v", err)
	}
	if err := checkScriptSize(nil, "anything"); err != nil {
		t.Errorf("nil config disables the limit: %v", err)
	}
}
