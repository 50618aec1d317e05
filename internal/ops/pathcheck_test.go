package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/scriptflow/internal/config"
	"github.com/hpungsan/scriptflow/internal/errors"
)

var mdPolicy = PathPolicy{Extensions: []string{".md"}}

func TestValidatePath_TraversalRejected(t *testing.T) {
	cfg := config.DefaultConfig()

	tests := []struct {
		name string
		path string
	}{
		{"parent traversal", "../script.md"},
		{"deep traversal", "../../etc/script.md"},
		{"mid-path traversal", "/tmp/../etc/script.md"},
		{"hidden in path", "/tmp/safe/../../../etc/shadow.md"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePath(tc.path, PathCheckWrite, cfg, mdPolicy)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}

func TestValidatePath_ExtensionRequired(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	tests := []struct {
		name string
		path string
	}{
		{"no extension", "/tmp/script"},
		{"wrong extension", "/tmp/script.json"},
		{"binary", "/tmp/video.mp4"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePath(tc.path, PathCheckWrite, cfg, mdPolicy)
			if !errors.Is(err, errors.ErrUnsupportedFile) {
				t.Errorf("expected ErrUnsupportedFile, got: %v", err)
			}
		})
	}
}

func TestValidatePath_ExtensionCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()

	err := ValidatePath(filepath.Join(dir, "Script.MD"), PathCheckWrite, cfg, PathPolicy{DefaultDir: dir, Extensions: []string{".md"}})
	if err != nil {
		t.Errorf("expected success for upper-case extension, got: %v", err)
	}
}

func TestValidatePath_DirectoryRestriction(t *testing.T) {
	cfg := config.DefaultConfig()
	policy := PathPolicy{DefaultDir: t.TempDir(), Extensions: []string{".md"}}

	err := ValidatePath(filepath.Join(t.TempDir(), "script.md"), PathCheckWrite, cfg, policy)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestValidatePath_DefaultDirAllowed(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()

	err := ValidatePath(filepath.Join(dir, "out.md"), PathCheckWrite, cfg, PathPolicy{DefaultDir: dir, Extensions: []string{".md"}})
	if err != nil {
		t.Errorf("expected success in default dir, got: %v", err)
	}
}

func TestValidatePath_AllowUnsafePaths(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	testFile := filepath.Join(tmpDir, "test.md")
	if err := os.WriteFile(testFile, []byte("hi"), 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	if err := ValidatePath(testFile, PathCheckRead, cfg, mdPolicy); err != nil {
		t.Errorf("expected success with AllowUnsafePaths=true, got: %v", err)
	}
	if err := ValidatePath(filepath.Join(tmpDir, "output.md"), PathCheckWrite, cfg, mdPolicy); err != nil {
		t.Errorf("expected success for write with AllowUnsafePaths=true, got: %v", err)
	}
}

func TestValidatePath_AllowedPaths(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{tmpDir}

	testFile := filepath.Join(tmpDir, "test.md")
	if err := os.WriteFile(testFile, []byte("hi"), 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	if err := ValidatePath(testFile, PathCheckRead, cfg, mdPolicy); err != nil {
		t.Errorf("expected success for path in AllowedPaths, got: %v", err)
	}

	otherFile := filepath.Join(t.TempDir(), "other.md")
	if err := os.WriteFile(otherFile, []byte("hi"), 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	if err := ValidatePath(otherFile, PathCheckRead, cfg, mdPolicy); err == nil {
		t.Error("expected error for path outside AllowedPaths, got nil")
	}
}

func TestValidatePath_FileNotFound_ReadMode(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	err := ValidatePath(filepath.Join(t.TempDir(), "nonexistent.md"), PathCheckRead, cfg, mdPolicy)
	if !errors.Is(err, errors.ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got: %v", err)
	}
}

func TestValidatePath_SymlinkRejected(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{tmpDir}

	targetFile := filepath.Join(t.TempDir(), "secret.md")
	if err := os.WriteFile(targetFile, []byte("hi"), 0600); err != nil {
		t.Fatalf("failed to create target file: %v", err)
	}

	symlink := filepath.Join(tmpDir, "link.md")
	if err := os.Symlink(targetFile, symlink); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}

	for _, mode := range []PathCheckMode{PathCheckRead, PathCheckWrite} {
		err := ValidatePath(symlink, mode, cfg, mdPolicy)
		if !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("mode %d: expected ErrInvalidRequest, got: %v", mode, err)
		}
	}
}

func TestValidatePath_SymlinkRejected_EvenWithUnsafePaths(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	targetFile := filepath.Join(tmpDir, "target.md")
	if err := os.WriteFile(targetFile, []byte("hi"), 0600); err != nil {
		t.Fatalf("failed to create target file: %v", err)
	}
	symlink := filepath.Join(tmpDir, "link.md")
	if err := os.Symlink(targetFile, symlink); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}

	err := ValidatePath(symlink, PathCheckRead, cfg, mdPolicy)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestValidatePath_NestedPathRejected(t *testing.T) {
	allowedDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{allowedDir}

	subDir := filepath.Join(allowedDir, "subdir")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatalf("failed to create subdir: %v", err)
	}
	targetFile := filepath.Join(subDir, "test.md")
	if err := os.WriteFile(targetFile, []byte("hi"), 0600); err != nil {
		t.Fatalf("failed to create target file: %v", err)
	}

	for _, mode := range []PathCheckMode{PathCheckRead, PathCheckWrite} {
		err := ValidatePath(targetFile, mode, cfg, mdPolicy)
		if !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("mode %d: expected ErrInvalidRequest, got: %v", mode, err)
		}
	}
}

func TestContainsTraversal(t *testing.T) {
	tests := []struct {
		path     string
		contains bool
	}{
		{"/home/user/file.txt", false},
		{"../file.txt", true},
		{"/home/../etc/passwd", true},
		{"./file.txt", false},
		{"/home/user/.hidden/file.txt", false},
		{"file..name.txt", false},
		{"/tmp/a/b/../c.md", true},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			if got := containsTraversal(tc.path); got != tc.contains {
				t.Errorf("containsTraversal(%q) = %v, want %v", tc.path, got, tc.contains)
			}
		})
	}
}

func TestSanitizeForFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple name", "myproject", "myproject"},
		{"with spaces", "my project", "my-project"},
		{"forward slash", "path/to/file", "path-to-file"},
		{"backslash", "path\\to\\file", "path-to-file"},
		{"double dots", "foo..bar", "foo-bar"},
		{"traversal attempt", "../../../etc/passwd", "etc-passwd"},
		{"reserved characters", `Why? "Really": <yes>`, "Why-Really-yes"},
		{"null bytes", "foo\x00bar", "foobar"},
		{"empty after sanitize", "../../..", "untitled"},
		{"trailing dot trimmed", "Episode 1.", "Episode-1"},
		{"unicode preserved", "台本-中文", "台本-中文"},
		{"multiple dashes collapse", "a---b", "a-b"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeForFilename(tc.input); got != tc.expected {
				t.Errorf("SanitizeForFilename(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}
