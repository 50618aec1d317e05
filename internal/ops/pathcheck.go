package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hpungsan/scriptflow/internal/config"
	"github.com/hpungsan/scriptflow/internal/errors"
)

// PathCheckMode indicates whether the path check is for reading or writing.
type PathCheckMode int

const (
	PathCheckRead  PathCheckMode = iota // for upload (read file)
	PathCheckWrite                      // for export (write file)
)

// PathPolicy describes where files may be read from or written to.
type PathPolicy struct {
	// DefaultDir is always allowed; normally the store's exports directory.
	DefaultDir string
	// Extensions lists accepted extensions (lowercase, with dot). Empty accepts any.
	Extensions []string
}

// ValidatePath performs path validation for upload and export operations.
// It checks:
// 1. Path traversal (.. sequences)
// 2. Extension (one of policy.Extensions)
// 3. Directory restrictions (file must be DIRECTLY in the default dir or allowed_paths)
// 4. Symlink safety (parent dir and file must not be symlinks)
//
// Requiring files to sit directly in an allowed directory removes races on
// intermediate directory components; O_NOFOLLOW covers the final one.
func ValidatePath(path string, mode PathCheckMode, cfg *config.Config, policy PathPolicy) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}

	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if len(policy.Extensions) > 0 {
		ext := strings.ToLower(filepath.Ext(cleaned))
		if !slices.Contains(policy.Extensions, ext) {
			return errors.NewUnsupportedFile(ext, policy.Extensions)
		}
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}

	// Unsafe paths skip directory checks but never symlink checks.
	if cfg != nil && cfg.AllowUnsafePaths {
		if mode == PathCheckRead {
			if _, err := os.Stat(absPath); os.IsNotExist(err) {
				return errors.NewFileNotFound(path)
			}
		}
		if info, err := os.Lstat(absPath); err == nil {
			if info.Mode()&os.ModeSymlink != 0 {
				return errors.NewInvalidRequest("path must not be a symlink")
			}
		}
		return nil
	}

	allowedDirs, err := getAllowedDirs(cfg, policy.DefaultDir)
	if err != nil {
		return err
	}

	parentDir := filepath.Dir(absPath)
	if !isDirectlyInAllowedDir(parentDir, allowedDirs) {
		return errors.NewInvalidRequest(
			fmt.Sprintf("file must be directly in an allowed directory (no subdirectories); allowed: %v",
				allowedDirs))
	}

	if info, err := os.Lstat(parentDir); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return errors.NewInvalidRequest("parent directory must not be a symlink")
		}
	}

	if mode == PathCheckRead {
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			return errors.NewFileNotFound(path)
		}
	}

	if info, err := os.Lstat(absPath); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return errors.NewInvalidRequest("path must not be a symlink")
		}
	}

	return nil
}

// getAllowedDirs returns the list of allowed directories (absolute, cleaned).
// Symlinked entries are resolved so they match against the real target.
func getAllowedDirs(cfg *config.Config, defaultDir string) ([]string, error) {
	var dirs []string
	if defaultDir != "" {
		dirs = append(dirs, defaultDir)
	}

	// Only absolute configured paths count
	if cfg != nil {
		for _, p := range cfg.AllowedPaths {
			if filepath.IsAbs(p) {
				dirs = append(dirs, filepath.Clean(p))
			}
		}
	}

	result := make([]string, 0, len(dirs))
	for _, d := range dirs {
		abs, err := filepath.Abs(filepath.Clean(d))
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid allowed path: %v", err))
		}

		if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(abs)
			if err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot resolve symlink in allowed path: %v", err))
			}
			abs = resolved
		}
		result = append(result, abs)
	}

	return result, nil
}

// isDirectlyInAllowedDir checks if parentDir exactly matches one of the allowed directories.
func isDirectlyInAllowedDir(parentDir string, allowedDirs []string) bool {
	parentDir = filepath.Clean(parentDir)
	for _, dir := range allowedDirs {
		if parentDir == filepath.Clean(dir) {
			return true
		}
	}
	return false
}

// containsTraversal checks if path contains ".." directory traversal.
func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	// User input may use forward slashes on any platform
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}

// SanitizeForFilename makes s safe to use as a file name component.
func SanitizeForFilename(s string) string {
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "\\", "-")
	s = strings.ReplaceAll(s, "..", "-")

	var result strings.Builder
	for _, r := range s {
		switch {
		case r < 32 || r == 127:
			// control characters
		case r == ' ' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			result.WriteByte('-')
		default:
			result.WriteRune(r)
		}
	}
	s = result.String()

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-.")

	if s == "" {
		s = "untitled"
	}
	return s
}
