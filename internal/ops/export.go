package ops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hpungsan/scriptflow/internal/config"
	"github.com/hpungsan/scriptflow/internal/db"
	"github.com/hpungsan/scriptflow/internal/errors"
	"github.com/hpungsan/scriptflow/internal/project"
)

// ExportScriptInput contains parameters for the ExportScript operation.
type ExportScriptInput struct {
	ID   int64  `validate:"gt=0"`
	Path string // optional, default: <exports>/<title>-<id>.md
}

// ExportScriptOutput contains the result of the ExportScript operation.
type ExportScriptOutput struct {
	ID    int64  `json:"id"`
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
}

// ExportScript writes a project's title and script to a Markdown file.
func ExportScript(ctx context.Context, store *db.Store, cfg *config.Config, input ExportScriptInput) (*ExportScriptOutput, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	p, err := store.GetByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	exportPath := input.Path
	if exportPath == "" {
		exportPath = filepath.Join(store.ExportsDir(), DefaultExportName(p))
	}

	content := []byte(RenderExport(p))
	if err := writeArtifact(exportPath, content, cfg, PathPolicy{
		DefaultDir: store.ExportsDir(),
		Extensions: []string{".md"},
	}); err != nil {
		return nil, err
	}
	return &ExportScriptOutput{ID: p.ID, Path: exportPath, Bytes: len(content)}, nil
}

// DefaultExportName is "<sanitized-title>-<id>.md".
func DefaultExportName(p *project.Project) string {
	return fmt.Sprintf("%s-%d.md", SanitizeForFilename(p.Title), p.ID)
}

// RenderExport formats a project as a Markdown document.
func RenderExport(p *project.Project) string {
	script := strings.TrimRight(p.Script, "\n")
	return "# " + p.Title + "\n\n" + script + "\n"
}

// writeArtifact validates path and writes data through a temp file and an
// atomic rename, so an existing file survives a failed write.
func writeArtifact(path string, data []byte, cfg *config.Config, policy PathPolicy) error {
	// Default paths are validated too; titles are user input
	if err := ValidatePath(path, PathCheckWrite, cfg, policy); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}

	// Close before rename (required on Windows)
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink planted since validation
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("export path is a symlink")
	}

	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("export destination already exists; overwriting is not supported on Windows (choose a new path or delete the existing file)")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return nil
}
