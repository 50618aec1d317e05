package ops

import (
	"context"

	"github.com/hpungsan/scriptflow/internal/config"
	"github.com/hpungsan/scriptflow/internal/db"
	"github.com/hpungsan/scriptflow/internal/project"
	"github.com/hpungsan/scriptflow/internal/scriptfile"
)

// UploadScriptInput contains parameters for the UploadScript operation.
type UploadScriptInput struct {
	ID   int64  `validate:"gt=0"`
	Path string `validate:"required"`
}

// UploadScriptOutput contains the result of the UploadScript operation.
type UploadScriptOutput struct {
	ID          int64  `json:"id"`
	Path        string `json:"path"`
	ScriptChars int    `json:"scriptChars"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// UploadScript replaces a project's script with the text of a local file.
// Markdown and text files are taken verbatim; HTML and caption files are
// converted first.
func UploadScript(ctx context.Context, store *db.Store, cfg *config.Config, files *scriptfile.Reader, input UploadScriptInput) (*UploadScriptOutput, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	if err := ValidatePath(input.Path, PathCheckRead, cfg, PathPolicy{
		DefaultDir: store.ExportsDir(),
		Extensions: scriptfile.SupportedExtensions,
	}); err != nil {
		return nil, err
	}

	text, err := files.Read(input.Path)
	if err != nil {
		return nil, err
	}
	if err := checkScriptSize(cfg, text); err != nil {
		return nil, err
	}

	p, err := store.Update(ctx, input.ID, db.UpdateFields{Script: &text})
	if err != nil {
		return nil, err
	}
	return &UploadScriptOutput{
		ID:          p.ID,
		Path:        input.Path,
		ScriptChars: project.CountChars(p.Script),
		UpdatedAt:   p.UpdatedAt,
	}, nil
}
