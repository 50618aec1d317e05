package ops

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/scriptflow/internal/ai"
	"github.com/hpungsan/scriptflow/internal/config"
	"github.com/hpungsan/scriptflow/internal/db"
	"github.com/hpungsan/scriptflow/internal/errors"
)

// ErrNoImagePrompt is the message for an image command without a prompt.
const ErrNoImagePrompt = "Please provide a prompt for the image."

var imageCommand = regexp.MustCompile(`(?i)^\s*/generate image\b`)

// ParseImageCommand reports whether text is a "/generate image <prompt>"
// command and returns the prompt. The command word is case-insensitive.
func ParseImageCommand(text string) (prompt string, ok bool) {
	loc := imageCommand.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	return strings.TrimSpace(text[loc[1]:]), true
}

// GenerateImageInput contains parameters for the GenerateImage operation.
type GenerateImageInput struct {
	Prompt string
}

// GenerateImageOutput contains the result of the GenerateImage operation.
type GenerateImageOutput struct {
	Prompt string `json:"prompt"`
	Path   string `json:"path"`
	Bytes  int    `json:"bytes"`
}

// GenerateImage creates an image from a prompt and saves it as a PNG in the
// exports directory. The prompt may be given bare or as an image command.
func GenerateImage(ctx context.Context, store *db.Store, cfg *config.Config, gen ai.ImageGenerator, input GenerateImageInput) (*GenerateImageOutput, error) {
	prompt := input.Prompt
	if p, ok := ParseImageCommand(prompt); ok {
		prompt = p
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.NewInvalidRequest(ErrNoImagePrompt)
	}
	if err := requireAI(gen); err != nil {
		return nil, err
	}

	data, err := gen.GenerateImage(ctx, prompt)
	if err != nil {
		return nil, errors.NewStreamFailed(err)
	}
	if len(data) == 0 {
		return nil, errors.NewStreamFailed(ai.ErrNoImage)
	}

	path := filepath.Join(store.ExportsDir(), "image-"+ulid.Make().String()+".png")
	if err := writeArtifact(path, data, cfg, PathPolicy{
		DefaultDir: store.ExportsDir(),
		Extensions: []string{".png"},
	}); err != nil {
		return nil, err
	}
	return &GenerateImageOutput{Prompt: prompt, Path: path, Bytes: len(data)}, nil
}
