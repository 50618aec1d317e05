package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/swaggest/jsonschema-go"

	"github.com/hpungsan/scriptflow/internal/ai"
	"github.com/hpungsan/scriptflow/internal/db"
	"github.com/hpungsan/scriptflow/internal/errors"
	"github.com/hpungsan/scriptflow/internal/project"
)

// Metadata is a publishing package for a video.
type Metadata struct {
	Titles       []string `json:"titles" minItems:"1" description:"Candidate video titles, catchy and under 70 characters"`
	Descriptions []string `json:"descriptions" minItems:"1" description:"Candidate video descriptions"`
	Tags         []string `json:"tags" description:"Search tags without the # sign"`
}

const metadataPrompt = `Create a YouTube metadata package for the video script below.
Suggest 3 titles, 2 descriptions and up to 15 tags.
Reply with a single JSON object matching this JSON schema and nothing else:

%s

Script:
%s`

// MetadataSchema returns the JSON schema the AI reply must follow.
func MetadataSchema() (string, error) {
	reflector := jsonschema.Reflector{}
	schema, err := reflector.Reflect(Metadata{})
	if err != nil {
		return "", fmt.Errorf("failed to generate schema: %w", err)
	}
	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// GenerateMetadataInput contains parameters for the GenerateMetadata operation.
type GenerateMetadataInput struct {
	ID int64 `validate:"gt=0"`
	// ApplyTitle, when set, makes Titles[*ApplyTitle] the project title
	ApplyTitle *int `validate:"omitempty,min=0"`
}

// GenerateMetadataOutput contains the result of the GenerateMetadata operation.
type GenerateMetadataOutput struct {
	ID       int64    `json:"id"`
	Metadata Metadata `json:"metadata"`
	Title    string   `json:"title"`
}

// GenerateMetadata asks the AI client for titles, descriptions and tags.
func GenerateMetadata(ctx context.Context, store *db.Store, gen ai.TextGenerator, input GenerateMetadataInput) (*GenerateMetadataOutput, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	p, err := store.GetByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Script) == "" {
		return nil, errors.NewInvalidRequest("Script is empty. Write or upload a script first.")
	}
	if err := requireAI(gen); err != nil {
		return nil, err
	}

	schema, err := MetadataSchema()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	reply, err := gen.SendMessage(ctx, fmt.Sprintf(metadataPrompt, schema, p.Script))
	if err != nil {
		return nil, errors.NewStreamFailed(err)
	}

	meta, err := ParseMetadata(reply)
	if err != nil {
		return nil, errors.NewStreamFailed(err)
	}

	out := &GenerateMetadataOutput{ID: p.ID, Metadata: *meta, Title: p.Title}
	if input.ApplyTitle != nil {
		i := *input.ApplyTitle
		if i >= len(meta.Titles) {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("apply_title %d is out of range (%d titles)", i, len(meta.Titles)))
		}
		title := project.NormalizeTitle(meta.Titles[i])
		updated, err := store.Update(ctx, p.ID, db.UpdateFields{Title: &title})
		if err != nil {
			return nil, err
		}
		out.Title = updated.Title
	}
	return out, nil
}

// ParseMetadata decodes an AI reply, tolerating a fenced ```json block.
func ParseMetadata(reply string) (*Metadata, error) {
	body := stripFence(reply)
	var meta Metadata
	if err := json.Unmarshal([]byte(body), &meta); err != nil {
		return nil, fmt.Errorf("metadata reply is not valid JSON: %w", err)
	}
	if len(meta.Titles) == 0 {
		return nil, fmt.Errorf("metadata reply has no titles")
	}
	if meta.Descriptions == nil {
		meta.Descriptions = []string{}
	}
	if meta.Tags == nil {
		meta.Tags = []string{}
	}
	for i, tag := range meta.Tags {
		meta.Tags[i] = strings.TrimPrefix(strings.TrimSpace(tag), "#")
	}
	return &meta, nil
}

// stripFence returns the content of the first fenced code block, or s trimmed.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	rest := s[start+3:]
	// Skip the info string (e.g. "json")
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
