package ops

import (
	"context"
	"fmt"

	"github.com/hpungsan/scriptflow/internal/config"
	"github.com/hpungsan/scriptflow/internal/db"
	"github.com/hpungsan/scriptflow/internal/errors"
	"github.com/hpungsan/scriptflow/internal/project"
)

// CreateProjectInput contains parameters for the CreateProject operation.
type CreateProjectInput struct {
	Title  string // default: "Untitled Project"
	Script string
	// ChatHistory seeds the project; messages must be chronological
	ChatHistory project.History
}

// CreateProjectOutput contains the result of the CreateProject operation.
type CreateProjectOutput struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// CreateProject stores a new project and returns its id.
func CreateProject(ctx context.Context, store *db.Store, cfg *config.Config, input CreateProjectInput) (*CreateProjectOutput, error) {
	if err := checkScriptSize(cfg, input.Script); err != nil {
		return nil, err
	}
	if err := checkHistory(input.ChatHistory); err != nil {
		return nil, err
	}

	title := project.NormalizeTitle(input.Title)
	id, err := store.Create(ctx, db.CreateParams{
		Title:       title,
		Script:      input.Script,
		ChatHistory: input.ChatHistory,
	})
	if err != nil {
		return nil, err
	}
	return &CreateProjectOutput{ID: id, Title: title}, nil
}

// ProjectSummary is a project without its script and chat history.
type ProjectSummary struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
	ScriptChars int    `json:"scriptChars"`
	Messages    int    `json:"messages"`
}

// ListProjectsOutput contains the result of the ListProjects operation.
type ListProjectsOutput struct {
	Items []ProjectSummary `json:"items"`
	// Skipped counts stored records that could not be read.
	Skipped int `json:"skipped,omitempty"`
}

// ListProjects returns every readable project, most recently updated first.
func ListProjects(ctx context.Context, store *db.Store) (*ListProjectsOutput, error) {
	res, err := store.List(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]ProjectSummary, 0, len(res.Projects))
	for _, p := range res.Projects {
		items = append(items, Summarize(p))
	}
	return &ListProjectsOutput{
		Items:   items,
		Skipped: res.Skipped,
	}, nil
}

// Summarize reduces a project to its listing fields.
func Summarize(p *project.Project) ProjectSummary {
	return ProjectSummary{
		ID:          p.ID,
		Title:       p.Title,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		ScriptChars: project.CountChars(p.Script),
		Messages:    len(p.ChatHistory),
	}
}

// GetProjectInput contains parameters for the GetProject operation.
type GetProjectInput struct {
	ID int64 `validate:"gt=0"`
}

// GetProject returns one project with its full chat history.
func GetProject(ctx context.Context, store *db.Store, input GetProjectInput) (*project.Project, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	return store.GetByID(ctx, input.ID)
}

// UpdateProjectInput contains parameters for the UpdateProject operation.
type UpdateProjectInput struct {
	ID int64 `validate:"gt=0"`

	// Editable fields (nil = don't change)
	Title  *string
	Script *string
}

// UpdateProject changes a project's title and/or script. Chat history is
// only ever written by the chat operations.
func UpdateProject(ctx context.Context, store *db.Store, cfg *config.Config, input UpdateProjectInput) (*project.Project, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Title == nil && input.Script == nil {
		return nil, errors.NewInvalidRequest("at least one editable field must be provided")
	}

	fields := db.UpdateFields{Script: input.Script}
	if input.Title != nil {
		title := project.NormalizeTitle(*input.Title)
		fields.Title = &title
	}
	if input.Script != nil {
		if err := checkScriptSize(cfg, *input.Script); err != nil {
			return nil, err
		}
	}
	return store.Update(ctx, input.ID, fields)
}

// checkHistory validates a caller-supplied chat history.
func checkHistory(h project.History) error {
	for i, m := range h {
		if !m.Role.Valid() {
			return errors.NewInvalidRequest(fmt.Sprintf("chat_history[%d]: unknown role %q", i, m.Role))
		}
		if !m.Context.Valid() {
			return errors.NewInvalidRequest(fmt.Sprintf("chat_history[%d]: unknown context %q", i, m.Context))
		}
	}
	if !h.IsChronological() {
		return errors.NewInvalidRequest("chat_history must be in chronological order")
	}
	return nil
}
