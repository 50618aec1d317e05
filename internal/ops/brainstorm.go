package ops

import (
	"context"
	"strings"
	"time"

	"github.com/hpungsan/scriptflow/internal/ai"
	"github.com/hpungsan/scriptflow/internal/config"
	"github.com/hpungsan/scriptflow/internal/db"
	"github.com/hpungsan/scriptflow/internal/errors"
	"github.com/hpungsan/scriptflow/internal/project"
)

const draftPrompt = `You are helping a video creator turn a brainstorming session into a first draft script.
Write the script in Markdown. Use short paragraphs meant to be spoken aloud, a strong hook, and a clear call to action.
Reply with the script only.

Brainstorming session:
`

// ConvertBrainstormInput contains parameters for the ConvertBrainstorm operation.
type ConvertBrainstormInput struct {
	Title      string
	Brainstorm project.History `validate:"required,min=1"`
	// Draft asks the AI client for a first script; otherwise the script is a placeholder
	Draft bool
}

// ConvertBrainstormOutput contains the result of the ConvertBrainstorm operation.
type ConvertBrainstormOutput struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Drafted  bool   `json:"drafted"`
	Messages int    `json:"messages"`
}

// ConvertBrainstorm creates a project from a brainstorm conversation. The
// conversation becomes the project's chat history under the brainstorm context.
// gen may be nil when Draft is false.
func ConvertBrainstorm(ctx context.Context, store *db.Store, cfg *config.Config, gen ai.TextGenerator, input ConvertBrainstormInput) (*ConvertBrainstormOutput, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	history, err := brainstormHistory(input.Brainstorm, time.Now())
	if err != nil {
		return nil, err
	}

	script := PlaceholderScript
	if input.Draft {
		if err := requireAI(gen); err != nil {
			return nil, err
		}
		reply, err := gen.SendMessage(ctx, draftPrompt+Transcript(history))
		if err != nil {
			return nil, errors.NewStreamFailed(err)
		}
		if script = strings.TrimSpace(reply); script == "" {
			return nil, errors.NewStreamFailed(ai.ErrEmptyResponse)
		}
	}

	out, err := CreateProject(ctx, store, cfg, CreateProjectInput{
		Title:       input.Title,
		Script:      script,
		ChatHistory: history,
	})
	if err != nil {
		return nil, err
	}
	return &ConvertBrainstormOutput{
		ID:       out.ID,
		Title:    out.Title,
		Drafted:  input.Draft,
		Messages: len(history),
	}, nil
}

// brainstormHistory tags every message with the brainstorm context and
// repairs missing or out-of-order timestamps so the result is chronological.
func brainstormHistory(in project.History, now time.Time) (project.History, error) {
	out := in.Clone()
	var last int64
	for i := range out {
		m := &out[i]
		if !m.Role.Valid() {
			return nil, errors.NewInvalidRequest("brainstorm message has unknown role " + string(m.Role))
		}
		m.Context = project.ContextBrainstorm
		switch {
		case m.Timestamp > last:
		case i == 0:
			m.Timestamp = project.Millis(now)
		default:
			m.Timestamp = last + 1
		}
		last = m.Timestamp
	}
	return out, nil
}

// Transcript renders messages as "Role: text" lines for prompts.
func Transcript(h project.History) string {
	var b strings.Builder
	for _, m := range h {
		if m.Role == project.RoleUser {
			b.WriteString("User: ")
		} else {
			b.WriteString("Assistant: ")
		}
		b.WriteString(strings.TrimSpace(m.Text()))
		b.WriteString("\n")
	}
	return b.String()
}
