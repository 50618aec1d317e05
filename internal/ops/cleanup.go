package ops

import (
	"context"
	"strings"

	"github.com/aymanbagabas/go-udiff"

	"github.com/hpungsan/scriptflow/internal/ai"
	"github.com/hpungsan/scriptflow/internal/config"
	"github.com/hpungsan/scriptflow/internal/db"
	"github.com/hpungsan/scriptflow/internal/errors"
)

// ErrEmptyScript is the message for cleanup of a blank script.
const ErrEmptyScript = "Script is empty. There's nothing to clean up."

// ErrScriptChanged is the message when the script was edited during a cleanup.
const ErrScriptChanged = "script changed while the cleanup was running; run it again"

const cleanupPrompt = `You are an editor for spoken video scripts. Clean up the transcript below:
remove filler words (um, uh, like, you know), false starts and repeated words, fix punctuation,
and tighten the pacing. Keep the speaker's voice, meaning and Markdown structure.
Reply with the cleaned script only.

Transcript:
`

// CleanupScriptInput contains parameters for the CleanupScript operation.
type CleanupScriptInput struct {
	ID int64 `validate:"gt=0"`
	// Apply persists the cleaned script; otherwise the result is a preview
	Apply bool
}

// CleanupScriptOutput contains the result of the CleanupScript operation.
type CleanupScriptOutput struct {
	ID       int64  `json:"id"`
	Original string `json:"original"`
	Cleaned  string `json:"cleaned"`
	Diff     string `json:"diff"`
	Applied  bool   `json:"applied"`
}

// CleanupScript asks the AI client to remove filler from a project's script.
func CleanupScript(ctx context.Context, store *db.Store, cfg *config.Config, gen ai.TextGenerator, input CleanupScriptInput) (*CleanupScriptOutput, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	p, err := store.GetByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Script) == "" {
		return nil, errors.NewInvalidRequest(ErrEmptyScript)
	}
	if err := requireAI(gen); err != nil {
		return nil, err
	}

	reply, err := gen.SendMessage(ctx, cleanupPrompt+p.Script)
	if err != nil {
		return nil, errors.NewStreamFailed(err)
	}
	cleaned := strings.TrimSpace(reply)
	if cleaned == "" {
		return nil, errors.NewStreamFailed(ai.ErrEmptyResponse)
	}

	out := &CleanupScriptOutput{
		ID:       p.ID,
		Original: p.Script,
		Cleaned:  cleaned,
		Diff:     udiff.Unified("original", "cleaned", ensureNewline(p.Script), ensureNewline(cleaned)),
	}

	if input.Apply {
		if err := checkScriptSize(cfg, cleaned); err != nil {
			return nil, err
		}
		// The script may have been saved while the reply was pending.
		original := p.Script
		_, err := store.Update(ctx, p.ID, db.UpdateFields{EditScript: func(current string) (string, error) {
			if current != original {
				return "", errors.NewInvalidRequest(ErrScriptChanged)
			}
			return cleaned, nil
		}})
		if err != nil {
			return nil, err
		}
		out.Applied = true
	}
	return out, nil
}

// ensureNewline keeps the last line of a diff from being flagged as missing a newline.
func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
