package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/hpungsan/scriptflow/internal/ai"
	"github.com/hpungsan/scriptflow/internal/config"
	"github.com/hpungsan/scriptflow/internal/db"
	"github.com/hpungsan/scriptflow/internal/errors"
)

// ErrNoSelection is the message for a rewrite without selected text.
const ErrNoSelection = "Please select a piece of text from the editor to rewrite."

// ErrSelectionMissing is the message when the selection is not in the script.
const ErrSelectionMissing = "selection does not occur in the script"

const rewritePrompt = `Rewrite the following passage from a video script so it is clearer and more engaging when spoken.
Keep roughly the same length. %s
Reply with the rewritten passage only.

Passage:
%s`

// RewriteInput contains parameters for the Rewrite operation.
type RewriteInput struct {
	ID        int64 `validate:"gt=0"`
	Selection string
	// Instruction optionally steers the rewrite ("make it funnier")
	Instruction string
	// Apply replaces the first occurrence of Selection in the script
	Apply bool
}

// RewriteOutput contains the result of the Rewrite operation.
type RewriteOutput struct {
	ID        int64  `json:"id"`
	Selection string `json:"selection"`
	Rewrite   string `json:"rewrite"`
	Applied   bool   `json:"applied"`
}

// Rewrite asks the AI client to rework a selected passage of the script.
func Rewrite(ctx context.Context, store *db.Store, cfg *config.Config, gen ai.TextGenerator, input RewriteInput) (*RewriteOutput, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Selection) == "" {
		return nil, errors.NewInvalidRequest(ErrNoSelection)
	}

	p, err := store.GetByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if input.Apply && !strings.Contains(p.Script, input.Selection) {
		return nil, errors.NewInvalidRequest(ErrSelectionMissing)
	}
	if err := requireAI(gen); err != nil {
		return nil, err
	}

	instruction := strings.TrimSpace(input.Instruction)
	if instruction != "" {
		instruction = "Instruction: " + instruction
	}
	reply, err := gen.SendMessage(ctx, fmt.Sprintf(rewritePrompt, instruction, input.Selection))
	if err != nil {
		return nil, errors.NewStreamFailed(err)
	}
	rewrite := strings.TrimSpace(reply)
	if rewrite == "" {
		return nil, errors.NewStreamFailed(ai.ErrEmptyResponse)
	}

	out := &RewriteOutput{ID: p.ID, Selection: input.Selection, Rewrite: rewrite}
	if input.Apply {
		// Replace in the stored script, not the one read before the reply.
		_, err := store.Update(ctx, p.ID, db.UpdateFields{EditScript: func(current string) (string, error) {
			if !strings.Contains(current, input.Selection) {
				return "", errors.NewInvalidRequest(ErrSelectionMissing)
			}
			script := strings.Replace(current, input.Selection, rewrite, 1)
			if err := checkScriptSize(cfg, script); err != nil {
				return "", err
			}
			return script, nil
		}})
		if err != nil {
			return nil, err
		}
		out.Applied = true
	}
	return out, nil
}
