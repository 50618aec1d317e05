package ops

import (
	"context"
	"log/slog"

	"github.com/hpungsan/scriptflow/internal/ai"
	"github.com/hpungsan/scriptflow/internal/chat"
	"github.com/hpungsan/scriptflow/internal/config"
	"github.com/hpungsan/scriptflow/internal/db"
	"github.com/hpungsan/scriptflow/internal/errors"
	"github.com/hpungsan/scriptflow/internal/project"
	"github.com/hpungsan/scriptflow/internal/render"
)

// ChatViewInput contains parameters for the ChatView operation.
type ChatViewInput struct {
	ID      int64           `validate:"gt=0"`
	Context project.Context `validate:"required,chat_context"`
	// HTML adds rendered Markdown to each live message
	HTML bool
}

// ChatViewBlock is a partition block with its display fields filled in.
type ChatViewBlock struct {
	chat.Block
	Label string `json:"label,omitempty"`
	HTML  string `json:"html,omitempty"`
}

// ChatViewOutput contains the result of the ChatView operation.
type ChatViewOutput struct {
	ID      int64           `json:"id"`
	Context project.Context `json:"context"`
	Blocks  []ChatViewBlock `json:"blocks"`
}

// ChatView returns a project's chat history as one surface displays it:
// its own messages live, other surfaces' runs collapsed into bookmarks.
func ChatView(ctx context.Context, store *db.Store, input ChatViewInput) (*ChatViewOutput, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	p, err := store.GetByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	parts := chat.Partition(p.ChatHistory, input.Context)
	blocks := make([]ChatViewBlock, 0, len(parts))
	for _, b := range parts {
		vb := ChatViewBlock{Block: b, Label: b.Label()}
		if input.HTML && b.Kind == chat.BlockMessage {
			html, err := render.Markdown(b.Message.Text())
			if err != nil {
				return nil, errors.NewInternal(err)
			}
			vb.HTML = html
		}
		blocks = append(blocks, vb)
	}
	return &ChatViewOutput{ID: p.ID, Context: input.Context, Blocks: blocks}, nil
}

// SendChatInput contains parameters for the SendChat operation.
type SendChatInput struct {
	ID      int64           `validate:"gt=0"`
	Context project.Context `validate:"required,chat_context"`
	Text    string          `validate:"required"`
	// Selection is editor text quoted ahead of the prompt
	Selection string
}

// SendChatOutput contains the result of the SendChat operation.
type SendChatOutput struct {
	ID        int64           `json:"id"`
	Context   project.Context `json:"context"`
	Reply     string          `json:"reply"`
	Messages  int             `json:"messages"`
	UpdatedAt int64           `json:"updatedAt"`
}

// SendChat runs one chat turn on a project's surface and persists it.
// onChunk, when non-nil, receives each fragment of the reply as it arrives.
func SendChat(ctx context.Context, store *db.Store, cfg *config.Config, starter ai.ChatStarter, logger *slog.Logger, input SendChatInput, onChunk func(fragment string)) (*SendChatOutput, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if err := requireAI(starter); err != nil {
		return nil, err
	}

	r := NewReconciler(store, cfg, logger, input.ID, input.Context)
	if err := r.Load(ctx); err != nil {
		return nil, err
	}

	var seen int
	var forward func(project.History)
	if onChunk != nil {
		forward = func(view project.History) {
			text := view[len(view)-1].Text()
			if len(text) > seen {
				onChunk(text[seen:])
				seen = len(text)
			}
		}
	}

	p, err := r.Send(ctx, starter, input.Text, input.Selection, forward)
	if err != nil {
		return nil, err
	}

	last := p.ChatHistory[len(p.ChatHistory)-1]
	return &SendChatOutput{
		ID:        p.ID,
		Context:   input.Context,
		Reply:     last.Text(),
		Messages:  len(p.ChatHistory),
		UpdatedAt: p.UpdatedAt,
	}, nil
}

// NewReconciler builds a reconciler for a project surface using the chat settings in cfg.
func NewReconciler(store chat.HistoryStore, cfg *config.Config, logger *slog.Logger, id int64, c project.Context) *chat.Reconciler {
	opts := chat.Options{Logger: logger}
	configured := config.AbortNotice
	if cfg != nil {
		opts.Placeholder = cfg.Chat.Placeholder
		configured = cfg.Chat.AssistantAbort
	}
	opts.AbortMode = chat.AbortModeFor(c, configured)
	return chat.New(store, id, c, opts)
}
