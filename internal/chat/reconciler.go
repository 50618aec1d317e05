// Package chat manages conversational turns against a project's persisted
// message log and partitions that log for display.
package chat

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/scriptflow/internal/ai"
	"github.com/hpungsan/scriptflow/internal/errors"
	"github.com/hpungsan/scriptflow/internal/project"
)

// DefaultPlaceholder is the provisional model text shown while a reply streams.
const DefaultPlaceholder = "..."

// DefaultNotice replaces a failed reply when the surface keeps failed turns visible.
const DefaultNotice = "Sorry, I encountered an error. Please try again."

// PlaceholderOffset keeps a reply ordered right after its prompt.
const PlaceholderOffset = 1

// AbortMode selects what the in-memory view shows after a failed turn.
// Failed turns are never persisted in either mode.
type AbortMode string

const (
	// AbortRevert restores the view to its state before the turn.
	AbortRevert AbortMode = "revert"
	// AbortNotice keeps the user message and shows a notice in place of the reply.
	AbortNotice AbortMode = "notice"
)

// AbortModeFor returns the abort mode for a surface. The brainstorm surface
// always reverts; the editor assistant uses the configured mode.
func AbortModeFor(c project.Context, configured string) AbortMode {
	if c == project.ContextAssistant && AbortMode(configured) == AbortNotice {
		return AbortNotice
	}
	return AbortRevert
}

// HistoryStore is the slice of the project store a reconciler needs.
type HistoryStore interface {
	GetByID(ctx context.Context, id int64) (*project.Project, error)
	UpdateChatHistory(ctx context.Context, id int64, history project.History) (*project.Project, error)
}

// Options configures a Reconciler.
type Options struct {
	Placeholder string
	Notice      string
	AbortMode   AbortMode
	Now         func() time.Time
	Logger      *slog.Logger
}

// turn is the in-flight exchange.
type turn struct {
	id        string
	index     int // placeholder position in view
	prompt    string
	text      strings.Builder
	fragments int
}

// Reconciler drives chat turns for one project on one surface.
//
// It keeps two lists: settled, which holds only completed turns and is what
// gets persisted, and view, which is settled plus whatever the surface is
// showing right now (an in-flight turn or a failure notice).
type Reconciler struct {
	store     HistoryStore
	projectID int64
	context   project.Context
	opts      Options
	logger    *slog.Logger

	mu      sync.Mutex
	settled project.History
	view    project.History
	turn    *turn
	lastTS  int64
}

// New creates a reconciler bound to one project and one context.
func New(store HistoryStore, projectID int64, c project.Context, opts Options) *Reconciler {
	if opts.Placeholder == "" {
		opts.Placeholder = DefaultPlaceholder
	}
	if opts.Notice == "" {
		opts.Notice = DefaultNotice
	}
	if opts.AbortMode == "" {
		opts.AbortMode = AbortRevert
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:     store,
		projectID: projectID,
		context:   c,
		opts:      opts,
		logger:    logger.With("component", "chat", "project_id", projectID, "context", string(c)),
		settled:   project.History{},
		view:      project.History{},
	}
}

// Context returns the surface this reconciler serves.
func (r *Reconciler) Context() project.Context {
	return r.context
}

// Load replaces the in-memory lists with the persisted history.
func (r *Reconciler) Load(ctx context.Context) error {
	p, err := r.store.GetByID(ctx, r.projectID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.turn != nil {
		return errors.NewTurnInProgress()
	}
	r.settled = p.ChatHistory.Clone()
	if r.settled == nil {
		r.settled = project.History{}
	}
	r.view = r.settled.Clone()
	return nil
}

// History returns a snapshot of what the surface should display.
func (r *Reconciler) History() project.History {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view.Clone()
}

// Submit starts a turn: the user message and a placeholder reply are appended
// to the view before any network call. It returns the prompt to send.
func (r *Reconciler) Submit(text, selection string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.NewInvalidRequest("message must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.turn != nil {
		return "", errors.NewTurnInProgress()
	}

	prompt := ComposePrompt(text, selection)
	ts := r.nextTimestamp()
	user := project.NewMessage(project.RoleUser, r.context, ts, prompt)
	placeholder := project.NewMessage(project.RoleModel, r.context, ts+PlaceholderOffset, r.opts.Placeholder)
	r.lastTS = ts + PlaceholderOffset

	// Any notice from an earlier failure is dropped with the failed turn
	r.view = r.settled.Append(user, placeholder)
	r.turn = &turn{
		id:     ulid.Make().String(),
		index:  len(r.view) - 1,
		prompt: prompt,
	}
	r.logger.Debug("turn submitted", "turn_id", r.turn.id, "timestamp", ts)
	return prompt, nil
}

// Chunk appends a streamed fragment to the in-flight reply, replacing the
// placeholder text in place.
func (r *Reconciler) Chunk(fragment string) (project.History, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.turn == nil {
		return nil, errors.NewInvalidRequest("no chat turn in progress")
	}
	if fragment == "" {
		return r.view.Clone(), nil
	}

	r.turn.text.WriteString(fragment)
	r.turn.fragments++
	view, err := r.view.ReplaceTextAt(r.turn.index, r.turn.text.String())
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	r.view = view
	return r.view.Clone(), nil
}

// Finalize completes the turn and persists the full list. A reply with no
// text is treated as a failed stream. If the write fails the view falls back
// to the last saved history and the caller resubmits to retry.
func (r *Reconciler) Finalize(ctx context.Context) (*project.Project, error) {
	r.mu.Lock()
	if r.turn == nil {
		r.mu.Unlock()
		return nil, errors.NewInvalidRequest("no chat turn in progress")
	}
	if r.turn.text.Len() == 0 {
		r.mu.Unlock()
		err := errors.NewStreamFailed(ai.ErrEmptyResponse)
		r.Abort(err)
		return nil, err
	}

	r.logger.Debug("turn finalized", "turn_id", r.turn.id, "fragments", r.turn.fragments)
	history := r.view.Clone()
	r.mu.Unlock()

	// The turn stays in flight until the write settles, so Submit keeps
	// returning TURN_IN_PROGRESS meanwhile.
	p, err := r.store.UpdateChatHistory(ctx, r.projectID, history)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.turn = nil
	if err != nil {
		r.logger.Warn("chat history not saved", "error", err)
		r.view = r.settled.Clone()
		return nil, err
	}
	r.settled = history
	return p, nil
}

// Abort ends the in-flight turn without persisting it. It returns the view
// after the abort. Calling Abort with no turn in flight is a no-op.
func (r *Reconciler) Abort(cause error) project.History {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.turn == nil {
		return r.view.Clone()
	}

	r.logger.Warn("turn aborted", "turn_id", r.turn.id, "mode", string(r.opts.AbortMode), "error", cause)

	switch r.opts.AbortMode {
	case AbortNotice:
		if view, err := r.view.ReplaceTextAt(r.turn.index, r.opts.Notice); err == nil {
			r.view = view
		} else {
			r.view = r.settled.Clone()
		}
	default:
		r.view = r.settled.Clone()
	}
	r.turn = nil
	return r.view.Clone()
}

// Send runs a whole turn: submit, stream from the AI collaborator, finalize.
// onChunk, when non-nil, receives the view after every fragment. Any stream
// failure, including ctx cancellation, aborts the turn and returns a
// STREAM_FAILED error wrapping the cause.
func (r *Reconciler) Send(ctx context.Context, starter ai.ChatStarter, text, selection string, onChunk func(project.History)) (*project.Project, error) {
	prompt, err := r.Submit(text, selection)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	prior := r.settled.Clone()
	r.mu.Unlock()

	stream, err := starter.StartChat(prior).SendMessageStream(ctx, prompt)
	if err != nil {
		return nil, r.fail(err)
	}
	defer stream.Close()

	for {
		fragment, err := stream.Recv()
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, r.fail(err)
		}
		view, err := r.Chunk(fragment)
		if err != nil {
			return nil, r.fail(err)
		}
		if onChunk != nil && fragment != "" {
			onChunk(view)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, r.fail(err)
	}
	return r.Finalize(ctx)
}

func (r *Reconciler) fail(cause error) error {
	r.Abort(cause)
	var sfErr *errors.ScriptflowError
	if stderrors.As(cause, &sfErr) {
		return cause
	}
	return errors.NewStreamFailed(cause)
}

// nextTimestamp returns a creation time strictly after every message in the
// view. Caller holds r.mu.
func (r *Reconciler) nextTimestamp() int64 {
	ts := project.Millis(r.opts.Now())
	last := r.settled.LastTimestamp()
	if v := r.view.LastTimestamp(); v > last {
		last = v
	}
	if r.lastTS > last {
		last = r.lastTS
	}
	if ts <= last {
		ts = last + 1
	}
	return ts
}
