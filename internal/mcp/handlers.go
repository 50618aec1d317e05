package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/scriptflow/internal/config"
	"github.com/hpungsan/scriptflow/internal/errors"
	"github.com/hpungsan/scriptflow/internal/ops"
	"github.com/hpungsan/scriptflow/internal/project"
	"github.com/hpungsan/scriptflow/internal/scriptfile"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	deps   Deps
	logger *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps) *Handlers {
	if deps.Config == nil {
		deps.Config = config.DefaultConfig()
	}
	if deps.Files == nil {
		deps.Files = scriptfile.NewOSReader(deps.Config.MaxScriptChars)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{deps: deps, logger: logger.With("component", "mcp")}
}

// Request types for each tool

// CreateRequest represents the arguments for project_create.
type CreateRequest struct {
	Title  string `json:"title,omitempty"`
	Script string `json:"script,omitempty"`
}

// IDRequest represents the arguments for tools addressed by project id only.
type IDRequest struct {
	ID int64 `json:"id"`
}

// UpdateRequest represents the arguments for project_update.
type UpdateRequest struct {
	ID     int64   `json:"id"`
	Title  *string `json:"title,omitempty"`
	Script *string `json:"script,omitempty"`
}

// UploadRequest represents the arguments for project_upload_script.
type UploadRequest struct {
	ID   int64  `json:"id"`
	Path string `json:"path"`
}

// BrainstormMessage is one message of a brainstorm to convert.
type BrainstormMessage struct {
	Role      project.Role `json:"role"`
	Text      string       `json:"text"`
	Timestamp int64        `json:"timestamp,omitempty"`
}

// ConvertRequest represents the arguments for project_convert_brainstorm.
type ConvertRequest struct {
	Title      string              `json:"title,omitempty"`
	Brainstorm []BrainstormMessage `json:"brainstorm"`
	Draft      bool                `json:"draft,omitempty"`
}

// ChatViewRequest represents the arguments for chat_view.
type ChatViewRequest struct {
	ID      int64           `json:"id"`
	Context project.Context `json:"context"`
	HTML    bool            `json:"html,omitempty"`
}

// ChatSendRequest represents the arguments for chat_send.
type ChatSendRequest struct {
	ID        int64           `json:"id"`
	Context   project.Context `json:"context"`
	Text      string          `json:"text"`
	Selection string          `json:"selection,omitempty"`
}

// CleanupRequest represents the arguments for script_cleanup.
type CleanupRequest struct {
	ID    int64 `json:"id"`
	Apply bool  `json:"apply,omitempty"`
}

// RewriteRequest represents the arguments for script_rewrite.
type RewriteRequest struct {
	ID          int64  `json:"id"`
	Selection   string `json:"selection"`
	Instruction string `json:"instruction,omitempty"`
	Apply       bool   `json:"apply,omitempty"`
}

// ExportRequest represents the arguments for script_export.
type ExportRequest struct {
	ID   int64  `json:"id"`
	Path string `json:"path,omitempty"`
}

// MetadataRequest represents the arguments for metadata_generate.
type MetadataRequest struct {
	ID         int64 `json:"id"`
	ApplyTitle *int  `json:"apply_title,omitempty"`
}

// ImageRequest represents the arguments for image_generate.
type ImageRequest struct {
	Prompt string `json:"prompt"`
}

// HandleCreate handles the project_create tool call.
func (h *Handlers) HandleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CreateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.CreateProject(ctx, h.deps.Store, h.deps.Config, ops.CreateProjectInput{
		Title:  input.Title,
		Script: input.Script,
	})
	if err != nil {
		return h.errorResult(err), nil
	}
	return successResult(result)
}

// HandleList handles the project_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.ListProjects(ctx, h.deps.Store)
	if err != nil {
		return h.errorResult(err), nil
	}
	return successResult(result)
}

// HandleGet handles the project_get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GetProject(ctx, h.deps.Store, ops.GetProjectInput{ID: input.ID})
	if err != nil {
		return h.errorResult(err), nil
	}
	return successResult(result)
}

// HandleUpdate handles the project_update tool call.
func (h *Handlers) HandleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[UpdateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	p, err := ops.UpdateProject(ctx, h.deps.Store, h.deps.Config, ops.UpdateProjectInput{
		ID:     input.ID,
		Title:  input.Title,
		Script: input.Script,
	})
	if err != nil {
		return h.errorResult(err), nil
	}
	return successResult(ops.Summarize(p))
}

// HandleUpload handles the project_upload_script tool call.
func (h *Handlers) HandleUpload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[UploadRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.UploadScript(ctx, h.deps.Store, h.deps.Config, h.deps.Files, ops.UploadScriptInput{
		ID:   input.ID,
		Path: input.Path,
	})
	if err != nil {
		return h.errorResult(err), nil
	}
	return successResult(result)
}

// HandleConvert handles the project_convert_brainstorm tool call.
func (h *Handlers) HandleConvert(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConvertRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	history := make(project.History, 0, len(input.Brainstorm))
	for _, m := range input.Brainstorm {
		history = append(history, project.NewMessage(m.Role, project.ContextBrainstorm, m.Timestamp, m.Text))
	}

	result, err := ops.ConvertBrainstorm(ctx, h.deps.Store, h.deps.Config, h.deps.AI, ops.ConvertBrainstormInput{
		Title:      input.Title,
		Brainstorm: history,
		Draft:      input.Draft,
	})
	if err != nil {
		return h.errorResult(err), nil
	}
	return successResult(result)
}

// HandleChatView handles the chat_view tool call.
func (h *Handlers) HandleChatView(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChatViewRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ChatView(ctx, h.deps.Store, ops.ChatViewInput{
		ID:      input.ID,
		Context: input.Context,
		HTML:    input.HTML,
	})
	if err != nil {
		return h.errorResult(err), nil
	}
	return successResult(result)
}

// HandleChatSend handles the chat_send tool call.
func (h *Handlers) HandleChatSend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChatSendRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SendChat(ctx, h.deps.Store, h.deps.Config, h.deps.AI, h.logger, ops.SendChatInput{
		ID:        input.ID,
		Context:   input.Context,
		Text:      input.Text,
		Selection: input.Selection,
	}, nil)
	if err != nil {
		return h.errorResult(err), nil
	}
	return successResult(result)
}

// HandleCleanup handles the script_cleanup tool call.
func (h *Handlers) HandleCleanup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CleanupRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.CleanupScript(ctx, h.deps.Store, h.deps.Config, h.deps.AI, ops.CleanupScriptInput{
		ID:    input.ID,
		Apply: input.Apply,
	})
	if err != nil {
		return h.errorResult(err), nil
	}
	return successResult(result)
}

// HandleRewrite handles the script_rewrite tool call.
func (h *Handlers) HandleRewrite(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RewriteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Rewrite(ctx, h.deps.Store, h.deps.Config, h.deps.AI, ops.RewriteInput{
		ID:          input.ID,
		Selection:   input.Selection,
		Instruction: input.Instruction,
		Apply:       input.Apply,
	})
	if err != nil {
		return h.errorResult(err), nil
	}
	return successResult(result)
}

// HandleExport handles the script_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ExportScript(ctx, h.deps.Store, h.deps.Config, ops.ExportScriptInput{
		ID:   input.ID,
		Path: input.Path,
	})
	if err != nil {
		return h.errorResult(err), nil
	}
	return successResult(result)
}

// HandleMetadata handles the metadata_generate tool call.
func (h *Handlers) HandleMetadata(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MetadataRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GenerateMetadata(ctx, h.deps.Store, h.deps.AI, ops.GenerateMetadataInput{
		ID:         input.ID,
		ApplyTitle: input.ApplyTitle,
	})
	if err != nil {
		return h.errorResult(err), nil
	}
	return successResult(result)
}

// HandleImage handles the image_generate tool call.
func (h *Handlers) HandleImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImageRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GenerateImage(ctx, h.deps.Store, h.deps.Config, h.deps.AI, ops.GenerateImageInput{Prompt: input.Prompt})
	if err != nil {
		return h.errorResult(err), nil
	}
	return successResult(result)
}

// Result helpers

// errorResult logs failures worth an operator's attention, then formats them.
func (h *Handlers) errorResult(err error) *mcp.CallToolResult {
	if errors.Is(err, errors.ErrInternal) || errors.Is(err, errors.ErrWriteFailed) || errors.Is(err, errors.ErrStoreUnavailable) {
		h.logger.Warn("tool call failed", "error", err)
	}
	return errorResult(err)
}

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var sfErr *errors.ScriptflowError
	if stderrors.As(err, &sfErr) {
		message := sfErr.Message
		// Keep wrapper context such as "chat_history[2]: ..."
		if outer := err.Error(); outer != sfErr.Error() {
			message = outer
		}
		errorObj := map[string]any{
			"code":    sfErr.Code,
			"message": message,
			"status":  sfErr.Status,
		}
		if sfErr.Code != errors.ErrInternal && sfErr.Details != nil {
			errorObj["details"] = sfErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
