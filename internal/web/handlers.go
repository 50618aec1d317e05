package web

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/hpungsan/scriptflow/internal/config"
	"github.com/hpungsan/scriptflow/internal/errors"
	"github.com/hpungsan/scriptflow/internal/ops"
	"github.com/hpungsan/scriptflow/internal/project"
	"github.com/hpungsan/scriptflow/internal/scriptfile"
)

// Handlers contains HTTP route handlers for the API.
type Handlers struct {
	deps    Deps
	version string
	logger  *slog.Logger
}

func newHandlers(deps Deps, version string) *Handlers {
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
	return &Handlers{deps: deps, version: version, logger: logger.With("component", "web")}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := ops.ListProjects(r.Context(), h.deps.Store); err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": h.version})
}

// HandleList handles GET /projects.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	result, err := ops.ListProjects(r.Context(), h.deps.Store)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// createBody is the request body for POST /projects.
type createBody struct {
	Title       string          `json:"title"`
	Script      string          `json:"script"`
	ChatHistory project.History `json:"chatHistory"`
}

// HandleCreate handles POST /projects.
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var body createBody
	if err := decodeBody(w, r, &body); err != nil {
		renderError(w, h.logger, err)
		return
	}

	result, err := ops.CreateProject(r.Context(), h.deps.Store, h.deps.Config, ops.CreateProjectInput{
		Title:       body.Title,
		Script:      body.Script,
		ChatHistory: body.ChatHistory,
	})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/projects/%d", result.ID))
	renderJSON(w, http.StatusCreated, result)
}

// convertBody is the request body for POST /projects/convert.
type convertBody struct {
	Title      string          `json:"title"`
	Brainstorm project.History `json:"brainstorm"`
	Draft      bool            `json:"draft"`
}

// HandleConvert handles POST /projects/convert.
func (h *Handlers) HandleConvert(w http.ResponseWriter, r *http.Request) {
	var body convertBody
	if err := decodeBody(w, r, &body); err != nil {
		renderError(w, h.logger, err)
		return
	}

	result, err := ops.ConvertBrainstorm(r.Context(), h.deps.Store, h.deps.Config, h.deps.AI, ops.ConvertBrainstormInput{
		Title:      body.Title,
		Brainstorm: body.Brainstorm,
		Draft:      body.Draft,
	})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/projects/%d", result.ID))
	renderJSON(w, http.StatusCreated, result)
}

// HandleGet handles GET /projects/{id}.
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}

	p, err := ops.GetProject(r.Context(), h.deps.Store, ops.GetProjectInput{ID: id})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, p)
}

// updateBody is the request body for PATCH /projects/{id}.
type updateBody struct {
	Title  *string `json:"title"`
	Script *string `json:"script"`
}

// HandleUpdate handles PATCH /projects/{id}.
func (h *Handlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	var body updateBody
	if err := decodeBody(w, r, &body); err != nil {
		renderError(w, h.logger, err)
		return
	}

	p, err := ops.UpdateProject(r.Context(), h.deps.Store, h.deps.Config, ops.UpdateProjectInput{
		ID:     id,
		Title:  body.Title,
		Script: body.Script,
	})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, p)
}

// HandleUpload handles PUT /projects/{id}/script with a multipart "file" field.
// The file is decoded by extension like a local upload; the path is never touched.
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		renderError(w, h.logger, errors.NewInvalidRequest(fmt.Sprintf("file is required: %v", err)))
		return
	}
	defer file.Close()

	format, ok := scriptfile.FormatFor(header.Filename)
	if !ok {
		renderError(w, h.logger, errors.NewUnsupportedFile(extOf(header.Filename), scriptfile.SupportedExtensions))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		renderError(w, h.logger, errors.NewInvalidRequest(fmt.Sprintf("read upload: %v", err)))
		return
	}
	script, err := h.deps.Files.Decode(format, data)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}

	p, err := ops.UpdateProject(r.Context(), h.deps.Store, h.deps.Config, ops.UpdateProjectInput{ID: id, Script: &script})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, ops.UploadScriptOutput{
		ID:          p.ID,
		Path:        header.Filename,
		ScriptChars: project.CountChars(p.Script),
		UpdatedAt:   p.UpdatedAt,
	})
}

// HandleChatView handles GET /projects/{id}/chat?context=&html=.
func (h *Handlers) HandleChatView(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}

	result, err := ops.ChatView(r.Context(), h.deps.Store, ops.ChatViewInput{
		ID:      id,
		Context: project.Context(r.URL.Query().Get("context")),
		HTML:    parseBoolParam(r, "html"),
	})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// chatBody is the request body for POST /projects/{id}/chat.
type chatBody struct {
	Context   project.Context `json:"context"`
	Text      string          `json:"text"`
	Selection string          `json:"selection"`
}

// HandleChatSend handles POST /projects/{id}/chat.
// With Accept: text/event-stream the reply is streamed as "chunk" events
// followed by one "done" or "error" event.
func (h *Handlers) HandleChatSend(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	var body chatBody
	if err := decodeBody(w, r, &body); err != nil {
		renderError(w, h.logger, err)
		return
	}
	input := ops.SendChatInput{ID: id, Context: body.Context, Text: body.Text, Selection: body.Selection}

	if !wantsEventStream(r) {
		result, err := ops.SendChat(r.Context(), h.deps.Store, h.deps.Config, h.deps.AI, h.logger, input, nil)
		if err != nil {
			renderError(w, h.logger, err)
			return
		}
		renderJSON(w, http.StatusOK, result)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	result, err := ops.SendChat(r.Context(), h.deps.Store, h.deps.Config, h.deps.AI, h.logger, input, func(fragment string) {
		writeEvent(w, "chunk", map[string]string{"text": fragment})
	})
	if err != nil {
		var sfErr *errors.ScriptflowError
		if !stderrors.As(err, &sfErr) {
			sfErr = errors.NewInternal(err)
		}
		writeEvent(w, "error", map[string]any{"code": sfErr.Code, "message": sfErr.Message, "status": sfErr.Status})
		return
	}
	writeEvent(w, "done", result)
}

// HandleTranscript handles GET /projects/{id}/transcript?context= as an HTML page.
func (h *Handlers) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	c := project.Context(r.URL.Query().Get("context"))
	if c == "" {
		c = project.ContextAssistant
	}
	if !c.Valid() {
		renderError(w, h.logger, errors.NewInvalidRequest(fmt.Sprintf("context must be one of %v", project.Contexts)))
		return
	}

	p, err := ops.GetProject(r.Context(), h.deps.Store, ops.GetProjectInput{ID: id})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	if err := renderTranscript(w, p, c, h.version); err != nil {
		renderError(w, h.logger, err)
	}
}

// HandleCleanup handles POST /projects/{id}/cleanup.
func (h *Handlers) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	var body struct {
		Apply bool `json:"apply"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		renderError(w, h.logger, err)
		return
	}

	result, err := ops.CleanupScript(r.Context(), h.deps.Store, h.deps.Config, h.deps.AI, ops.CleanupScriptInput{ID: id, Apply: body.Apply})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleRewrite handles POST /projects/{id}/rewrite.
func (h *Handlers) HandleRewrite(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	var body struct {
		Selection   string `json:"selection"`
		Instruction string `json:"instruction"`
		Apply       bool   `json:"apply"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		renderError(w, h.logger, err)
		return
	}

	result, err := ops.Rewrite(r.Context(), h.deps.Store, h.deps.Config, h.deps.AI, ops.RewriteInput{
		ID:          id,
		Selection:   body.Selection,
		Instruction: body.Instruction,
		Apply:       body.Apply,
	})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleMetadata handles POST /projects/{id}/metadata.
func (h *Handlers) HandleMetadata(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	var body struct {
		ApplyTitle *int `json:"applyTitle"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		renderError(w, h.logger, err)
		return
	}

	result, err := ops.GenerateMetadata(r.Context(), h.deps.Store, h.deps.AI, ops.GenerateMetadataInput{ID: id, ApplyTitle: body.ApplyTitle})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleExport handles POST /projects/{id}/export, writing the file on the server side.
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	var body struct {
		Path string `json:"path"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		renderError(w, h.logger, err)
		return
	}

	result, err := ops.ExportScript(r.Context(), h.deps.Store, h.deps.Config, ops.ExportScriptInput{ID: id, Path: body.Path})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleDownload handles GET /projects/{id}/export.md, returning the export as an attachment.
func (h *Handlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}

	p, err := ops.GetProject(r.Context(), h.deps.Store, ops.GetProjectInput{ID: id})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ops.DefaultExportName(p)))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ops.RenderExport(p))
}

// HandleImage handles POST /images.
func (h *Handlers) HandleImage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		renderError(w, h.logger, err)
		return
	}

	result, err := ops.GenerateImage(r.Context(), h.deps.Store, h.deps.Config, h.deps.AI, ops.GenerateImageInput{Prompt: body.Prompt})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusCreated, result)
}

// HandleNotFound answers unknown routes with the JSON error envelope.
func (h *Handlers) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusNotFound, map[string]any{
		"error": map[string]any{"code": "NOT_FOUND", "message": "no such route: " + r.URL.Path, "status": http.StatusNotFound},
	})
}

// HandleMethodNotAllowed answers known routes called with the wrong method.
func (h *Handlers) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusMethodNotAllowed, map[string]any{
		"error": map[string]any{"code": "INVALID_REQUEST", "message": r.Method + " is not allowed here", "status": http.StatusMethodNotAllowed},
	})
}

// projectID parses the {id} route variable.
func projectID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewInvalidRequest("id must be a positive integer")
	}
	return id, nil
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}

// extOf returns the lowercase extension of name, for error messages.
func extOf(name string) string {
	return strings.ToLower(filepath.Ext(name))
}
