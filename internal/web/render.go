package web

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hpungsan/scriptflow/internal/chat"
	"github.com/hpungsan/scriptflow/internal/errors"
	"github.com/hpungsan/scriptflow/internal/project"
	"github.com/hpungsan/scriptflow/internal/render"
)

// maxBodyBytes caps JSON request bodies. Scripts are the largest field.
const maxBodyBytes = 8 << 20

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderError writes the error envelope shared with the MCP tools.
// Internal error details are not exposed.
func renderError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var sfErr *errors.ScriptflowError
	if !stderrors.As(err, &sfErr) {
		sfErr = errors.NewInternal(err)
	}
	if sfErr.Status >= 500 {
		logger.Warn("request failed", "code", sfErr.Code, "error", err)
	}

	errorObj := map[string]any{
		"code":    string(sfErr.Code),
		"message": sfErr.Message,
		"status":  sfErr.Status,
	}
	if sfErr.Code != errors.ErrInternal && sfErr.Details != nil {
		errorObj["details"] = sfErr.Details
	}
	renderJSON(w, sfErr.Status, map[string]any{"error": errorObj})
}

// decodeBody decodes a JSON request body into dst. An empty body leaves dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return errors.NewInvalidRequest(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return errors.NewInvalidRequest(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

// wantsEventStream reports whether the client asked for server-sent events.
func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// writeEvent writes one server-sent event and flushes it.
func writeEvent(w http.ResponseWriter, event string, data any) {
	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// TranscriptData is the template data for a read-only chat transcript page.
type TranscriptData struct {
	Title   string
	Context project.Context
	Version string
	Blocks  []TranscriptBlock
}

// TranscriptBlock is one rendered entry of a transcript page.
type TranscriptBlock struct {
	Bookmark bool
	Label    string
	Role     project.Role
	Time     string
	HTML     template.HTML
}

var transcriptTmpl = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}} · {{.Context}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 48rem; margin: 2rem auto; }
.msg { border-left: 3px solid #ccc; padding: 0 1rem; margin: 1rem 0; }
.msg.model { border-color: #6a5acd; }
.bookmark { color: #666; font-style: italic; }
time { color: #888; font-size: 0.8rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{range .Blocks}}{{if .Bookmark}}<p class="bookmark">{{.Label}}</p>
{{else}}<div class="msg {{.Role}}"><time>{{.Time}}</time>{{.HTML}}</div>
{{end}}{{else}}<p>No messages yet.</p>
{{end}}<footer><small>scriptflow {{.Version}}</small></footer>
</body>
</html>
`))

// renderTranscript renders a project's chat surface as an HTML page.
func renderTranscript(w http.ResponseWriter, p *project.Project, c project.Context, version string) error {
	data := TranscriptData{Title: p.Title, Context: c, Version: version}
	for _, b := range chat.Partition(p.ChatHistory, c) {
		if b.Kind == chat.BlockBookmark {
			data.Blocks = append(data.Blocks, TranscriptBlock{Bookmark: true, Label: b.Label()})
			continue
		}
		data.Blocks = append(data.Blocks, TranscriptBlock{
			Role: b.Message.Role,
			Time: formatTime(b.Message.Timestamp),
			HTML: render.MarkdownHTML(b.Message.Text()),
		})
	}

	var buf bytes.Buffer
	if err := transcriptTmpl.Execute(&buf, data); err != nil {
		return errors.NewInternal(fmt.Errorf("render transcript: %w", err))
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
	return nil
}

// formatTime formats Unix milliseconds as "2006-01-02 15:04" UTC.
func formatTime(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}
