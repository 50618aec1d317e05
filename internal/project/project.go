package project

import (
	"strings"
	"time"
)

// Role identifies who produced a chat turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// Context identifies the conversational surface a message was produced on.
type Context string

const (
	// ContextBrainstorm is the ideation chat used before a script exists.
	ContextBrainstorm Context = "brainstorm"
	// ContextAssistant is the in-editor assistant chat.
	ContextAssistant Context = "assistant"
)

// Contexts lists every known context in display order.
var Contexts = []Context{ContextBrainstorm, ContextAssistant}

// Valid reports whether c is a known context.
func (c Context) Valid() bool {
	return c == ContextBrainstorm || c == ContextAssistant
}

// Label is the surface name shown to users.
func (c Context) Label() string {
	switch c {
	case ContextBrainstorm:
		return "Brainstorm"
	case ContextAssistant:
		return "Editor"
	default:
		return string(c)
	}
}

// Part is one text fragment of a message.
type Part struct {
	Text string `json:"text"`
}

// ChatMessage is one turn of dialogue.
type ChatMessage struct {
	Role      Role    `json:"role"`
	Parts     []Part  `json:"parts"`
	Timestamp int64   `json:"timestamp"`
	Context   Context `json:"context"`
}

// NewMessage builds a single-part message.
func NewMessage(role Role, ctx Context, timestamp int64, text string) ChatMessage {
	return ChatMessage{
		Role:      role,
		Parts:     []Part{{Text: text}},
		Timestamp: timestamp,
		Context:   ctx,
	}
}

// Text concatenates the message parts in order, without a separator.
func (m ChatMessage) Text() string {
	if len(m.Parts) == 1 {
		return m.Parts[0].Text
	}
	var b strings.Builder
	for _, p := range m.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// clone returns a copy that shares no backing arrays with m.
func (m ChatMessage) clone() ChatMessage {
	if m.Parts != nil {
		parts := make([]Part, len(m.Parts))
		copy(parts, m.Parts)
		m.Parts = parts
	}
	return m
}

// Project is one script-writing workspace, the unit of persistence.
type Project struct {
	// ID is assigned by the store on creation and never changes
	ID int64 `json:"id"`

	Title  string `json:"title"`
	Script string `json:"script"`

	// CreatedAt and UpdatedAt are Unix milliseconds
	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`

	// ChatHistory is stored in chronological order across all contexts
	ChatHistory History `json:"chatHistory"`
}

// Millis converts t to Unix milliseconds, the resolution used for all stored times.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
