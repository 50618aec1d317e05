// Package mcp exposes scriptflow operations as MCP tools over stdio.
package mcp

import (
	"log/slog"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/scriptflow/internal/ai"
	"github.com/hpungsan/scriptflow/internal/config"
	"github.com/hpungsan/scriptflow/internal/db"
	"github.com/hpungsan/scriptflow/internal/scriptfile"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"project_create": {
		def:     createToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCreate },
	},
	"project_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"project_get": {
		def:     getToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGet },
	},
	"project_update": {
		def:     updateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleUpdate },
	},
	"project_upload_script": {
		def:     uploadToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleUpload },
	},
	"project_convert_brainstorm": {
		def:     convertToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleConvert },
	},
	"chat_view": {
		def:     chatViewToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChatView },
	},
	"chat_send": {
		def:     chatSendToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChatSend },
	},
	"script_cleanup": {
		def:     cleanupToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCleanup },
	},
	"script_rewrite": {
		def:     rewriteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRewrite },
	},
	"script_export": {
		def:     exportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport },
	},
	"metadata_generate": {
		def:     metadataToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMetadata },
	},
	"image_generate": {
		def:     imageToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImage },
	},
}

// AllToolNames returns every tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// Deps are the collaborators the tool handlers run against.
type Deps struct {
	Store  *db.Store
	Config *config.Config
	// AI is nil when no API key is configured; AI tools then fail with INVALID_REQUEST
	AI     ai.Provider
	Files  *scriptfile.Reader
	Logger *slog.Logger
}

// NewServer creates an MCP server with the scriptflow tools registered.
// Tools listed in cfg.DisabledTools are left out.
func NewServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		config.AppName,
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(deps)

	disabled := make(map[string]bool)
	if deps.Config != nil {
		for _, name := range deps.Config.DisabledTools {
			disabled[name] = true
		}
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(deps Deps, version string) error {
	return server.ServeStdio(NewServer(deps, version))
}
