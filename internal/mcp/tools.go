package mcp

import "github.com/mark3labs/mcp-go/mcp"

var idParam = mcp.WithNumber("id",
	mcp.Required(),
	mcp.Description("Project id"),
)

var contextParam = mcp.WithString("context",
	mcp.Required(),
	mcp.Enum("brainstorm", "assistant"),
	mcp.Description("Chat surface: brainstorm (ideation) or assistant (editor)"),
)

var createToolDef = mcp.NewTool("project_create",
	mcp.WithDescription("Create a video script project. Returns its id."),
	mcp.WithString("title", mcp.Description("Project title (default: Untitled Project)")),
	mcp.WithString("script", mcp.Description("Initial script text in Markdown")),
)

var listToolDef = mcp.NewTool("project_list",
	mcp.WithDescription("List projects, most recently updated first. Script and chat are omitted."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var getToolDef = mcp.NewTool("project_get",
	mcp.WithDescription("Get one project with its script and full chat history."),
	idParam,
	mcp.WithReadOnlyHintAnnotation(true),
)

var updateToolDef = mcp.NewTool("project_update",
	mcp.WithDescription("Change a project's title and/or script. Omitted fields are left unchanged."),
	idParam,
	mcp.WithString("title", mcp.Description("New title")),
	mcp.WithString("script", mcp.Description("New script text (replaces the whole script)")),
)

var uploadToolDef = mcp.NewTool("project_upload_script",
	mcp.WithDescription("Replace a project's script with a local file. Accepts .txt, .md, .markdown, .html, .htm, .srt and .vtt; "+
		"HTML is converted to Markdown and captions are reduced to their spoken text."),
	idParam,
	mcp.WithString("path", mcp.Required(), mcp.Description("File path; must be directly inside an allowed directory")),
)

var convertToolDef = mcp.NewTool("project_convert_brainstorm",
	mcp.WithDescription("Create a project from a brainstorm conversation. The messages become the project's brainstorm chat history."),
	mcp.WithString("title", mcp.Description("Project title (default: Untitled Project)")),
	mcp.WithArray("brainstorm",
		mcp.Required(),
		mcp.Description("Brainstorm messages in order"),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"role": map[string]any{"type": "string", "enum": []string{"user", "model"}},
				"text": map[string]any{"type": "string"},
			},
			"required": []string{"role", "text"},
		}),
	),
	mcp.WithBoolean("draft", mcp.Description("Ask the AI for a first draft script instead of a placeholder")),
)

var chatViewToolDef = mcp.NewTool("chat_view",
	mcp.WithDescription("Show a project's chat as one surface sees it: its own messages, with other surfaces' runs collapsed into bookmarks."),
	idParam,
	contextParam,
	mcp.WithBoolean("html", mcp.Description("Include rendered HTML for each message")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var chatSendToolDef = mcp.NewTool("chat_send",
	mcp.WithDescription("Send a chat message on a project surface and wait for the complete reply. The turn is saved only when the reply completes."),
	idParam,
	contextParam,
	mcp.WithString("text", mcp.Required(), mcp.Description("Message text")),
	mcp.WithString("selection", mcp.Description("Editor text the message refers to")),
)

var cleanupToolDef = mcp.NewTool("script_cleanup",
	mcp.WithDescription("Remove filler words and tighten a project's script. Returns the cleaned text and a diff."),
	idParam,
	mcp.WithBoolean("apply", mcp.Description("Save the cleaned script (default: preview only)")),
)

var rewriteToolDef = mcp.NewTool("script_rewrite",
	mcp.WithDescription("Rewrite a selected passage of a project's script."),
	idParam,
	mcp.WithString("selection", mcp.Required(), mcp.Description("Exact passage from the script")),
	mcp.WithString("instruction", mcp.Description("How to rewrite it")),
	mcp.WithBoolean("apply", mcp.Description("Replace the first occurrence of the passage and save")),
)

var exportToolDef = mcp.NewTool("script_export",
	mcp.WithDescription("Write a project's title and script to a Markdown file."),
	idParam,
	mcp.WithString("path", mcp.Description("Output .md path (default: exports directory)")),
)

var metadataToolDef = mcp.NewTool("metadata_generate",
	mcp.WithDescription("Suggest titles, descriptions and tags for a project's video."),
	idParam,
	mcp.WithNumber("apply_title", mcp.Description("Index of a suggested title to set as the project title")),
)

var imageToolDef = mcp.NewTool("image_generate",
	mcp.WithDescription("Generate an image (e.g. a thumbnail) and save it as a PNG in the exports directory."),
	mcp.WithString("prompt", mcp.Required(), mcp.Description("Image prompt, bare or as '/generate image <prompt>'")),
)
