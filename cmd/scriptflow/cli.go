package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/scriptflow/internal/ai"
	"github.com/hpungsan/scriptflow/internal/config"
	"github.com/hpungsan/scriptflow/internal/db"
	"github.com/hpungsan/scriptflow/internal/errors"
	"github.com/hpungsan/scriptflow/internal/mcp"
	"github.com/hpungsan/scriptflow/internal/ops"
	"github.com/hpungsan/scriptflow/internal/project"
	"github.com/hpungsan/scriptflow/internal/render"
	"github.com/hpungsan/scriptflow/internal/scriptfile"
	"github.com/hpungsan/scriptflow/internal/web"
)

// appDeps are shared by every command.
type appDeps struct {
	store  *db.Store
	cfg    *config.Config
	ai     ai.Provider
	files  *scriptfile.Reader
	logger *slog.Logger
}

func (d appDeps) mcpDeps() mcp.Deps {
	return mcp.Deps{Store: d.store, Config: d.cfg, AI: d.ai, Files: d.files, Logger: d.logger}
}

func (d appDeps) webDeps() web.Deps {
	return web.Deps{Store: d.store, Config: d.cfg, AI: d.ai, Files: d.files, Logger: d.logger}
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(d appDeps) *cli.App {
	app := &cli.App{
		Name:    config.AppName,
		Usage:   "Video script workspace with AI chat",
		Version: Version,
		Commands: []*cli.Command{
			createCmd(d),
			listCmd(d),
			showCmd(d),
			updateCmd(d),
			uploadCmd(d),
			convertCmd(d),
			chatCmd(d),
			historyCmd(d),
			cleanupCmd(d),
			metadataCmd(d),
			rewriteCmd(d),
			imageCmd(d),
			exportCmd(d),
			renderCmd(d),
			serveCmd(d),
			mcpCmd(d),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// createCmd creates the create command.
func createCmd(d appDeps) *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create a project (script from --script or piped stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Project title (default: Untitled Project)"},
			&cli.StringFlag{Name: "script", Aliases: []string{"s"}, Usage: "Initial script text"},
			&cli.BoolFlag{Name: "stdin", Usage: "Read the script from stdin"},
		},
		Action: func(c *cli.Context) error {
			script := c.String("script")
			if c.Bool("stdin") {
				text, err := readInput(c)
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				script = text
			}

			output, err := ops.CreateProject(c.Context, d.store, d.cfg, ops.CreateProjectInput{
				Title:  c.String("title"),
				Script: script,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// listCmd creates the list command.
func listCmd(d appDeps) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List projects, most recently updated first",
		Action: func(c *cli.Context) error {
			output, err := ops.ListProjects(c.Context, d.store)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// showCmd creates the show command.
func showCmd(d appDeps) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a project with its script and chat history",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "script-only", Usage: "Print only the script text"},
		},
		Action: func(c *cli.Context) error {
			id, err := argID(c)
			if err != nil {
				return outputError(err)
			}
			p, err := ops.GetProject(c.Context, d.store, ops.GetProjectInput{ID: id})
			if err != nil {
				return outputError(err)
			}
			if c.Bool("script-only") {
				_, err := fmt.Fprintln(c.App.Writer, p.Script)
				return err
			}
			return outputJSON(c, p)
		},
	}
}

// updateCmd creates the update command.
func updateCmd(d appDeps) *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Change a project's title and/or script",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "New title"},
			&cli.StringFlag{Name: "script", Aliases: []string{"s"}, Usage: "New script text"},
			&cli.BoolFlag{Name: "stdin", Usage: "Read the new script from stdin"},
		},
		Action: func(c *cli.Context) error {
			id, err := argID(c)
			if err != nil {
				return outputError(err)
			}

			input := ops.UpdateProjectInput{ID: id}
			if c.IsSet("title") {
				title := c.String("title")
				input.Title = &title
			}
			if c.IsSet("script") {
				script := c.String("script")
				input.Script = &script
			}
			if c.Bool("stdin") {
				text, err := readInput(c)
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				input.Script = &text
			}

			p, err := ops.UpdateProject(c.Context, d.store, d.cfg, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, ops.Summarize(p))
		},
	}
}

// uploadCmd creates the upload command.
func uploadCmd(d appDeps) *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Replace a project's script with a .txt, .md, .html, .srt or .vtt file",
		ArgsUsage: "<id> <path>",
		Action: func(c *cli.Context) error {
			id, err := argID(c)
			if err != nil {
				return outputError(err)
			}
			if c.NArg() < 2 {
				return outputError(errors.NewInvalidRequest("path is required"))
			}

			output, err := ops.UploadScript(c.Context, d.store, d.cfg, d.files, ops.UploadScriptInput{
				ID:   id,
				Path: c.Args().Get(1),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// brainstormLine is one message of a brainstorm file.
type brainstormLine struct {
	Role      project.Role `json:"role"`
	Text      string       `json:"text"`
	Timestamp int64        `json:"timestamp,omitempty"`
}

// convertCmd creates the convert command.
func convertCmd(d appDeps) *cli.Command {
	return &cli.Command{
		Name:  "convert",
		Usage: "Create a project from a brainstorm (JSON array of {role, text} on stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Project title"},
			&cli.BoolFlag{Name: "draft", Usage: "Ask the AI for a first draft script"},
		},
		Action: func(c *cli.Context) error {
			data, err := io.ReadAll(c.App.Reader)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			var lines []brainstormLine
			if err := json.Unmarshal(data, &lines); err != nil {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("brainstorm must be a JSON array: %v", err)))
			}

			history := make(project.History, 0, len(lines))
			for _, l := range lines {
				history = append(history, project.NewMessage(l.Role, project.ContextBrainstorm, l.Timestamp, l.Text))
			}

			output, err := ops.ConvertBrainstorm(c.Context, d.store, d.cfg, d.ai, ops.ConvertBrainstormInput{
				Title:      c.String("title"),
				Brainstorm: history,
				Draft:      c.Bool("draft"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// contextFlag selects the chat surface.
func contextFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "context",
		Aliases: []string{"c"},
		Value:   string(project.ContextAssistant),
		Usage:   "Chat surface: brainstorm|assistant",
	}
}

// chatCmd creates the chat command.
func chatCmd(d appDeps) *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "Send a chat message and stream the reply",
		ArgsUsage: "<id> <message...>",
		Flags: []cli.Flag{
			contextFlag(),
			&cli.StringFlag{Name: "selection", Usage: "Editor text the message refers to"},
		},
		Action: func(c *cli.Context) error {
			id, err := argID(c)
			if err != nil {
				return outputError(err)
			}
			text := strings.Join(c.Args().Tail(), " ")

			w := c.App.Writer
			output, err := ops.SendChat(c.Context, d.store, d.cfg, d.ai, d.logger, ops.SendChatInput{
				ID:        id,
				Context:   project.Context(c.String("context")),
				Text:      text,
				Selection: c.String("selection"),
			}, func(fragment string) {
				fmt.Fprint(w, fragment)
			})
			if err != nil {
				return outputError(err)
			}
			_, err = fmt.Fprintln(w)
			d.logger.Debug("chat turn saved", "project_id", output.ID, "messages", output.Messages)
			return err
		},
	}
}

// historyCmd creates the history command.
func historyCmd(d appDeps) *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Show a chat surface with other surfaces collapsed into bookmarks",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			contextFlag(),
			&cli.BoolFlag{Name: "json", Usage: "Print blocks as JSON"},
		},
		Action: func(c *cli.Context) error {
			id, err := argID(c)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.ChatView(c.Context, d.store, ops.ChatViewInput{
				ID:      id,
				Context: project.Context(c.String("context")),
			})
			if err != nil {
				return outputError(err)
			}
			if c.Bool("json") {
				return outputJSON(c, output)
			}
			_, err = fmt.Fprint(c.App.Writer, renderHistory(output.Blocks))
			return err
		},
	}
}

// cleanupCmd creates the cleanup command.
func cleanupCmd(d appDeps) *cli.Command {
	return &cli.Command{
		Name:      "cleanup",
		Usage:     "Remove filler words from a script and show the diff",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "apply", Usage: "Save the cleaned script"},
			&cli.BoolFlag{Name: "json", Usage: "Print the full result as JSON"},
		},
		Action: func(c *cli.Context) error {
			id, err := argID(c)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.CleanupScript(c.Context, d.store, d.cfg, d.ai, ops.CleanupScriptInput{ID: id, Apply: c.Bool("apply")})
			if err != nil {
				return outputError(err)
			}
			if c.Bool("json") {
				return outputJSON(c, output)
			}
			_, err = fmt.Fprint(c.App.Writer, output.Diff)
			return err
		},
	}
}

// metadataCmd creates the metadata command.
func metadataCmd(d appDeps) *cli.Command {
	return &cli.Command{
		Name:      "metadata",
		Usage:     "Suggest titles, descriptions and tags for a project",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "apply-title", Value: -1, Usage: "Index of a suggested title to set as the project title"},
			&cli.BoolFlag{Name: "schema", Usage: "Print the JSON schema the reply must follow and exit"},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("schema") {
				schema, err := ops.MetadataSchema()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				_, err = fmt.Fprintln(c.App.Writer, schema)
				return err
			}

			id, err := argID(c)
			if err != nil {
				return outputError(err)
			}
			input := ops.GenerateMetadataInput{ID: id}
			if n := c.Int("apply-title"); n >= 0 {
				input.ApplyTitle = &n
			}
			output, err := ops.GenerateMetadata(c.Context, d.store, d.ai, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// rewriteCmd creates the rewrite command.
func rewriteCmd(d appDeps) *cli.Command {
	return &cli.Command{
		Name:      "rewrite",
		Usage:     "Rewrite a passage of a project's script",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "selection", Required: true, Usage: "Exact passage from the script"},
			&cli.StringFlag{Name: "instruction", Aliases: []string{"i"}, Usage: "How to rewrite it"},
			&cli.BoolFlag{Name: "apply", Usage: "Replace the passage and save"},
		},
		Action: func(c *cli.Context) error {
			id, err := argID(c)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Rewrite(c.Context, d.store, d.cfg, d.ai, ops.RewriteInput{
				ID:          id,
				Selection:   c.String("selection"),
				Instruction: c.String("instruction"),
				Apply:       c.Bool("apply"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// imageCmd creates the image command.
func imageCmd(d appDeps) *cli.Command {
	return &cli.Command{
		Name:      "image",
		Usage:     "Generate an image into the exports directory",
		ArgsUsage: "<prompt...>",
		Action: func(c *cli.Context) error {
			output, err := ops.GenerateImage(c.Context, d.store, d.cfg, d.ai, ops.GenerateImageInput{
				Prompt: strings.Join(c.Args().Slice(), " "),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(d appDeps) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Write a project's title and script to a Markdown file",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output .md path (default: exports directory)"},
		},
		Action: func(c *cli.Context) error {
			id, err := argID(c)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.ExportScript(c.Context, d.store, d.cfg, ops.ExportScriptInput{ID: id, Path: c.String("path")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// renderCmd creates the render command.
func renderCmd(d appDeps) *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Print a project's script rendered as HTML",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := argID(c)
			if err != nil {
				return outputError(err)
			}
			p, err := ops.GetProject(c.Context, d.store, ops.GetProjectInput{ID: id})
			if err != nil {
				return outputError(err)
			}
			html, err := render.Markdown(ops.RenderExport(p))
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			_, err = fmt.Fprint(c.App.Writer, html)
			return err
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(d appDeps) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the JSON API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8787, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(d.webDeps(), Version, c.String("bind"), c.Int("port"))
			return web.Run(srv, d.logger)
		},
	}
}

// mcpCmd creates the mcp command. It is routed before the CLI so that
// logs go to a file; this entry documents it in --help.
func mcpCmd(d appDeps) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP server on stdio (the default when stdin is piped)",
		Action: func(c *cli.Context) error {
			return mcp.Run(d.mcpDeps(), Version)
		},
	}
}

// Helper functions

// outputJSON marshals result to the app's writer as JSON.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var sfErr *errors.ScriptflowError
	if stderrors.As(err, &sfErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", sfErr.Code, sfErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// argID parses the first positional argument as a project id.
func argID(c *cli.Context) (int64, error) {
	if c.NArg() == 0 {
		return 0, errors.NewInvalidRequest("project id is required")
	}
	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("invalid project id %q", c.Args().First()))
	}
	return id, nil
}

// readInput reads all of the app's input, trimming a trailing newline.
func readInput(c *cli.Context) (string, error) {
	r := c.App.Reader
	if r == nil {
		r = os.Stdin
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
