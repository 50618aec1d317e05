package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hpungsan/scriptflow/internal/ai"
	"github.com/hpungsan/scriptflow/internal/config"
	"github.com/hpungsan/scriptflow/internal/db"
	"github.com/hpungsan/scriptflow/internal/mcp"
	"github.com/hpungsan/scriptflow/internal/scriptfile"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"create": true, "list": true, "show": true, "update": true,
	"upload": true, "convert": true,
	"chat": true, "history": true,
	"cleanup": true, "metadata": true, "rewrite": true, "image": true,
	"export": true, "render": true,
	"serve": true, "mcp": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode(args []string) bool {
	if len(args) < 2 {
		return false // No args → MCP server
	}
	arg := args[1]
	if arg == "mcp" {
		return false
	}
	if cliCommands[arg] {
		return true
	}
	return isHelpOrVersion(args)
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
  scriptflow
  Video script workspace with AI chat

  Usage: scriptflow <command> [options]
         scriptflow --help

  MCP server mode requires piped input.`)
}

// newProvider builds the AI client, or returns nil when no API key is set.
// The nil is an untyped interface so ops can detect a missing client.
func newProvider(cfg *config.Config, logger *slog.Logger) ai.Provider {
	client, err := ai.NewFromConfig(cfg, logger)
	if err != nil {
		logger.Debug("AI disabled", "error", err)
		return nil
	}
	return client
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before store init (no store needed)
	if isHelpOrVersion(os.Args) {
		app := newCLIApp(appDeps{})
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	baseDir := config.DefaultBaseDir()
	if dir := os.Getenv("SCRIPTFLOW_HOME"); dir != "" {
		baseDir = dir
	}
	if err := config.LoadEnv(baseDir); err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = baseDir
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid config: %v\n", err)
		os.Exit(1)
	}

	cliMode := isCLIMode(os.Args)

	// Unknown argument + terminal → show error (don't start MCP server)
	if !cliMode && len(os.Args) >= 2 && os.Args[1] != "mcp" && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'scriptflow --help' for usage.\n")
		os.Exit(1)
	}

	var logger *slog.Logger
	if cliMode {
		logger = createCLILogger(os.Stderr, cfg.LogLevel)
	} else {
		logger = createMCPLogger(baseDir, cfg.LogLevel)
	}
	slog.SetDefault(logger)

	store := db.NewFromConfig(baseDir, cfg, logger)
	defer store.Close()

	deps := appDeps{
		store:  store,
		cfg:    cfg,
		ai:     newProvider(cfg, logger),
		files:  scriptfile.NewOSReader(cfg.MaxScriptChars),
		logger: logger,
	}

	if cliMode {
		app := newCLIApp(deps)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Warn("unknown tools in disabled_tools", "tools", unknown)
	}
	if err := store.Open(context.Background()); err != nil {
		logger.Error("store unavailable", "error", err)
	}
	for _, w := range store.Warnings() {
		logger.Warn("project skipped during migration", "warning", w.String())
	}

	// MCP server mode (default)
	if err := mcp.Run(deps.mcpDeps(), Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
