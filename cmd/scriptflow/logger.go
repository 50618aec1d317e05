package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lmittmann/tint"
)

// createMCPLogger creates a logger that stays off stdout, which carries the
// MCP protocol, by writing JSON lines to <baseDir>/logs/scriptflow.log.
func createMCPLogger(baseDir, logLevel string) *slog.Logger {
	logDir := filepath.Join(baseDir, "logs")
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return discardLogger()
	}

	file, err := os.OpenFile(filepath.Join(logDir, "scriptflow.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return discardLogger()
	}

	return slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level: parseLogLevel(logLevel),
	}))
}

// createCLILogger creates a colorized logger on stderr for CLI commands.
func createCLILogger(w io.Writer, logLevel string) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      parseLogLevel(logLevel),
		TimeFormat: "15:04:05",
	}))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// parseLogLevel converts string log level to slog.Level
func parseLogLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
