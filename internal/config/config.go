package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

// AppName names the data directory and the repo config directory (".scriptflow").
const AppName = "scriptflow"

// Assistant abort modes.
const (
	AbortRevert = "revert"
	AbortNotice = "notice"
)

// Config holds application configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error. Empty means warn.
	LogLevel string `json:"log_level,omitempty"`

	// MaxScriptChars caps uploaded and generated scripts.
	MaxScriptChars int `json:"max_script_chars"`

	// AllowedPaths is an allowlist of directories for upload/export operations.
	// Paths outside the exports directory require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for upload/export.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	AI   AIConfig   `json:"ai"`
	Chat ChatConfig `json:"chat"`
	Web  WebConfig  `json:"web"`
}

// AIConfig configures the OpenAI-compatible generation endpoint.
type AIConfig struct {
	BaseURL    string `json:"base_url,omitempty"`
	Model      string `json:"model,omitempty"`
	ImageModel string `json:"image_model,omitempty"`

	// APIKeyEnv names the environment variable holding the API key.
	// The key itself is never stored in config files.
	APIKeyEnv string `json:"api_key_env,omitempty"`

	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
	RetryCount     int `json:"retry_count,omitempty"`
}

// ChatConfig configures the chat turn lifecycle.
type ChatConfig struct {
	// Placeholder is the provisional model text shown while a reply streams.
	Placeholder string `json:"placeholder,omitempty"`

	// AssistantAbort selects what the editor assistant shows when a turn fails:
	// "revert" drops the turn, "notice" keeps it with an error notice.
	// Brainstorm always reverts.
	AssistantAbort string `json:"assistant_abort,omitempty"`
}

// WebConfig configures the local HTTP API.
type WebConfig struct {
	// AllowedOrigins lists browser origins allowed to call the API (CORS).
	// Empty allows none beyond same-origin requests.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:       "warn",
		MaxScriptChars: 200000,
		AI: AIConfig{
			BaseURL:        "https://openrouter.ai/api/v1",
			Model:          "google/gemini-2.5-flash",
			ImageModel:     "google/gemini-2.5-flash-image-preview",
			APIKeyEnv:      "SCRIPTFLOW_API_KEY",
			TimeoutSeconds: 120,
			RetryCount:     2,
		},
		Chat: ChatConfig{
			Placeholder:    "...",
			AssistantAbort: AbortNotice,
		},
	}
}

// DefaultBaseDir returns the global data directory ($XDG_DATA_HOME/scriptflow).
func DefaultBaseDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both the global directory and the
// nearest repo directory (.scriptflow/config.json, walking upward from startDir).
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), repo)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindRepoConfig walks upward from startDir to find the nearest .scriptflow/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, "."+AppName, "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadEnv loads dir/.env into the process environment. Variables that are
// already set win. A missing file is not an error.
func LoadEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// APIKey returns the API key from the configured environment variable.
func (c *Config) APIKey() string {
	if c.AI.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.AI.APIKeyEnv))
}

// Timeout returns the AI request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.AI.TimeoutSeconds) * time.Second
}

// Validate rejects values that have a fixed set of options.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	switch c.Chat.AssistantAbort {
	case "", AbortRevert, AbortNotice:
	default:
		return fmt.Errorf("invalid chat.assistant_abort %q (want %q or %q)", c.Chat.AssistantAbort, AbortRevert, AbortNotice)
	}
	if c.MaxScriptChars < 0 {
		return fmt.Errorf("max_script_chars must not be negative")
	}
	return nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}
	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	merged := Merge(DefaultConfig(), cfg)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.LogLevel = pickString(overlay.LogLevel, base.LogLevel)
	result.MaxScriptChars = pickInt(overlay.MaxScriptChars, base.MaxScriptChars)
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.AI = AIConfig{
		BaseURL:        pickString(overlay.AI.BaseURL, base.AI.BaseURL),
		Model:          pickString(overlay.AI.Model, base.AI.Model),
		ImageModel:     pickString(overlay.AI.ImageModel, base.AI.ImageModel),
		APIKeyEnv:      pickString(overlay.AI.APIKeyEnv, base.AI.APIKeyEnv),
		TimeoutSeconds: pickInt(overlay.AI.TimeoutSeconds, base.AI.TimeoutSeconds),
		RetryCount:     pickInt(overlay.AI.RetryCount, base.AI.RetryCount),
	}
	result.Chat = ChatConfig{
		Placeholder:    pickString(overlay.Chat.Placeholder, base.Chat.Placeholder),
		AssistantAbort: pickString(overlay.Chat.AssistantAbort, base.Chat.AssistantAbort),
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.Web.AllowedOrigins = mergeStringSlice(base.Web.AllowedOrigins, overlay.Web.AllowedOrigins)

	return result
}

func pickString(overlay, base string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s != "" && !seen[s] {
				seen[s] = true
				result = append(result, s)
			}
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
