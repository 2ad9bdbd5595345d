package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server" toml:"server"`
	ADO          ADOConfig          `mapstructure:"ado" toml:"ado"`
	GitHub       GitHubConfig       `mapstructure:"github" toml:"github"`
	AI           AIConfig           `mapstructure:"ai" toml:"ai"`
	Agent        AgentConfig        `mapstructure:"agent" toml:"agent"`
	Workspace    WorkspaceConfig    `mapstructure:"workspace" toml:"workspace"`
	Instructions InstructionsConfig `mapstructure:"instructions" toml:"instructions"`
	Session      SessionConfig      `mapstructure:"session" toml:"session"`
	Workflow     WorkflowConfig     `mapstructure:"workflow" toml:"workflow"`
	Logging      LoggingConfig      `mapstructure:"logging" toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host" toml:"host"`
	Port int    `mapstructure:"port" toml:"port"` // PORT env var takes precedence
}

// ADOConfig holds Azure DevOps configuration
type ADOConfig struct {
	Organization string `mapstructure:"organization" toml:"organization"` // ADO_ORG env var takes precedence
	Project      string `mapstructure:"project" toml:"project"`           // ADO_PROJECT env var takes precedence
	PAT          string `mapstructure:"pat" toml:"pat"`                   // ADO_PAT env var takes precedence
	BaseURL      string `mapstructure:"base_url" toml:"base_url"`         // Default: https://dev.azure.com
}

// GitHubConfig holds GitHub integration configuration
type GitHubConfig struct {
	Token    string `mapstructure:"token" toml:"token"` // GITHUB_TOKEN env var takes precedence
	BaseURL  string `mapstructure:"base_url" toml:"base_url"`
	ClientID string `mapstructure:"client_id" toml:"client_id"` // OAuth app client ID (for device flow)
}

// AIConfig holds the chat provider used for planning and discussion
type AIConfig struct {
	Provider string `mapstructure:"provider" toml:"provider"` // "anthropic", "groq", "ollama", "gemini"
	Model    string `mapstructure:"model" toml:"model"`
	APIKey   string `mapstructure:"api_key" toml:"api_key"`
	Endpoint string `mapstructure:"endpoint" toml:"endpoint"`

	// Per-provider default models (used when Model is empty)
	AnthropicModel string `mapstructure:"anthropic_model" toml:"anthropic_model"`
	GroqModel      string `mapstructure:"groq_model" toml:"groq_model"`
	OllamaModel    string `mapstructure:"ollama_model" toml:"ollama_model"`
	OllamaEndpoint string `mapstructure:"ollama_endpoint" toml:"ollama_endpoint"`
	GeminiModel    string `mapstructure:"gemini_model" toml:"gemini_model"`
}

// AgentConfig holds the coding agent configuration
type AgentConfig struct {
	APIKey          string        `mapstructure:"api_key" toml:"api_key"` // ANTHROPIC_API_KEY env var takes precedence
	Model           string        `mapstructure:"model" toml:"model"`
	MaxTokens       int           `mapstructure:"max_tokens" toml:"max_tokens"`
	MaxTurns        int           `mapstructure:"max_turns" toml:"max_turns"`
	Timeout         time.Duration `mapstructure:"timeout" toml:"timeout"`
	CommandTimeout  time.Duration `mapstructure:"command_timeout" toml:"command_timeout"`
	AllowedCommands []string      `mapstructure:"allowed_commands" toml:"allowed_commands"`
}

// WorkspaceConfig holds clone location configuration
type WorkspaceConfig struct {
	BasePath     string        `mapstructure:"base_path" toml:"base_path"` // Parent of .workspaces
	CloneTimeout time.Duration `mapstructure:"clone_timeout" toml:"clone_timeout"`
	GitTimeout   time.Duration `mapstructure:"git_timeout" toml:"git_timeout"`
}

// InstructionsConfig holds instruction and skill configuration
type InstructionsConfig struct {
	SharedRepo string `mapstructure:"shared_repo" toml:"shared_repo"` // SHARED_INSTRUCTIONS_REPO env var takes precedence
}

// SessionConfig selects the session store
type SessionConfig struct {
	Store        string `mapstructure:"store" toml:"store"` // "memory" or "sqlite"
	DatabasePath string `mapstructure:"database_path" toml:"database_path"`
}

// WorkflowConfig holds post-PR automation settings
type WorkflowConfig struct {
	LinkWorkItem    bool   `mapstructure:"link_work_item" toml:"link_work_item"`     // Link the work item to the created PR
	TransitionState string `mapstructure:"transition_state" toml:"transition_state"` // Work item state to set after PR creation; empty disables
}

// LoggingConfig holds log output configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" toml:"level"`
	Format     string `mapstructure:"format" toml:"format"` // "text" or "json"
	File       string `mapstructure:"file" toml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" toml:"max_age_days"`
}

// SecurityWarning represents a configuration security issue
type SecurityWarning struct {
	Field   string
	Message string
}

// Load loads the configuration from viper and the process environment.
func Load() (*Config, error) {
	return LoadWithLookup(os.LookupEnv)
}

// LoadWithLookup is Load with an injectable environment, used by tests.
func LoadWithLookup(lookup func(string) (string, bool)) (*Config, error) {
	config := &Config{}

	setDefaults()

	if err := viper.Unmarshal(config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	env, err := loadEnv(lookup)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read environment")
	}
	env.apply(config)

	if err := expandPaths(config); err != nil {
		return nil, errors.Wrap(err, "failed to expand paths")
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return config, nil
}

// CheckSecurityWarnings returns warnings for tokens stored in config files.
func CheckSecurityWarnings(config *Config) []SecurityWarning {
	var warnings []SecurityWarning

	if viper.InConfig("ado.pat") && os.Getenv("ADO_PAT") == "" {
		warnings = append(warnings, SecurityWarning{
			Field:   "ado.pat",
			Message: "Azure DevOps PAT is set in config file. For security, use the ADO_PAT environment variable or 'shipwright auth login' instead.",
		})
	}

	if config.GitHub.Token != "" && viper.InConfig("github.token") && os.Getenv("GITHUB_TOKEN") == "" {
		warnings = append(warnings, SecurityWarning{
			Field:   "github.token",
			Message: "GitHub token is set in config file. For security, use the GITHUB_TOKEN environment variable instead.",
		})
	}

	if config.AI.APIKey != "" && viper.InConfig("ai.api_key") &&
		os.Getenv("ANTHROPIC_API_KEY") == "" && os.Getenv("GROQ_API_KEY") == "" {
		warnings = append(warnings, SecurityWarning{
			Field:   "ai.api_key",
			Message: "AI API key is set in config file. For security, use ANTHROPIC_API_KEY or GROQ_API_KEY instead.",
		})
	}

	return warnings
}

// ValidProviders lists the supported chat providers.
var ValidProviders = []string{"anthropic", "groq", "ollama", "gemini"}

// ValidSessionStores lists the supported session stores.
var ValidSessionStores = []string{"memory", "sqlite"}

func oneOf(value string, valid []string) bool {
	for _, v := range valid {
		if value == v {
			return true
		}
	}
	return false
}

// Validate validates the configuration and returns any validation errors.
func (c *Config) Validate() error {
	if !oneOf(strings.ToLower(c.AI.Provider), ValidProviders) {
		return errors.Newf("ai.provider: unsupported provider %q: must be one of: %s", c.AI.Provider, strings.Join(ValidProviders, ", "))
	}
	if !oneOf(c.Session.Store, ValidSessionStores) {
		return errors.Newf("session.store: unsupported store %q: must be one of: %s", c.Session.Store, strings.Join(ValidSessionStores, ", "))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port: %d is out of range", c.Server.Port)
	}
	if c.Agent.Timeout <= 0 {
		return errors.New("agent.timeout: must be positive")
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 3000)

	viper.SetDefault("ado.organization", "")
	viper.SetDefault("ado.project", "")
	viper.SetDefault("ado.pat", "")
	viper.SetDefault("ado.base_url", "https://dev.azure.com")

	viper.SetDefault("github.token", "")
	viper.SetDefault("github.base_url", "")
	viper.SetDefault("github.client_id", "") // OAuth app client ID for device flow

	viper.SetDefault("ai.provider", "anthropic")
	viper.SetDefault("ai.model", "")
	viper.SetDefault("ai.api_key", "")
	viper.SetDefault("ai.endpoint", "")
	viper.SetDefault("ai.anthropic_model", "claude-sonnet-4-20250514")
	viper.SetDefault("ai.groq_model", "llama-3.3-70b-versatile")
	viper.SetDefault("ai.ollama_model", "llama3.2")
	viper.SetDefault("ai.ollama_endpoint", "http://localhost:11434")
	viper.SetDefault("ai.gemini_model", "googleai/gemini-2.5-flash")

	viper.SetDefault("agent.model", "claude-sonnet-4-20250514")
	viper.SetDefault("agent.max_tokens", 8192)
	viper.SetDefault("agent.max_turns", 50)
	viper.SetDefault("agent.timeout", 600*time.Second)
	viper.SetDefault("agent.command_timeout", 300*time.Second)
	viper.SetDefault("agent.allowed_commands", []string{
		"go", "npm", "npx", "yarn", "pnpm", "dotnet", "make", "pytest", "python", "mvn", "gradle", "cargo",
	})

	viper.SetDefault("workspace.base_path", "")
	viper.SetDefault("workspace.clone_timeout", 300*time.Second)
	viper.SetDefault("workspace.git_timeout", 60*time.Second)

	viper.SetDefault("instructions.shared_repo", "")

	viper.SetDefault("session.store", "memory")
	viper.SetDefault("session.database_path", filepath.Join(homeDir, ".local", "share", "shipwright", "sessions.db"))

	viper.SetDefault("workflow.link_work_item", true)
	viper.SetDefault("workflow.transition_state", "")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.file", "")
	viper.SetDefault("logging.max_size_mb", 20)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age_days", 14)
}

// expandPaths expands ~ in path-valued settings and resolves the
// workspace base to an absolute directory.
func expandPaths(config *Config) error {
	var err error

	config.Session.DatabasePath, err = expandPath(config.Session.DatabasePath)
	if err != nil {
		return err
	}

	config.Logging.File, err = expandPath(config.Logging.File)
	if err != nil {
		return err
	}

	config.Workspace.BasePath, err = expandPath(config.Workspace.BasePath)
	if err != nil {
		return err
	}
	if config.Workspace.BasePath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		config.Workspace.BasePath = cwd
	}

	return nil
}

// expandPath expands ~ to home directory
func expandPath(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(homeDir, path[1:]), nil
}
