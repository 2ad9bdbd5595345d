package config

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

// DefaultPath returns ~/.config/shipwright/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, ".config", "shipwright", "config.toml"), nil
}

// Marshal renders cfg as TOML. Secrets are omitted so a generated file
// never carries a token.
func Marshal(cfg *Config) ([]byte, error) {
	doc := map[string]any{
		"server": map[string]any{
			"host": cfg.Server.Host,
			"port": cfg.Server.Port,
		},
		"ado": map[string]any{
			"organization": cfg.ADO.Organization,
			"project":      cfg.ADO.Project,
			"base_url":     cfg.ADO.BaseURL,
		},
		"ai": map[string]any{
			"provider":        cfg.AI.Provider,
			"model":           cfg.AI.Model,
			"anthropic_model": cfg.AI.AnthropicModel,
			"groq_model":      cfg.AI.GroqModel,
			"ollama_model":    cfg.AI.OllamaModel,
			"ollama_endpoint": cfg.AI.OllamaEndpoint,
			"gemini_model":    cfg.AI.GeminiModel,
		},
		"agent": map[string]any{
			"model":            cfg.Agent.Model,
			"max_tokens":       cfg.Agent.MaxTokens,
			"max_turns":        cfg.Agent.MaxTurns,
			"timeout":          cfg.Agent.Timeout.String(),
			"command_timeout":  cfg.Agent.CommandTimeout.String(),
			"allowed_commands": cfg.Agent.AllowedCommands,
		},
		"workspace": map[string]any{
			"base_path":     cfg.Workspace.BasePath,
			"clone_timeout": cfg.Workspace.CloneTimeout.String(),
			"git_timeout":   cfg.Workspace.GitTimeout.String(),
		},
		"instructions": map[string]any{
			"shared_repo": cfg.Instructions.SharedRepo,
		},
		"session": map[string]any{
			"store":         cfg.Session.Store,
			"database_path": cfg.Session.DatabasePath,
		},
		"workflow": map[string]any{
			"link_work_item":   cfg.Workflow.LinkWorkItem,
			"transition_state": cfg.Workflow.TransitionState,
		},
		"logging": map[string]any{
			"level":        cfg.Logging.Level,
			"format":       cfg.Logging.Format,
			"file":         cfg.Logging.File,
			"max_size_mb":  cfg.Logging.MaxSizeMB,
			"max_backups":  cfg.Logging.MaxBackups,
			"max_age_days": cfg.Logging.MaxAgeDays,
		},
	}

	out, err := toml.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode config")
	}
	return out, nil
}

// WriteFile writes cfg to path, refusing to overwrite unless force is set.
func WriteFile(path string, cfg *Config, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.Newf("config file %s already exists (use --force to overwrite)", path)
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}
	return nil
}
