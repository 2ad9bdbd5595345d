package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

// envOverlay holds the plain (unprefixed) environment variables the
// application has always honoured. They win over config file values and
// SHIPWRIGHT_* overrides.
type envOverlay struct {
	ADOPat          string `env:"ADO_PAT"`
	ADOOrg          string `env:"ADO_ORG"`
	ADOProject      string `env:"ADO_PROJECT"`
	SharedRepo      string `env:"SHARED_INSTRUCTIONS_REPO"`
	Port            int    `env:"PORT"`
	GitHubToken     string `env:"GITHUB_TOKEN"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
}

// lookupFunc adapts a LookupEnv-style function to envconfig.Lookuper.
type lookupFunc func(string) (string, bool)

func (f lookupFunc) Lookup(key string) (string, bool) { return f(key) }

func loadEnv(lookup func(string) (string, bool)) (*envOverlay, error) {
	var env envOverlay
	err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   &env,
		Lookuper: lookupFunc(lookup),
	})
	if err != nil {
		return nil, err
	}
	return &env, nil
}

func (e *envOverlay) apply(c *Config) {
	if e.ADOPat != "" {
		c.ADO.PAT = e.ADOPat
	}
	if e.ADOOrg != "" {
		c.ADO.Organization = e.ADOOrg
	}
	if e.ADOProject != "" {
		c.ADO.Project = e.ADOProject
	}
	if e.SharedRepo != "" {
		c.Instructions.SharedRepo = e.SharedRepo
	}
	if e.Port != 0 {
		c.Server.Port = e.Port
	}
	if e.GitHubToken != "" {
		c.GitHub.Token = e.GitHubToken
	}
	if e.AnthropicAPIKey != "" {
		c.Agent.APIKey = e.AnthropicAPIKey
		if c.AI.APIKey == "" && c.AI.Provider == "anthropic" {
			c.AI.APIKey = e.AnthropicAPIKey
		}
	}
}
