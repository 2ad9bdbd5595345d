package credentials

import (
	"os"

	"thoreinstein.com/shipwright/pkg/config"
)

// ResolveADOToken returns the Azure DevOps PAT.
//
// Precedence:
//  1. ADO_PAT environment variable (already applied to cfg by config.Load)
//  2. ado.pat from the config file or SHIPWRIGHT_ADO_PAT
//  3. The token saved by 'shipwright auth login'
func ResolveADOToken(cfg *config.ADOConfig, store Store) string {
	if cfg != nil && cfg.PAT != "" {
		return cfg.PAT
	}
	return fromStore(store, ADOToken)
}

// ResolveGitHubToken returns the GitHub token.
//
// Precedence:
//  1. GITHUB_TOKEN environment variable
//  2. SHIPWRIGHT_GITHUB_TOKEN or github.token from the config file
//  3. The token saved by 'shipwright auth login --github'
func ResolveGitHubToken(cfg *config.GitHubConfig, store Store) string {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		return token
	}
	if cfg != nil && cfg.Token != "" {
		return cfg.Token
	}
	return fromStore(store, GitHubToken)
}

func fromStore(store Store, name string) string {
	if store == nil {
		return ""
	}
	v, err := store.Get(name)
	if err != nil {
		return ""
	}
	return v
}
