package cmd

import (
	"encoding/base64"
	"strings"

	"github.com/cockroachdb/errors"

	"thoreinstein.com/shipwright/pkg/ado"
	"thoreinstein.com/shipwright/pkg/agent"
	"thoreinstein.com/shipwright/pkg/ai"
	"thoreinstein.com/shipwright/pkg/config"
	"thoreinstein.com/shipwright/pkg/credentials"
	"thoreinstein.com/shipwright/pkg/git"
	"thoreinstein.com/shipwright/pkg/github"
	"thoreinstein.com/shipwright/pkg/hosting"
	"thoreinstein.com/shipwright/pkg/instructions"
	"thoreinstein.com/shipwright/pkg/logging"
	"thoreinstein.com/shipwright/pkg/picker"
	"thoreinstein.com/shipwright/pkg/planner"
	"thoreinstein.com/shipwright/pkg/server"
	"thoreinstein.com/shipwright/pkg/session"
)

// app holds the collaborators built from configuration. Integrations
// without credentials are left nil and reported when first used.
type app struct {
	cfg        *config.Config
	logger     *logging.Logger
	sessions   *session.Manager
	workspaces *git.Manager
	hosts      *hosting.Registry
	ado        *ado.Client
	library    *instructions.Library
	planner    *planner.Planner
	agent      *agent.Runner
}

// newApp wires every component from cfg. Only the session store is
// required; missing tokens and keys disable the features that need them.
func newApp(cfg *config.Config, store credentials.Store) (*app, error) {
	logger := logging.New(cfg.Logging, verbose)
	slogger := logger.Slog()

	a := &app{cfg: cfg, logger: logger}

	adoPAT := credentials.ResolveADOToken(&cfg.ADO, store)
	githubToken := credentials.ResolveGitHubToken(&cfg.GitHub, store)

	var providers []hosting.Provider
	if adoPAT != "" {
		client, err := ado.NewClient(&cfg.ADO, adoPAT, verbose, ado.WithLogger(slogger))
		if err != nil {
			return nil, err
		}
		a.ado = client
		providers = append(providers, client)
	} else {
		slogger.Warn("Azure DevOps is not configured; set ADO_PAT or run 'shipwright auth login'")
	}
	if githubToken != "" {
		opts := []github.APIClientOption{github.WithAPILogger(slogger)}
		if cfg.GitHub.BaseURL != "" {
			opts = append(opts, github.WithBaseURL(cfg.GitHub.BaseURL))
		}
		client, err := github.NewAPIClient(githubToken, verbose, opts...)
		if err != nil {
			return nil, err
		}
		providers = append(providers, client)
	}
	a.hosts = hosting.NewRegistry(providers...).WithKnownHosts(knownHosts...)

	a.workspaces = git.NewManager(cfg.Workspace, verbose,
		git.WithLogger(slogger),
		git.WithAuth(authHeader(adoPAT, githubToken)),
	)
	a.library = instructions.NewLibrary(cfg.Instructions, a.workspaces, verbose, instructions.WithLogger(slogger))

	if provider, err := ai.NewProvider(&cfg.AI, slogger); err != nil {
		slogger.Warn("planning is disabled", "error", err)
	} else {
		a.planner = planner.New(provider, verbose, planner.WithLogger(slogger))
	}

	if runner, err := agent.New(cfg.Agent, verbose, agent.WithLogger(slogger)); err != nil {
		slogger.Warn("the coding agent is disabled", "error", err)
	} else {
		a.agent = runner
	}

	st, err := session.OpenStore(cfg.Session)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open session store")
	}
	a.sessions = session.NewManager(st, session.WithLogger(slogger))

	return a, nil
}

// knownHosts lets the registry report a missing token for URLs on a host
// that has no client.
var knownHosts = []hosting.KnownHost{
	{
		Kind:                hosting.KindAzureDevOps,
		Setting:             "ado.pat",
		Message:             "Azure DevOps is not configured (set ADO_PAT or run 'shipwright auth login')",
		ParseRepoURL:        ado.ParseRepoURL,
		ParsePullRequestURL: ado.ParsePullRequestURL,
	},
	{
		Kind:                hosting.KindGitHub,
		Setting:             "github.token",
		Message:             "GitHub is not configured (set GITHUB_TOKEN or run 'shipwright auth login --github')",
		ParseRepoURL:        github.ParseRepoURL,
		ParsePullRequestURL: github.ParsePullRequestURL,
	},
}

// deps adapts the app to the HTTP server. Nil concrete clients become nil
// interfaces so handlers can detect them.
func (a *app) deps() server.Deps {
	d := server.Deps{
		Sessions:   a.sessions,
		Workspaces: a.workspaces,
		Hosts:      a.hosts,
		Library:    a.library,
		Planner:    a.planner,
		Picker:     picker.New(),
		Workflow:   a.cfg.Workflow,
	}
	if a.ado != nil {
		d.WorkItems = a.ado
		d.Threads = a.ado
	}
	if a.agent != nil {
		d.Agent = a.agent
	}
	return d
}

func (a *app) Close() error {
	err := a.sessions.Close()
	if cerr := a.logger.Close(); err == nil {
		err = cerr
	}
	return err
}

// authHeader returns the http.extraHeader git sends when cloning or
// pushing: the PAT for Azure DevOps remotes and the token for GitHub.
func authHeader(adoPAT, githubToken string) git.AuthFunc {
	basic := func(user, secret string) string {
		return "Authorization: Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+secret))
	}
	return func(remote string) string {
		if !isHTTP(remote) {
			return ""
		}
		if _, err := ado.ParseRepoURL(remote); err == nil {
			if adoPAT == "" {
				return ""
			}
			return basic("", adoPAT)
		}
		if _, err := github.ParseRepoURL(remote); err == nil {
			if githubToken == "" {
				return ""
			}
			return basic("x-access-token", githubToken)
		}
		return ""
	}
}

// isHTTP reports whether the remote is fetched over HTTP(S). SSH remotes
// authenticate with keys.
func isHTTP(remote string) bool {
	return strings.HasPrefix(remote, "https://") || strings.HasPrefix(remote, "http://")
}
