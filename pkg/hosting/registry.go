package hosting

import (
	"strings"

	shiperrors "thoreinstein.com/shipwright/pkg/errors"
)

// Registry holds the configured providers in lookup order.
type Registry struct {
	providers []Provider
	known     []KnownHost
}

// KnownHost describes a hosting service the registry can recognise URLs
// for even when no client is configured for it. Matching URLs then fail
// with a ConfigError naming Setting instead of a validation error.
type KnownHost struct {
	Kind                Kind
	Setting             string
	Message             string
	ParseRepoURL        func(rawURL string) (RepoRef, error)
	ParsePullRequestURL func(rawURL string) (PullRequestRef, error)
}

// WithKnownHosts records hosts that can be recognised without a client.
func (r *Registry) WithKnownHosts(hosts ...KnownHost) *Registry {
	r.known = append(r.known, hosts...)
	return r
}

// unconfigured returns a ConfigError when parse accepts rawURL for a
// known host that has no configured provider.
func (r *Registry) unconfigured(rawURL string, parse func(KnownHost) error) error {
	for _, h := range r.known {
		if _, ok := r.Get(h.Kind); ok {
			continue
		}
		if parse(h) == nil {
			return shiperrors.NewConfigError(h.Setting, h.Message)
		}
	}
	return nil
}

// NewRegistry returns a registry over providers. Nil entries are skipped
// so callers can pass optional clients directly.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{}
	for _, p := range providers {
		if p != nil {
			r.providers = append(r.providers, p)
		}
	}
	return r
}

// Get returns the provider for kind.
func (r *Registry) Get(kind Kind) (Provider, bool) {
	for _, p := range r.providers {
		if p.Kind() == kind {
			return p, true
		}
	}
	return nil, false
}

// ResolveRepo finds the provider that recognises a repository URL.
func (r *Registry) ResolveRepo(rawURL string) (Provider, RepoRef, error) {
	for _, p := range r.providers {
		if ref, err := p.ParseRepoURL(rawURL); err == nil {
			return p, ref, nil
		}
	}
	if err := r.unconfigured(rawURL, func(h KnownHost) error {
		if h.ParseRepoURL == nil {
			return shiperrors.NewValidationError("repoUrl", "unsupported")
		}
		_, err := h.ParseRepoURL(rawURL)
		return err
	}); err != nil {
		return nil, RepoRef{}, err
	}
	return nil, RepoRef{}, shiperrors.NewValidationError("repoUrl", "not a recognised Azure DevOps or GitHub repository URL: "+rawURL)
}

// ResolvePullRequest finds the provider that recognises a pull request URL.
func (r *Registry) ResolvePullRequest(rawURL string) (Provider, PullRequestRef, error) {
	for _, p := range r.providers {
		if ref, err := p.ParsePullRequestURL(rawURL); err == nil {
			return p, ref, nil
		}
	}
	if err := r.unconfigured(rawURL, func(h KnownHost) error {
		if h.ParsePullRequestURL == nil {
			return shiperrors.NewValidationError("url", "unsupported")
		}
		_, err := h.ParsePullRequestURL(rawURL)
		return err
	}); err != nil {
		return nil, PullRequestRef{}, err
	}
	return nil, PullRequestRef{}, shiperrors.NewValidationError("url", "not a recognised pull request URL: "+rawURL)
}

// CanCreatePR reports whether a remote URL points at a host we can open
// pull requests on.
func (r *Registry) CanCreatePR(remoteURL string) bool {
	if strings.TrimSpace(remoteURL) == "" {
		return false
	}
	_, _, err := r.ResolveRepo(remoteURL)
	return err == nil
}
