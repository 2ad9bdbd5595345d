package github

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/cli/oauth"

	shiperrors "thoreinstein.com/shipwright/pkg/errors"
)

const (
	// DefaultGitHubHost is the default GitHub web host.
	DefaultGitHubHost = "https://github.com"

	// DefaultScopes are the OAuth scopes needed to push and open pull requests.
	DefaultScopes = "repo"
)

// OAuthConfig holds OAuth configuration for device flow authentication.
type OAuthConfig struct {
	ClientID string   // OAuth app client ID (required for device flow)
	Scopes   []string // OAuth scopes to request
	HostURL  string   // GitHub host URL (default: github.com)
}

// HostFromBaseURL maps a REST API base URL to the web host that serves
// the device flow. GitHub Enterprise serves the API under /api/v3; an
// empty or api.github.com URL means github.com.
func HostFromBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return DefaultGitHubHost
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" || u.Host == "api.github.com" {
		return DefaultGitHubHost
	}
	return u.Scheme + "://" + u.Host
}

// DeviceAuth performs the OAuth device flow and returns an access token.
// The user is shown a one-time code to enter at the verification URL while
// the flow polls until it is authorised.
func DeviceAuth(ctx context.Context, cfg OAuthConfig, stdin io.Reader, stdout io.Writer) (string, error) {
	if cfg.ClientID == "" {
		return "", shiperrors.NewGitHubError("DeviceAuth", "client_id is required for OAuth device flow")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	hostURL := cfg.HostURL
	if hostURL == "" {
		hostURL = DefaultGitHubHost
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{DefaultScopes}
	}

	host, err := oauth.NewGitHubHost(hostURL)
	if err != nil {
		return "", shiperrors.NewGitHubErrorWithCause("DeviceAuth", "invalid GitHub host URL", err)
	}

	flow := &oauth.Flow{
		Host:        host,
		ClientID:    cfg.ClientID,
		Scopes:      scopes,
		Stdout:      stdout,
		Stdin:       stdin,
		DisplayCode: displayCode(stdout),
	}

	token, err := flow.DeviceFlow()
	if err != nil {
		return "", shiperrors.NewGitHubErrorWithCause("DeviceAuth", "device flow failed", err)
	}
	if token == nil || token.Token == "" {
		return "", shiperrors.NewGitHubError("DeviceAuth", "device flow returned no token")
	}
	return token.Token, nil
}

func displayCode(w io.Writer) func(code, verificationURL string) error {
	return func(code, verificationURL string) error {
		fmt.Fprintf(w, "\n! First, copy your one-time code: %s\n", code)
		fmt.Fprintf(w, "- Then open %s in your browser to authorise shipwright.\n", verificationURL)
		return nil
	}
}
