package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"thoreinstein.com/shipwright/pkg/credentials"
	shiperrors "thoreinstein.com/shipwright/pkg/errors"
	"thoreinstein.com/shipwright/pkg/github"
)

var (
	authGitHub bool
	authPaste  bool
)

// deviceAuthFunc obtains a token interactively, printing instructions to out.
type deviceAuthFunc func(ctx context.Context, out io.Writer) (string, error)

// newCredentialStore is swapped out by tests.
var newCredentialStore = credentials.NewStore

// authCmd groups token management.
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Azure DevOps and GitHub tokens",
	Long: `Store personal access tokens in the OS keychain, or in
~/.config/shipwright/credentials.json when no keychain is available.

Environment variables (ADO_PAT, GITHUB_TOKEN) and config file values take
precedence over stored tokens.`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save a personal access token",
	Long: `Prompt for a token and save it. The Azure DevOps PAT needs Work Items
(read and write) and Code (read and write) scopes.

With --github on a terminal and github.client_id configured, the GitHub
OAuth device flow is used: copy the one-time code and authorise in the
browser. Pass --paste to enter a personal access token instead. The token
prompt is also used when the device flow fails or input is piped.

Examples:
  shipwright auth login
  shipwright auth login --github
  shipwright auth login --github --paste
  echo "$TOKEN" | shipwright auth login --github`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		in := cmd.InOrStdin()
		var device deviceAuthFunc
		if authGitHub && !authPaste && isTerminalReader(in) {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			device = githubDeviceAuth(cfg.GitHub.ClientID, cfg.GitHub.BaseURL, in)
		}
		return runAuthLogin(cmd.Context(), in, cmd.OutOrStdout(), newCredentialStore(), device)
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove a saved token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runAuthLogout(cmd.OutOrStdout(), newCredentialStore())
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which tokens are available and where they come from",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runAuthStatus(cmd.OutOrStdout(), newCredentialStore(), cfg.ADO.PAT != "", cfg.GitHub.Token != "")
	},
}

func init() {
	authLoginCmd.Flags().BoolVar(&authGitHub, "github", false, "manage the GitHub token instead of the Azure DevOps PAT")
	authLoginCmd.Flags().BoolVar(&authPaste, "paste", false, "enter a token instead of using the GitHub device flow")
	authLogoutCmd.Flags().BoolVar(&authGitHub, "github", false, "manage the GitHub token instead of the Azure DevOps PAT")
	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authStatusCmd)
	rootCmd.AddCommand(authCmd)
}

func tokenName() (name, label string) {
	if authGitHub {
		return credentials.GitHubToken, "GitHub token"
	}
	return credentials.ADOToken, "Azure DevOps PAT"
}

// githubDeviceAuth returns the device flow for clientID, or nil when no
// OAuth app is configured.
func githubDeviceAuth(clientID, baseURL string, in io.Reader) deviceAuthFunc {
	if clientID == "" {
		return nil
	}
	cfg := github.OAuthConfig{ClientID: clientID, HostURL: github.HostFromBaseURL(baseURL)}
	return func(ctx context.Context, out io.Writer) (string, error) {
		return github.DeviceAuth(ctx, cfg, in, out)
	}
}

func isTerminalReader(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// runAuthLogin saves a token. For GitHub, device is tried first when
// given; the token prompt is the fallback.
func runAuthLogin(ctx context.Context, in io.Reader, out io.Writer, store credentials.Store, device deviceAuthFunc) error {
	name, label := tokenName()

	var token string
	if authGitHub && device != nil {
		t, err := device(ctx, out)
		if err != nil {
			fmt.Fprintln(out, warnStyle.Render("Device flow failed: "+shiperrors.FormatUserError(err)))
		}
		token = strings.TrimSpace(t)
	}

	if token == "" {
		fmt.Fprintf(out, "%s: ", label)
		t, err := readSecret(in)
		fmt.Fprintln(out)
		if err != nil {
			return err
		}
		token = t
	}
	if token == "" {
		return shiperrors.NewValidationError("token", "no token entered")
	}

	if err := store.Set(name, token); err != nil {
		return errors.Wrapf(err, "failed to save %s", label)
	}
	fmt.Fprintf(out, "%s %s saved to %s\n", okStyle.Render("✓"), label, store.Backend())
	return nil
}

// readSecret reads a line without echo from a terminal, or a plain line
// from a pipe.
func readSecret(in io.Reader) (string, error) {
	if isTerminalReader(in) {
		f := in.(*os.File)
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", errors.Wrap(err, "failed to read token")
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", errors.Wrap(err, "failed to read token")
	}
	return strings.TrimSpace(line), nil
}

func runAuthLogout(out io.Writer, store credentials.Store) error {
	name, label := tokenName()
	if err := store.Delete(name); err != nil {
		return errors.Wrapf(err, "failed to remove %s", label)
	}
	fmt.Fprintf(out, "%s %s removed from %s\n", okStyle.Render("✓"), label, store.Backend())
	return nil
}

func runAuthStatus(out io.Writer, store credentials.Store, adoInConfig, githubInConfig bool) error {
	report := func(label, envVar, name string, inConfig bool) {
		switch {
		case os.Getenv(envVar) != "":
			fmt.Fprintf(out, "%s %s: from %s\n", okStyle.Render("✓"), label, envVar)
		case inConfig:
			fmt.Fprintf(out, "%s %s: from config file\n", okStyle.Render("✓"), label)
		default:
			v, err := store.Get(name)
			switch {
			case err != nil:
				fmt.Fprintf(out, "%s %s: %v\n", errStyle.Render("✗"), label, err)
			case v != "":
				fmt.Fprintf(out, "%s %s: from %s\n", okStyle.Render("✓"), label, store.Backend())
			default:
				fmt.Fprintf(out, "%s %s: not configured\n", warnStyle.Render("–"), label)
			}
		}
	}
	report("Azure DevOps PAT", "ADO_PAT", credentials.ADOToken, adoInConfig)
	report("GitHub token", "GITHUB_TOKEN", credentials.GitHubToken, githubInConfig)
	return nil
}
