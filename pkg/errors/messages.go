package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// FormatUserError returns a user-friendly error message with actionable guidance.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var configErr *ConfigError
	if As(err, &configErr) {
		return formatConfigError(configErr)
	}

	var adoErr *ADOError
	if As(err, &adoErr) {
		return formatADOError(adoErr)
	}

	var ghErr *GitHubError
	if As(err, &ghErr) {
		return formatGitHubError(ghErr)
	}

	var aiErr *AIError
	if As(err, &aiErr) {
		return formatAIError(aiErr)
	}

	var gitErr *GitError
	if As(err, &gitErr) {
		return formatGitError(gitErr)
	}

	return err.Error()
}

func formatConfigError(err *ConfigError) string {
	var b strings.Builder

	if err.Field != "" {
		fmt.Fprintf(&b, "Configuration error in '%s': %s\n", err.Field, err.Message)
	} else {
		fmt.Fprintf(&b, "Configuration error: %s\n", err.Message)
	}

	b.WriteString("\nTo fix this:\n")
	b.WriteString("  • Check your config file: ~/.config/shipwright/config.toml\n")
	b.WriteString("  • Run 'shipwright config init' to write a default config\n")

	if err.Cause != nil {
		fmt.Fprintf(&b, "\nUnderlying error: %v", err.Cause)
	}

	return b.String()
}

func formatADOError(err *ADOError) string {
	var b strings.Builder

	if err.Resource != "" {
		fmt.Fprintf(&b, "Azure DevOps error during %s for %s: %s\n", err.Operation, err.Resource, err.Message)
	} else {
		fmt.Fprintf(&b, "Azure DevOps error during %s: %s\n", err.Operation, err.Message)
	}

	switch err.StatusCode {
	case 401:
		b.WriteString("\nAuthentication failed. To fix this:\n")
		b.WriteString("  • Set the ADO_PAT environment variable\n")
		b.WriteString("  • Or run 'shipwright auth login' to store a token in the keychain\n")
		b.WriteString("  • Verify the token has not expired\n")

	case 403:
		b.WriteString("\nAccess denied. To fix this:\n")
		b.WriteString("  • Ensure the token has Work Items (Read & Write) and Code (Read & Write) scopes\n")
		b.WriteString("  • Check that your account can access the project\n")

	case 404:
		b.WriteString("\nResource not found. To fix this:\n")
		b.WriteString("  • Verify the organization, project and ID in the URL\n")
		b.WriteString("  • Check that you have access to the project\n")

	case 429:
		b.WriteString("\nAzure DevOps rate limit exceeded. The request will be retried.\n")

	case 500, 502, 503, 504:
		b.WriteString("\nAzure DevOps server error. Wait a few moments and try again.\n")
	}

	if err.Cause != nil {
		fmt.Fprintf(&b, "\nUnderlying error: %v", err.Cause)
	}

	return b.String()
}

func formatGitHubError(err *GitHubError) string {
	var b strings.Builder

	fmt.Fprintf(&b, "GitHub error during %s: %s\n", err.Operation, err.Message)

	switch err.StatusCode {
	case 401:
		b.WriteString("\nAuthentication failed. To fix this:\n")
		b.WriteString("  • Set the GITHUB_TOKEN environment variable\n")
		b.WriteString("  • Ensure your token has the repo scope\n")

	case 403:
		b.WriteString("\nPermission denied. To fix this:\n")
		b.WriteString("  • Ensure you have write access to this repository\n")
		b.WriteString("  • If using SSO, ensure the token is authorized for your organization\n")

	case 404:
		b.WriteString("\nResource not found. Verify the repository and pull request number.\n")

	case 422:
		b.WriteString("\nValidation failed. A pull request for this branch may already exist.\n")

	case 429, 500, 502, 503, 504:
		b.WriteString("\nGitHub is rate limiting or unavailable. Wait a few moments and try again.\n")
	}

	if err.Cause != nil {
		fmt.Fprintf(&b, "\nUnderlying error: %v", err.Cause)
	}

	return b.String()
}

func formatAIError(err *AIError) string {
	var b strings.Builder

	fmt.Fprintf(&b, "AI provider error (%s) during %s: %s\n", err.Provider, err.Operation, err.Message)

	switch err.StatusCode {
	case 401:
		fmt.Fprintf(&b, "\nAuthentication failed with %s. Set the provider API key (for example ANTHROPIC_API_KEY).\n", err.Provider)
	case 403:
		fmt.Fprintf(&b, "\nAccess denied by %s. Check that the model is available to your account.\n", err.Provider)
	case 429:
		fmt.Fprintf(&b, "\n%s rate limit exceeded. Wait a few minutes before retrying.\n", err.Provider)
	case 500, 502, 503, 504:
		fmt.Fprintf(&b, "\n%s server error. Wait a few moments and try again.\n", err.Provider)
	}

	if err.Cause != nil {
		fmt.Fprintf(&b, "\nUnderlying error: %v", err.Cause)
	}

	return b.String()
}

func formatGitError(err *GitError) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", err.Error())

	switch err.Operation {
	case "clone":
		b.WriteString("\nCheck the repository URL and that your git credentials can read it.\n")
	case "push":
		b.WriteString("\nCheck that your git credentials can write to the remote and the branch is not protected.\n")
	case "commit":
		b.WriteString("\nCheck that user.name and user.email are configured for git.\n")
	}

	return b.String()
}

// HTTPStatus maps an error to the status code an HTTP handler should
// return for it.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var vErr *ValidationError
	if As(err, &vErr) {
		return http.StatusBadRequest
	}

	var cErr *ConflictError
	if As(err, &cErr) {
		return http.StatusConflict
	}

	var nfErr *NotFoundError
	if As(err, &nfErr) {
		return http.StatusNotFound
	}

	var wfErr *WorkflowError
	if As(err, &wfErr) {
		return http.StatusBadRequest
	}

	var configErr *ConfigError
	if As(err, &configErr) {
		return http.StatusInternalServerError
	}

	var adoErr *ADOError
	if As(err, &adoErr) {
		return upstreamStatus(adoErr.StatusCode)
	}

	var ghErr *GitHubError
	if As(err, &ghErr) {
		return upstreamStatus(ghErr.StatusCode)
	}

	var aiErr *AIError
	if As(err, &aiErr) {
		return upstreamStatus(aiErr.StatusCode)
	}

	return http.StatusInternalServerError
}

// upstreamStatus passes client errors from an upstream API through and
// reports everything else as a bad gateway.
func upstreamStatus(code int) int {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return code
	case 0:
		return http.StatusBadGateway
	}
	if code >= 400 && code < 500 {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}
