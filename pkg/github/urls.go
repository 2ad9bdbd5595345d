package github

import (
	"regexp"
	"strconv"

	shiperrors "thoreinstein.com/shipwright/pkg/errors"
	"thoreinstein.com/shipwright/pkg/hosting"
)

var (
	sshRepoRe   = regexp.MustCompile(`^(?:ssh://)?git@github\.com[:/]([^/]+)/([^/]+?)(?:\.git)?/?$`)
	httpsRepoRe = regexp.MustCompile(`^https?://(?:[^@/]+@)?github\.com/([^/]+)/([^/?#]+?)(?:\.git)?/?(?:[?#].*)?$`)
	pullRe      = regexp.MustCompile(`^https?://github\.com/([^/]+)/([^/]+)/pull/(\d+)(?:[/?#].*)?$`)
)

// ParseRepoURL parses SSH and HTTPS GitHub repository URLs.
func ParseRepoURL(rawURL string) (hosting.RepoRef, error) {
	if m := sshRepoRe.FindStringSubmatch(rawURL); m != nil {
		return hosting.RepoRef{Kind: hosting.KindGitHub, Organization: m[1], Repository: m[2], CloneURL: rawURL}, nil
	}
	if m := httpsRepoRe.FindStringSubmatch(rawURL); m != nil {
		return hosting.RepoRef{
			Kind:         hosting.KindGitHub,
			Organization: m[1],
			Repository:   m[2],
			CloneURL:     "https://github.com/" + m[1] + "/" + m[2] + ".git",
		}, nil
	}
	return hosting.RepoRef{}, shiperrors.NewValidationError("repoUrl", "invalid GitHub repository URL, expected https://github.com/{owner}/{repo}")
}

// ParsePullRequestURL parses https://github.com/{owner}/{repo}/pull/{n}.
func ParsePullRequestURL(rawURL string) (hosting.PullRequestRef, error) {
	m := pullRe.FindStringSubmatch(rawURL)
	if m == nil {
		return hosting.PullRequestRef{}, shiperrors.NewValidationError("url", "invalid GitHub pull request URL, expected https://github.com/{owner}/{repo}/pull/{number}")
	}
	n, err := strconv.Atoi(m[3])
	if err != nil || n <= 0 {
		return hosting.PullRequestRef{}, shiperrors.NewValidationError("url", "invalid pull request number")
	}
	return hosting.PullRequestRef{
		RepoRef: hosting.RepoRef{
			Kind:         hosting.KindGitHub,
			Organization: m[1],
			Repository:   m[2],
			CloneURL:     "https://github.com/" + m[1] + "/" + m[2] + ".git",
		},
		ID: n,
	}, nil
}
