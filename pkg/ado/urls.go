package ado

import (
	"net/url"
	"regexp"
	"strconv"

	shiperrors "thoreinstein.com/shipwright/pkg/errors"
	"thoreinstein.com/shipwright/pkg/hosting"
)

// WorkItemRef identifies a work item.
type WorkItemRef struct {
	Organization string `json:"organization"`
	Project      string `json:"project"`
	ID           int    `json:"id"`
}

const (
	workItemFormat    = "https://dev.azure.com/{org}/{project}/_workitems/edit/{id}"
	pullRequestFormat = "https://dev.azure.com/{org}/{project}/_git/{repo}/pullrequest/{id}"
	repoFormat        = "https://dev.azure.com/{org}/{project}/_git/{repo} or git@ssh.dev.azure.com:v3/{org}/{project}/{repo}"
)

// URL patterns. The trailing group tolerates a trailing slash, query or fragment.
var (
	workItemPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^https?://(?:[^@/]+@)?dev\.azure\.com/([^/]+)/([^/]+)/_workitems/(?:edit|view)/(\d+)(?:[/?#].*)?$`),
		regexp.MustCompile(`^https?://(?:[^@/]+@)?([^./]+)\.visualstudio\.com/([^/]+)/_workitems/(?:edit|view)/(\d+)(?:[/?#].*)?$`),
	}

	pullRequestPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^https?://(?:[^@/]+@)?dev\.azure\.com/([^/]+)/([^/]+)/_git/([^/]+)/pullrequest/(\d+)(?:[/?#].*)?$`),
		regexp.MustCompile(`^https?://(?:[^@/]+@)?([^./]+)\.visualstudio\.com/([^/]+)/_git/([^/]+)/pullrequest/(\d+)(?:[/?#].*)?$`),
	}

	repoHTTPSPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^https?://(?:[^@/]+@)?dev\.azure\.com/([^/]+)/([^/]+)/_git/([^/?#]+?)(?:\.git)?/?(?:[?#].*)?$`),
		regexp.MustCompile(`^https?://(?:[^@/]+@)?([^./]+)\.visualstudio\.com/([^/]+)/_git/([^/?#]+?)(?:\.git)?/?(?:[?#].*)?$`),
	}

	repoSSHPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^git@ssh\.dev\.azure\.com:v3/([^/]+)/([^/]+)/([^/]+?)(?:\.git)?$`),
		regexp.MustCompile(`^[^@\s]+@vs-ssh\.visualstudio\.com:v3/([^/]+)/([^/]+)/([^/]+?)(?:\.git)?$`),
	}
)

// ParseWorkItemURL extracts organization, project and ID from a work item URL.
func ParseWorkItemURL(rawURL string) (WorkItemRef, error) {
	for _, re := range workItemPatterns {
		m := re.FindStringSubmatch(rawURL)
		if m == nil {
			continue
		}
		project, err := url.PathUnescape(m[2])
		if err != nil {
			break
		}
		id, err := strconv.Atoi(m[3])
		if err != nil || id <= 0 {
			break
		}
		return WorkItemRef{Organization: m[1], Project: project, ID: id}, nil
	}
	return WorkItemRef{}, shiperrors.NewValidationError("url", "invalid Azure DevOps work item URL, expected "+workItemFormat)
}

// ParsePullRequestURL extracts the repository and pull request ID from a
// pull request URL.
func ParsePullRequestURL(rawURL string) (hosting.PullRequestRef, error) {
	for _, re := range pullRequestPatterns {
		m := re.FindStringSubmatch(rawURL)
		if m == nil {
			continue
		}
		project, perr := url.PathUnescape(m[2])
		repo, rerr := url.PathUnescape(m[3])
		id, ierr := strconv.Atoi(m[4])
		if perr != nil || rerr != nil || ierr != nil || id <= 0 {
			break
		}
		return hosting.PullRequestRef{
			RepoRef: hosting.RepoRef{
				Kind:         hosting.KindAzureDevOps,
				Organization: m[1],
				Project:      project,
				Repository:   repo,
				CloneURL:     cloneURL(m[1], project, repo),
			},
			ID: id,
		}, nil
	}
	return hosting.PullRequestRef{}, shiperrors.NewValidationError("url", "invalid Azure DevOps pull request URL, expected "+pullRequestFormat)
}

// ParseRepoURL extracts organization, project and repository from an HTTPS
// or SSH clone URL. The returned CloneURL keeps SSH URLs as given and
// normalises HTTPS URLs (dropping any embedded user).
func ParseRepoURL(rawURL string) (hosting.RepoRef, error) {
	for _, re := range repoHTTPSPatterns {
		m := re.FindStringSubmatch(rawURL)
		if m == nil {
			continue
		}
		project, perr := url.PathUnescape(m[2])
		repo, rerr := url.PathUnescape(m[3])
		if perr != nil || rerr != nil {
			break
		}
		return hosting.RepoRef{
			Kind:         hosting.KindAzureDevOps,
			Organization: m[1],
			Project:      project,
			Repository:   repo,
			CloneURL:     cloneURL(m[1], project, repo),
		}, nil
	}

	for _, re := range repoSSHPatterns {
		m := re.FindStringSubmatch(rawURL)
		if m == nil {
			continue
		}
		project, perr := url.PathUnescape(m[2])
		repo, rerr := url.PathUnescape(m[3])
		if perr != nil || rerr != nil {
			break
		}
		return hosting.RepoRef{
			Kind:         hosting.KindAzureDevOps,
			Organization: m[1],
			Project:      project,
			Repository:   repo,
			CloneURL:     rawURL,
		}, nil
	}

	return hosting.RepoRef{}, shiperrors.NewValidationError("repoUrl", "invalid Azure DevOps repository URL, expected "+repoFormat)
}

func cloneURL(org, project, repo string) string {
	return "https://dev.azure.com/" + url.PathEscape(org) + "/" + url.PathEscape(project) + "/_git/" + url.PathEscape(repo)
}

// WorkItemURL returns the browser URL of a work item.
func WorkItemURL(ref WorkItemRef) string {
	return "https://dev.azure.com/" + url.PathEscape(ref.Organization) + "/" + url.PathEscape(ref.Project) + "/_workitems/edit/" + strconv.Itoa(ref.ID)
}
