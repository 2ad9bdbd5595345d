package ado

import (
	"context"
	"net/http"
	"net/url"

	"thoreinstein.com/shipwright/pkg/hosting"
)

// Repository describes a Git repository in a project.
type Repository struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	DefaultBranch string `json:"defaultBranch"`
	RemoteURL     string `json:"remoteUrl"`
	SSHURL        string `json:"sshUrl"`
	WebURL        string `json:"webUrl"`
}

// GetRepository fetches repository metadata. DefaultBranch is returned
// without the refs/heads/ prefix.
func (c *Client) GetRepository(ctx context.Context, ref hosting.RepoRef) (*Repository, error) {
	var repo Repository
	err := c.do(ctx, request{
		operation: "GetRepository",
		resource:  ref.Repository,
		method:    http.MethodGet,
		url:       c.projectURL(ref.Organization, ref.Project, repoPath(ref.Repository), nil),
	}, &repo)
	if err != nil {
		return nil, err
	}
	repo.DefaultBranch = ShortRefName(repo.DefaultBranch)
	return &repo, nil
}

// GetItemContent fetches the text content of a file at a branch. An empty
// branch reads the repository default branch.
func (c *Client) GetItemContent(ctx context.Context, ref hosting.RepoRef, path, branch string) (string, error) {
	q := url.Values{}
	q.Set("path", path)
	q.Set("includeContent", "true")
	if branch != "" {
		q.Set("versionDescriptor.version", branch)
		q.Set("versionDescriptor.versionType", "branch")
	}

	var item struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	err := c.do(ctx, request{
		operation: "GetItemContent",
		resource:  path,
		method:    http.MethodGet,
		url:       c.projectURL(ref.Organization, ref.Project, repoPath(ref.Repository)+"/items", q),
	}, &item)
	if err != nil {
		return "", err
	}
	return item.Content, nil
}
