package ado

import (
	"context"

	"thoreinstein.com/shipwright/pkg/hosting"
)

var _ hosting.Provider = (*Client)(nil)

// Kind implements hosting.Provider.
func (c *Client) Kind() hosting.Kind {
	return hosting.KindAzureDevOps
}

// ParseRepoURL implements hosting.Provider.
func (c *Client) ParseRepoURL(rawURL string) (hosting.RepoRef, error) {
	return ParseRepoURL(rawURL)
}

// ParsePullRequestURL implements hosting.Provider.
func (c *Client) ParsePullRequestURL(rawURL string) (hosting.PullRequestRef, error) {
	return ParsePullRequestURL(rawURL)
}

// PostComment implements hosting.Provider by opening a new thread.
func (c *Client) PostComment(ctx context.Context, ref hosting.PullRequestRef, comment hosting.Comment) error {
	_, err := c.CreateThread(ctx, ref, comment)
	return err
}
