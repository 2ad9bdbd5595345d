// Package github implements hosting.Provider for GitHub pull requests.
package github

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	shiperrors "thoreinstein.com/shipwright/pkg/errors"
	"thoreinstein.com/shipwright/pkg/hosting"
)

// APIClient talks to the GitHub REST API.
type APIClient struct {
	client  *gh.Client
	verbose bool
	logger  *slog.Logger
}

var _ hosting.Provider = (*APIClient)(nil)

// APIClientOption is a functional option for configuring APIClient.
type APIClientOption func(*APIClient) error

// WithAPILogger sets a custom logger for the API client.
func WithAPILogger(logger *slog.Logger) APIClientOption {
	return func(c *APIClient) error {
		c.logger = logger
		return nil
	}
}

// WithBaseURL points the client at a GitHub Enterprise or test server.
func WithBaseURL(baseURL string) APIClientOption {
	return func(c *APIClient) error {
		if baseURL == "" {
			return nil
		}
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return shiperrors.NewConfigErrorWithCause("github.base_url", "invalid URL", err)
		}
		c.client.BaseURL = u
		return nil
	}
}

// NewAPIClient creates a GitHub API client with the given token.
func NewAPIClient(token string, verbose bool, opts ...APIClientOption) (*APIClient, error) {
	if token == "" {
		return nil, shiperrors.NewGitHubError("NewAPIClient", "token is required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)

	client := &APIClient{
		client:  gh.NewClient(tc),
		verbose: verbose,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(client); err != nil {
			return nil, err
		}
	}

	return client, nil
}

// Kind implements hosting.Provider.
func (c *APIClient) Kind() hosting.Kind {
	return hosting.KindGitHub
}

// ParseRepoURL implements hosting.Provider.
func (c *APIClient) ParseRepoURL(rawURL string) (hosting.RepoRef, error) {
	return ParseRepoURL(rawURL)
}

// ParsePullRequestURL implements hosting.Provider.
func (c *APIClient) ParsePullRequestURL(rawURL string) (hosting.PullRequestRef, error) {
	return ParsePullRequestURL(rawURL)
}

// GetPullRequest fetches a pull request and maps its reviews onto votes.
func (c *APIClient) GetPullRequest(ctx context.Context, ref hosting.PullRequestRef) (*hosting.PullRequest, error) {
	c.logDebug("getting PR", "owner", ref.Organization, "repo", ref.Repository, "number", ref.ID)

	pr, resp, err := c.client.PullRequests.Get(ctx, ref.Organization, ref.Repository, ref.ID)
	if err != nil {
		return nil, toGitHubError("GetPR", resp, err)
	}

	info := prFromGitHub(ref.RepoRef, pr)

	reviews, _, reviewErr := c.client.PullRequests.ListReviews(ctx, ref.Organization, ref.Repository, ref.ID, nil)
	if reviewErr != nil {
		c.logDebug("failed to list reviews", "error", reviewErr)
	} else {
		info.Reviewers = reviewersFromReviews(reviews)
	}

	return info, nil
}

// CreatePullRequest opens a pull request. WorkItemID is ignored.
func (c *APIClient) CreatePullRequest(ctx context.Context, repo hosting.RepoRef, opts hosting.CreatePullRequestOptions) (*hosting.PullRequest, error) {
	if opts.Title == "" {
		return nil, shiperrors.NewGitHubError("CreatePR", "title is required")
	}

	base := opts.TargetBranch
	if base == "" {
		r, resp, err := c.client.Repositories.Get(ctx, repo.Organization, repo.Repository)
		if err != nil {
			return nil, toGitHubError("GetDefaultBranch", resp, err)
		}
		base = r.GetDefaultBranch()
	}

	c.logDebug("creating PR", "owner", repo.Organization, "repo", repo.Repository, "head", opts.SourceBranch, "base", base)

	pr, resp, err := c.client.PullRequests.Create(ctx, repo.Organization, repo.Repository, &gh.NewPullRequest{
		Title: gh.Ptr(opts.Title),
		Head:  gh.Ptr(opts.SourceBranch),
		Base:  gh.Ptr(base),
		Body:  gh.Ptr(opts.Description),
		Draft: gh.Ptr(opts.Draft),
	})
	if err != nil {
		return nil, toGitHubError("CreatePR", resp, err)
	}

	return prFromGitHub(repo, pr), nil
}

// PostComment adds a line comment when the comment is anchored, otherwise
// a conversation comment on the pull request.
func (c *APIClient) PostComment(ctx context.Context, ref hosting.PullRequestRef, comment hosting.Comment) error {
	if comment.FilePath == "" || comment.Line <= 0 {
		_, resp, err := c.client.Issues.CreateComment(ctx, ref.Organization, ref.Repository, ref.ID, &gh.IssueComment{
			Body: gh.Ptr(comment.Body),
		})
		if err != nil {
			return toGitHubError("CreateComment", resp, err)
		}
		return nil
	}

	pr, resp, err := c.client.PullRequests.Get(ctx, ref.Organization, ref.Repository, ref.ID)
	if err != nil {
		return toGitHubError("GetPR", resp, err)
	}

	_, resp, err = c.client.PullRequests.CreateComment(ctx, ref.Organization, ref.Repository, ref.ID, &gh.PullRequestComment{
		Body:     gh.Ptr(comment.Body),
		CommitID: gh.Ptr(pr.GetHead().GetSHA()),
		Path:     gh.Ptr(strings.TrimPrefix(comment.FilePath, "/")),
		Line:     gh.Ptr(comment.Line),
		Side:     gh.Ptr("RIGHT"),
	})
	if err != nil {
		return toGitHubError("CreateReviewComment", resp, err)
	}
	return nil
}

func (c *APIClient) logDebug(msg string, args ...any) {
	if c.verbose {
		c.logger.Debug(msg, args...)
	}
}

func prFromGitHub(repo hosting.RepoRef, pr *gh.PullRequest) *hosting.PullRequest {
	info := &hosting.PullRequest{
		PullRequestRef: hosting.PullRequestRef{RepoRef: repo, ID: pr.GetNumber()},
		Title:          pr.GetTitle(),
		Description:    pr.GetBody(),
		Author:         pr.GetUser().GetLogin(),
		Status:         pr.GetState(),
		IsDraft:        pr.GetDraft(),
		WebURL:         pr.GetHTMLURL(),
		RepoURL:        repo.CloneURL,
		CreatedAt:      pr.GetCreatedAt().Time,
	}
	if pr.GetMerged() {
		info.Status = "merged"
	}
	if pr.Head != nil {
		info.SourceBranch = pr.GetHead().GetRef()
	}
	if pr.Base != nil {
		info.TargetBranch = pr.GetBase().GetRef()
		if u := pr.GetBase().GetRepo().GetCloneURL(); u != "" {
			info.RepoURL = u
		}
	}
	return info
}

// reviewersFromReviews keeps each reviewer's latest decisive review.
func reviewersFromReviews(reviews []*gh.PullRequestReview) []hosting.Reviewer {
	votes := make(map[string]int)
	var order []string
	for _, review := range reviews {
		login := review.GetUser().GetLogin()
		if _, seen := votes[login]; !seen {
			order = append(order, login)
			votes[login] = hosting.VoteNone
		}
		switch review.GetState() {
		case "APPROVED":
			votes[login] = hosting.VoteApproved
		case "CHANGES_REQUESTED":
			votes[login] = hosting.VoteRejected
		case "DISMISSED":
			votes[login] = hosting.VoteNone
		}
	}

	reviewers := make([]hosting.Reviewer, 0, len(order))
	for _, login := range order {
		reviewers = append(reviewers, hosting.Reviewer{
			Name:      login,
			Vote:      votes[login],
			VoteLabel: hosting.VoteLabel(votes[login]),
		})
	}
	return reviewers
}

func toGitHubError(operation string, resp *gh.Response, err error) error {
	if resp != nil && resp.StatusCode > 0 {
		return shiperrors.NewGitHubErrorWithStatus(operation, resp.StatusCode, err.Error())
	}
	return shiperrors.NewGitHubErrorWithCause(operation, "API request failed", err)
}
