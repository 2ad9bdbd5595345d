// Package hosting defines the provider-neutral view of Git hosting
// services: repositories, pull requests and review comments.
//
// Azure DevOps and GitHub each implement Provider; a Registry picks the
// right one from a clone or pull request URL.
package hosting

import (
	"context"
	"time"
)

// Kind identifies a hosting service.
type Kind string

const (
	KindAzureDevOps Kind = "azure-devops"
	KindGitHub      Kind = "github"
)

// RepoRef locates a repository on a hosting service.
type RepoRef struct {
	Kind         Kind   `json:"provider"`
	Organization string `json:"organization"` // GitHub owner for KindGitHub
	Project      string `json:"project,omitempty"`
	Repository   string `json:"repository"`
	CloneURL     string `json:"cloneUrl"`
}

// PullRequestRef locates a single pull request.
type PullRequestRef struct {
	RepoRef
	ID int `json:"id"`
}

// Reviewer is a pull request reviewer and their vote.
type Reviewer struct {
	Name      string `json:"name"`
	Vote      int    `json:"vote"`
	VoteLabel string `json:"voteLabel"`
}

// PullRequest is pull request metadata normalised across providers.
type PullRequest struct {
	PullRequestRef
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Author       string     `json:"author"`
	SourceBranch string     `json:"sourceBranch"`
	TargetBranch string     `json:"targetBranch"`
	Status       string     `json:"status"`
	IsDraft      bool       `json:"isDraft"`
	RepoURL      string     `json:"repoUrl"`
	WebURL       string     `json:"url"`
	Reviewers    []Reviewer `json:"reviewers"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// CreatePullRequestOptions holds the fields of a new pull request.
type CreatePullRequestOptions struct {
	Title        string
	Description  string
	SourceBranch string
	TargetBranch string
	WorkItemID   int // Azure DevOps only; zero means none
	Draft        bool
}

// Comment is a review comment, optionally anchored to a file line.
type Comment struct {
	FilePath string `json:"filePath,omitempty"`
	Line     int    `json:"line,omitempty"`
	Body     string `json:"body"`
}

// Provider is implemented by each hosting service client.
type Provider interface {
	Kind() Kind
	ParseRepoURL(rawURL string) (RepoRef, error)
	ParsePullRequestURL(rawURL string) (PullRequestRef, error)
	GetPullRequest(ctx context.Context, ref PullRequestRef) (*PullRequest, error)
	CreatePullRequest(ctx context.Context, repo RepoRef, opts CreatePullRequestOptions) (*PullRequest, error)
	PostComment(ctx context.Context, ref PullRequestRef, c Comment) error
}

// Vote values used by Azure DevOps and mapped onto GitHub review states.
const (
	VoteApproved                = 10
	VoteApprovedWithSuggestions = 5
	VoteNone                    = 0
	VoteWaitingForAuthor        = -5
	VoteRejected                = -10
)

// VoteLabel renders a reviewer vote.
func VoteLabel(vote int) string {
	switch {
	case vote >= VoteApproved:
		return "Approved"
	case vote >= VoteApprovedWithSuggestions:
		return "Approved with suggestions"
	case vote <= VoteRejected:
		return "Rejected"
	case vote <= VoteWaitingForAuthor:
		return "Waiting for author"
	default:
		return "No vote"
	}
}
