package ado

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"thoreinstein.com/shipwright/pkg/hosting"
)

type identityRef struct {
	DisplayName string `json:"displayName"`
	UniqueName  string `json:"uniqueName"`
}

type reviewerRef struct {
	DisplayName string `json:"displayName"`
	Vote        int    `json:"vote"`
}

type pullRequestResponse struct {
	PullRequestID int           `json:"pullRequestId"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Status        string        `json:"status"`
	IsDraft       bool          `json:"isDraft"`
	SourceRefName string        `json:"sourceRefName"`
	TargetRefName string        `json:"targetRefName"`
	CreationDate  time.Time     `json:"creationDate"`
	CreatedBy     identityRef   `json:"createdBy"`
	Reviewers     []reviewerRef `json:"reviewers"`
	Repository    struct {
		Name      string `json:"name"`
		RemoteURL string `json:"remoteUrl"`
		WebURL    string `json:"webUrl"`
		Project   struct {
			Name string `json:"name"`
		} `json:"project"`
	} `json:"repository"`
}

func repoPath(repo string) string {
	return "git/repositories/" + url.PathEscape(repo)
}

// GetPullRequest fetches a pull request with its reviewers.
func (c *Client) GetPullRequest(ctx context.Context, ref hosting.PullRequestRef) (*hosting.PullRequest, error) {
	var resp pullRequestResponse
	err := c.do(ctx, request{
		operation: "GetPullRequest",
		resource:  "PR " + strconv.Itoa(ref.ID),
		method:    http.MethodGet,
		url:       c.projectURL(ref.Organization, ref.Project, repoPath(ref.Repository)+"/pullrequests/"+strconv.Itoa(ref.ID), nil),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return toPullRequest(ref.RepoRef, &resp), nil
}

func toPullRequest(repo hosting.RepoRef, resp *pullRequestResponse) *hosting.PullRequest {
	pr := &hosting.PullRequest{
		PullRequestRef: hosting.PullRequestRef{RepoRef: repo, ID: resp.PullRequestID},
		Title:          resp.Title,
		Description:    resp.Description,
		Author:         resp.CreatedBy.DisplayName,
		SourceBranch:   ShortRefName(resp.SourceRefName),
		TargetBranch:   ShortRefName(resp.TargetRefName),
		Status:         resp.Status,
		IsDraft:        resp.IsDraft,
		RepoURL:        resp.Repository.RemoteURL,
		CreatedAt:      resp.CreationDate,
	}
	if pr.RepoURL == "" {
		pr.RepoURL = repo.CloneURL
	}
	web := resp.Repository.WebURL
	if web == "" {
		web = cloneURL(repo.Organization, repo.Project, repo.Repository)
	}
	pr.WebURL = web + "/pullrequest/" + strconv.Itoa(resp.PullRequestID)

	for _, r := range resp.Reviewers {
		pr.Reviewers = append(pr.Reviewers, hosting.Reviewer{
			Name:      r.DisplayName,
			Vote:      r.Vote,
			VoteLabel: hosting.VoteLabel(r.Vote),
		})
	}
	return pr
}

type createPullRequestBody struct {
	SourceRefName string       `json:"sourceRefName"`
	TargetRefName string       `json:"targetRefName"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	IsDraft       bool         `json:"isDraft"`
	WorkItemRefs  []workItemID `json:"workItemRefs,omitempty"`
}

type workItemID struct {
	ID string `json:"id"`
}

// CreatePullRequest opens a pull request, optionally linking a work item.
func (c *Client) CreatePullRequest(ctx context.Context, repo hosting.RepoRef, opts hosting.CreatePullRequestOptions) (*hosting.PullRequest, error) {
	body := createPullRequestBody{
		SourceRefName: FullRefName(opts.SourceBranch),
		TargetRefName: FullRefName(opts.TargetBranch),
		Title:         opts.Title,
		Description:   opts.Description,
		IsDraft:       opts.Draft,
	}
	if opts.WorkItemID > 0 {
		body.WorkItemRefs = []workItemID{{ID: strconv.Itoa(opts.WorkItemID)}}
	}

	c.logDebug("creating pull request", "repo", repo.Repository, "source", body.SourceRefName, "target", body.TargetRefName)

	var resp pullRequestResponse
	err := c.do(ctx, request{
		operation: "CreatePullRequest",
		resource:  repo.Repository,
		method:    http.MethodPost,
		url:       c.projectURL(repo.Organization, repo.Project, repoPath(repo.Repository)+"/pullrequests", nil),
		body:      body,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return toPullRequest(repo, &resp), nil
}

// Thread is a pull request comment thread.
type Thread struct {
	ID       int       `json:"id"`
	Status   string    `json:"status"`
	FilePath string    `json:"filePath,omitempty"`
	Line     int       `json:"line,omitempty"`
	Comments []Comment `json:"comments"`
}

// Comment is a single comment in a thread.
type Comment struct {
	ID      int    `json:"id"`
	Author  string `json:"author"`
	Content string `json:"content"`
}

type filePosition struct {
	Line   int `json:"line"`
	Offset int `json:"offset"`
}

type threadContext struct {
	FilePath       string        `json:"filePath"`
	RightFileStart *filePosition `json:"rightFileStart,omitempty"`
	RightFileEnd   *filePosition `json:"rightFileEnd,omitempty"`
}

type threadComment struct {
	ID              int          `json:"id,omitempty"`
	ParentCommentID int          `json:"parentCommentId"`
	Content         string       `json:"content"`
	CommentType     int          `json:"commentType"`
	Author          *identityRef `json:"author,omitempty"`
}

type threadBody struct {
	ID            int             `json:"id,omitempty"`
	Comments      []threadComment `json:"comments"`
	Status        any             `json:"status"`
	ThreadContext *threadContext  `json:"threadContext,omitempty"`
	IsDeleted     bool            `json:"isDeleted,omitempty"`
}

// ListThreads returns the non-deleted comment threads on a pull request.
func (c *Client) ListThreads(ctx context.Context, ref hosting.PullRequestRef) ([]Thread, error) {
	var resp struct {
		Value []threadBody `json:"value"`
	}
	err := c.do(ctx, request{
		operation: "ListThreads",
		resource:  "PR " + strconv.Itoa(ref.ID),
		method:    http.MethodGet,
		url:       c.projectURL(ref.Organization, ref.Project, repoPath(ref.Repository)+"/pullrequests/"+strconv.Itoa(ref.ID)+"/threads", nil),
	}, &resp)
	if err != nil {
		return nil, err
	}

	threads := make([]Thread, 0, len(resp.Value))
	for _, t := range resp.Value {
		if t.IsDeleted {
			continue
		}
		th := Thread{ID: t.ID}
		if s, ok := t.Status.(string); ok {
			th.Status = s
		}
		if t.ThreadContext != nil {
			th.FilePath = t.ThreadContext.FilePath
			if t.ThreadContext.RightFileStart != nil {
				th.Line = t.ThreadContext.RightFileStart.Line
			}
		}
		for _, cm := range t.Comments {
			comment := Comment{ID: cm.ID, Content: cm.Content}
			if cm.Author != nil {
				comment.Author = cm.Author.DisplayName
			}
			th.Comments = append(th.Comments, comment)
		}
		threads = append(threads, th)
	}
	return threads, nil
}

// CreateThread posts a new active comment thread. When c.FilePath is set
// the thread is anchored to that file, and to c.Line when positive.
func (c *Client) CreateThread(ctx context.Context, ref hosting.PullRequestRef, comment hosting.Comment) (*Thread, error) {
	body := threadBody{
		Comments: []threadComment{{ParentCommentID: 0, Content: comment.Body, CommentType: 1}},
		Status:   "active",
	}
	if comment.FilePath != "" {
		path := comment.FilePath
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		body.ThreadContext = &threadContext{FilePath: path}
		if comment.Line > 0 {
			body.ThreadContext.RightFileStart = &filePosition{Line: comment.Line, Offset: 1}
			body.ThreadContext.RightFileEnd = &filePosition{Line: comment.Line, Offset: 1}
		}
	}

	var resp threadBody
	err := c.do(ctx, request{
		operation: "CreateThread",
		resource:  "PR " + strconv.Itoa(ref.ID),
		method:    http.MethodPost,
		url:       c.projectURL(ref.Organization, ref.Project, repoPath(ref.Repository)+"/pullrequests/"+strconv.Itoa(ref.ID)+"/threads", nil),
		body:      body,
	}, &resp)
	if err != nil {
		return nil, err
	}

	th := &Thread{ID: resp.ID, Status: "active"}
	if body.ThreadContext != nil {
		th.FilePath = body.ThreadContext.FilePath
		th.Line = comment.Line
	}
	th.Comments = []Comment{{Content: comment.Body}}
	return th, nil
}

// ShortRefName strips the refs/heads/ prefix.
func ShortRefName(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}

// FullRefName adds the refs/heads/ prefix when missing.
func FullRefName(branch string) string {
	if branch == "" || strings.HasPrefix(branch, "refs/") {
		return branch
	}
	return "refs/heads/" + branch
}
