package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thoreinstein.com/shipwright/pkg/ado"
	"thoreinstein.com/shipwright/pkg/config"
	"thoreinstein.com/shipwright/pkg/diff"
	shiperrors "thoreinstein.com/shipwright/pkg/errors"
	"thoreinstein.com/shipwright/pkg/git"
	"thoreinstein.com/shipwright/pkg/hosting"
	"thoreinstein.com/shipwright/pkg/planner"
	"thoreinstein.com/shipwright/pkg/session"
)

const sampleDiff = `diff --git a/retry.go b/retry.go
index 1111111..2222222 100644
--- a/retry.go
+++ b/retry.go
@@ -1,2 +1,3 @@
 package client
-var attempts = 1
+var attempts = 3
+var backoff = 2
`

// scriptedRunner answers git commands with canned output and records
// every invocation.
type scriptedRunner struct {
	mu     sync.Mutex
	calls  [][]string
	status string
	sha    string
	remote string
	diff   string
}

func (r *scriptedRunner) Run(_ context.Context, _ string, args ...string) error {
	r.record(args)
	return nil
}

func (r *scriptedRunner) Output(_ context.Context, _ string, args ...string) ([]byte, error) {
	r.record(args)
	switch gitCommand(args) {
	case "status":
		return []byte(r.status), nil
	case "rev-parse":
		return []byte(r.sha + "\n"), nil
	case "remote":
		return []byte(r.remote + "\n"), nil
	case "diff":
		return []byte(r.diff), nil
	}
	return nil, nil
}

func (r *scriptedRunner) record(args []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string(nil), args...))
}

func (r *scriptedRunner) called(sub string) [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out [][]string
	for _, c := range r.calls {
		if gitCommand(c) == sub {
			out = append(out, c)
		}
	}
	return out
}

// gitCommand skips "-c key=value" pairs and returns the subcommand.
func gitCommand(args []string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == "-c" {
			i++
			continue
		}
		return args[i]
	}
	return ""
}

// initBranchRepo creates a repository with one commit and HEAD on branch.
func initBranchRepo(t *testing.T, branch string) string {
	t.Helper()

	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "retry.go"), []byte("package client\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("retry.go")
	require.NoError(t, err)
	hash, err := wt.Commit("initial", &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	ref := plumbing.NewBranchReferenceName(branch)
	require.NoError(t, repo.Storer.SetReference(plumbing.NewHashReference(ref, hash)))
	require.NoError(t, repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, ref)))
	return dir
}

// withTicketWorkspace points the test server at a scripted git runner and
// seeds the default ticket session with a work item, a plan and a
// workspace checked out on branch.
func withTicketWorkspace(t *testing.T, e *testEnv, branch, remote string) *scriptedRunner {
	t.Helper()

	runner := &scriptedRunner{status: " M retry.go\n", sha: "abc123", remote: remote, diff: sampleDiff}
	e.srv.deps.Workspaces = git.NewManager(config.WorkspaceConfig{BasePath: t.TempDir()}, false, git.WithRunner(runner))

	dir := initBranchRepo(t, branch)
	_, err := e.sessions.Update(context.Background(), session.ModeTicket, session.DefaultID, func(s *session.Session) error {
		s.Ticket = &ado.WorkItem{
			ID:           42,
			Title:        "Add retries",
			Organization: "contoso",
			Project:      "Web",
			URL:          workItemURL,
		}
		s.SetPlan(&planner.Plan{Summary: "Retry failed calls.", Steps: "1. Wrap the client.", Revision: 1})
		s.Workspace = &git.Workspace{
			Path:        dir,
			RemoteURL:   remote,
			Branch:      branch,
			BaseBranch:  "main",
			Cloned:      true,
			CanCreatePR: true,
		}
		return nil
	})
	require.NoError(t, err)
	return runner
}

func TestCommitPush_RefusesBaseBranch(t *testing.T) {
	e := newTestEnv(t)
	runner := withTicketWorkspace(t, e, "main", "https://git.example/acme/app.git")

	rec := e.do(t, http.MethodPost, "/api/ticket/commit-push", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, decodeBody[map[string]string](t, rec)["error"], "base branch main")
	assert.Empty(t, runner.called("commit"))
	assert.Empty(t, runner.called("push"))
}

func TestCommitPush_DefaultAndExplicitMessage(t *testing.T) {
	e := newTestEnv(t)
	runner := withTicketWorkspace(t, e, "feature/42-add-retries", "https://git.example/acme/app.git")

	rec := e.do(t, http.MethodPost, "/api/ticket/commit-push", `{}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[commitPushResponse](t, rec)
	assert.Equal(t, "abc123", resp.Commit)
	assert.Equal(t, "feature/42-add-retries", resp.Branch)

	commits := runner.called("commit")
	require.Len(t, commits, 1)
	assert.Equal(t, []string{"commit", "-m", "#42 Add retries"}, commits[0])

	pushes := runner.called("push")
	require.Len(t, pushes, 1)
	assert.Equal(t, []string{"push", "-u", "origin", "feature/42-add-retries"}, pushes[0])

	rec = e.do(t, http.MethodGet, "/api/ticket/state", "")
	state := decodeBody[session.Session](t, rec)
	assert.Equal(t, "abc123", state.LastCommit)
	assert.Contains(t, state.Steps, "commit")

	rec = e.do(t, http.MethodPost, "/api/ticket/commit-push", `{"message":"  fix: retry transient failures "}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	commits = runner.called("commit")
	require.Len(t, commits, 2)
	assert.Equal(t, []string{"commit", "-m", "fix: retry transient failures"}, commits[1])
}

func TestCommitPush_NeedsWorkspace(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/ticket/commit-push", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[map[string]string](t, rec)["error"], "fetch a work item first")
}

func TestCreatePR_Defaults(t *testing.T) {
	e := newTestEnv(t)
	e.srv.deps.Workflow = config.WorkflowConfig{LinkWorkItem: true}
	withTicketWorkspace(t, e, "feature/42-add-retries", "https://git.example/acme/app.git")

	rec := e.do(t, http.MethodPost, "/api/ticket/create-pr", `{}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[createPRResponse](t, rec)
	require.NotNil(t, resp.PullRequest)
	assert.Equal(t, 99, resp.PullRequest.ID)
	assert.Empty(t, resp.Warnings)

	require.Len(t, e.host.created, 1)
	opts := e.host.created[0]
	assert.Equal(t, "Add retries", opts.Title)
	assert.Equal(t, "feature/42-add-retries", opts.SourceBranch)
	assert.Equal(t, "main", opts.TargetBranch)
	assert.True(t, strings.HasPrefix(opts.Description, "Implements work item #42: Add retries"), opts.Description)
	assert.Contains(t, opts.Description, workItemURL)
	assert.Contains(t, opts.Description, "## Summary\n\nRetry failed calls.")
	assert.Contains(t, opts.Description, "## Plan\n\n1. Wrap the client.")
	assert.Zero(t, opts.WorkItemID, "work items are only linked on Azure DevOps")

	rec = e.do(t, http.MethodGet, "/api/ticket/state", "")
	state := decodeBody[session.Session](t, rec)
	require.NotNil(t, state.CreatedPR)
	assert.Equal(t, 99, state.CreatedPR.ID)
	assert.Contains(t, state.Steps, "pr")
}

func TestCreatePR_ExplicitFields(t *testing.T) {
	e := newTestEnv(t)
	withTicketWorkspace(t, e, "feature/42-add-retries", "https://git.example/acme/app.git")

	rec := e.do(t, http.MethodPost, "/api/ticket/create-pr", `{"title":"Retry client","description":"Body","targetBranch":"develop"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Len(t, e.host.created, 1)
	opts := e.host.created[0]
	assert.Equal(t, "Retry client", opts.Title)
	assert.Equal(t, "Body", opts.Description)
	assert.Equal(t, "develop", opts.TargetBranch)
}

func TestCreatePR_AzureDevOpsLinksAndTransitions(t *testing.T) {
	tests := []struct {
		name     string
		stateErr error
		warning  string
	}{
		{name: "transition succeeds"},
		{
			name:     "transition fails",
			stateErr: shiperrors.NewADOErrorWithStatus("UpdateWorkItemState", "42", http.StatusBadRequest, "state Resolved is not valid"),
			warning:  `work item #42 could not be moved to "Resolved"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			e.host.kind = hosting.KindAzureDevOps
			e.items.stateErr = tt.stateErr
			e.srv.deps.Workflow = config.WorkflowConfig{LinkWorkItem: true, TransitionState: "Resolved"}
			withTicketWorkspace(t, e, "feature/42-add-retries", "https://git.example/acme/app.git")

			rec := e.do(t, http.MethodPost, "/api/ticket/create-pr", `{}`)
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
			resp := decodeBody[createPRResponse](t, rec)

			require.Len(t, e.host.created, 1)
			assert.Equal(t, 42, e.host.created[0].WorkItemID)
			assert.Equal(t, []string{"Resolved"}, e.items.transitions)

			if tt.warning == "" {
				assert.Empty(t, resp.Warnings)
				return
			}
			require.Len(t, resp.Warnings, 1)
			assert.Contains(t, resp.Warnings[0], tt.warning)
		})
	}
}

func TestCreatePR_RemoteWithoutProvider(t *testing.T) {
	e := newTestEnv(t)
	e.srv.deps.Hosts = hosting.NewRegistry(e.host).WithKnownHosts(hosting.KnownHost{
		Kind:         hosting.KindAzureDevOps,
		Setting:      "ado.pat",
		Message:      "Azure DevOps is not configured",
		ParseRepoURL: ado.ParseRepoURL,
	})

	withTicketWorkspace(t, e, "feature/42-add-retries", "https://dev.azure.com/contoso/Web/_git/app")
	rec := e.do(t, http.MethodPost, "/api/ticket/create-pr", `{}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())
	assert.Contains(t, decodeBody[map[string]string](t, rec)["error"], "ado.pat")

	withTicketWorkspace(t, e, "feature/42-add-retries", "https://gitlab.example/acme/app.git")
	rec = e.do(t, http.MethodPost, "/api/ticket/create-pr", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, decodeBody[map[string]string](t, rec)["error"], "not an Azure DevOps or GitHub repository")

	assert.Empty(t, e.host.created)
}

func TestReviewFetch_HostWithoutToken(t *testing.T) {
	e := newTestEnv(t)
	e.srv.deps.Hosts = hosting.NewRegistry().WithKnownHosts(hosting.KnownHost{
		Kind:                hosting.KindAzureDevOps,
		Setting:             "ado.pat",
		Message:             "Azure DevOps is not configured",
		ParsePullRequestURL: ado.ParsePullRequestURL,
	})

	rec := e.do(t, http.MethodPost, "/api/review/fetch", `{"url":"https://dev.azure.com/contoso/Web/_git/app/pullrequest/12"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())
	assert.Contains(t, decodeBody[map[string]string](t, rec)["error"], "ado.pat")

	rec = e.do(t, http.MethodPost, "/api/review/fetch", `{"url":"https://gitlab.example/acme/app/-/merge_requests/3"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestTicketDiff(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/ticket/diff", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[map[string]string](t, rec)["error"], "clone a repository or choose a local folder first")

	runner := withTicketWorkspace(t, e, "feature/42-add-retries", "https://git.example/acme/app.git")

	rec = e.do(t, http.MethodGet, "/api/ticket/diff", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	summary := decodeBody[diff.Summary](t, rec)
	require.Len(t, summary.Files, 1)
	assert.Equal(t, "retry.go", summary.Files[0].Path)
	assert.Equal(t, diff.StatusModified, summary.Files[0].Status)
	assert.Equal(t, 2, summary.Additions)
	assert.Equal(t, 1, summary.Deletions)
	assert.Equal(t, strings.TrimSpace(sampleDiff), summary.Raw)

	raw := decodeBody[map[string]any](t, rec)
	for _, key := range []string{"files", "additions", "deletions", "raw"} {
		assert.Contains(t, raw, key)
	}

	assert.Equal(t, []string{"add", "-N", "."}, runner.called("add")[0])
	assert.Equal(t, []string{"diff", "HEAD"}, runner.called("diff")[0])
}
