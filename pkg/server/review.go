package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"

	"thoreinstein.com/shipwright/pkg/ado"
	"thoreinstein.com/shipwright/pkg/agent"
	shiperrors "thoreinstein.com/shipwright/pkg/errors"
	"thoreinstein.com/shipwright/pkg/hosting"
	"thoreinstein.com/shipwright/pkg/metrics"
	"thoreinstein.com/shipwright/pkg/review"
	"thoreinstein.com/shipwright/pkg/session"
	"thoreinstein.com/shipwright/pkg/sse"
)

type reviewFetchResponse struct {
	PullRequest *hosting.PullRequest `json:"pullRequest"`
	Comments    []hosting.Comment    `json:"existingComments"`
}

type reviewRunResponse struct {
	Findings []review.Finding `json:"findings"`
	Summary  *agent.Result    `json:"summary"`
}

type findingsResponse struct {
	Findings []review.Finding `json:"findings"`
}

type commentsRequest struct {
	FindingIDs []string `json:"findingIds"`
}

type commentFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

type commentsResponse struct {
	Posted []string         `json:"posted"`
	Failed []commentFailure `json:"failed,omitempty"`
}

// threadComments flattens threads into the first comment of each, which
// is what the review planner shows.
func threadComments(threads []ado.Thread) []hosting.Comment {
	out := make([]hosting.Comment, 0, len(threads))
	for _, t := range threads {
		if len(t.Comments) == 0 || strings.TrimSpace(t.Comments[0].Content) == "" {
			continue
		}
		out = append(out, hosting.Comment{
			FilePath: strings.TrimPrefix(t.FilePath, "/"),
			Line:     t.Line,
			Body:     t.Comments[0].Content,
		})
	}
	return out
}

func (s *Server) reviewFetch(w http.ResponseWriter, r *http.Request) {
	var body fetchRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.exclusive(w, r, session.ModeReview, "fetch", func() error {
		if err := configured(s.deps.Hosts, "ado.pat", "no pull request host is configured"); err != nil {
			return err
		}
		ctx := r.Context()

		provider, ref, err := s.deps.Hosts.ResolvePullRequest(strings.TrimSpace(body.URL))
		if err != nil {
			return err
		}

		var (
			pr       *hosting.PullRequest
			comments []hosting.Comment
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			pr, err = provider.GetPullRequest(gctx, ref)
			metrics.Upstream(string(provider.Kind()), "GetPullRequest", err)
			return err
		})
		if provider.Kind() == hosting.KindAzureDevOps && s.deps.Threads != nil {
			g.Go(func() error {
				threads, err := s.deps.Threads.ListThreads(gctx, ref)
				metrics.Upstream("ado", "ListThreads", err)
				if err != nil {
					// Existing comments only enrich the plan.
					clog.FromContext(ctx).Warn("failed to list pull request threads", "error", err)
					return nil
				}
				comments = threadComments(threads)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if _, err := s.deps.Sessions.Update(ctx, session.ModeReview, sessionID(ctx), func(sess *session.Session) error {
			if sess.PullRequest == nil || sess.PullRequest.WebURL != pr.WebURL {
				sess.Plan = nil
				sess.SetDiscussion(nil)
				sess.Findings = nil
				sess.Transcript = ""
				sess.Steps = nil
			}
			sess.PullRequest = pr
			sess.Comments = comments
			sess.MarkStep("fetch")
			return nil
		}); err != nil {
			return err
		}

		clog.FromContext(ctx).Info("fetched pull request", "id", pr.ID, "provider", provider.Kind(), "comments", len(comments))
		writeJSON(w, http.StatusOK, reviewFetchResponse{PullRequest: pr, Comments: comments})
		return nil
	})
}

func (s *Server) reviewRun(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, session.ModeReview, "review", func(ctx context.Context, out *sse.Writer) (any, error) {
		if err := s.needAgent(); err != nil {
			return nil, err
		}
		id := sessionID(ctx)

		sess, err := s.deps.Sessions.Load(ctx, session.ModeReview, id)
		if err != nil {
			return nil, err
		}
		pr := sess.PullRequest
		if pr == nil {
			return nil, shiperrors.NewWorkflowError("review", "fetch a pull request first")
		}
		if sess.Workspace == nil {
			return nil, shiperrors.NewWorkflowError("review", "clone the repository or choose a local folder first")
		}

		_ = out.Status("Collecting changes against " + pr.TargetBranch)
		raw, err := s.deps.Workspaces.DiffAgainst(ctx, sess.Workspace.Path, pr.TargetBranch)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(raw) == "" {
			return nil, shiperrors.NewWorkflowError("review", "the source branch has no changes against "+pr.TargetBranch)
		}

		guidance, err := s.guidance(sess)
		if err != nil {
			return nil, err
		}
		plan := ""
		if sess.Plan != nil {
			plan = sess.Plan.Raw
		}

		run := s.deps.Agent.Start(ctx, agent.Task{
			Workspace:    sess.Workspace.Path,
			SystemPrompt: strings.TrimSpace(review.SystemPrompt + "\n\n" + guidance),
			Prompt:       review.BuildReviewPrompt(pr, plan, raw),
			ReadOnly:     true,
		})
		forward(run, out)
		result, runErr := run.Wait()

		var findings []review.Finding
		if runErr == nil {
			findings = review.ParseFindings(result.Summary)
		}
		if _, err := s.deps.Sessions.Update(ctx, session.ModeReview, id, func(sess *session.Session) error {
			sess.Transcript = out.Transcript().String()
			if runErr == nil {
				sess.Findings = findings
				sess.MarkStep("review")
			}
			return nil
		}); err != nil {
			clog.FromContext(ctx).Warn("failed to save review", "error", err)
		}

		if runErr != nil {
			return nil, runErr
		}
		if findings == nil {
			findings = []review.Finding{}
		}
		return reviewRunResponse{Findings: findings, Summary: result}, nil
	})
}

func (s *Server) findings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, err := s.deps.Sessions.Load(ctx, session.ModeReview, sessionID(ctx))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	findings := sess.Findings
	if findings == nil {
		findings = []review.Finding{}
	}
	writeJSON(w, http.StatusOK, findingsResponse{Findings: findings})
}

func (s *Server) postComments(w http.ResponseWriter, r *http.Request) {
	var body commentsRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.exclusive(w, r, session.ModeReview, "comments", func() error {
		ctx := r.Context()
		log := clog.FromContext(ctx)

		if len(body.FindingIDs) == 0 {
			return shiperrors.NewValidationError("findingIds", "select at least one finding")
		}

		sess, err := s.deps.Sessions.Load(ctx, session.ModeReview, sessionID(ctx))
		if err != nil {
			return err
		}
		if sess.PullRequest == nil {
			return shiperrors.NewWorkflowError("comments", "fetch a pull request first")
		}

		selected, unknown := review.Select(sess.Findings, body.FindingIDs)
		if len(unknown) > 0 {
			return shiperrors.NewNotFoundError("finding", strings.Join(unknown, ", "))
		}

		if s.deps.Hosts == nil {
			return shiperrors.NewConfigError("hosting", "no pull request host is configured")
		}
		provider, ok := s.deps.Hosts.Get(sess.PullRequest.Kind)
		if !ok {
			return shiperrors.NewConfigError("hosting", "no client configured for "+string(sess.PullRequest.Kind))
		}

		resp := commentsResponse{Posted: []string{}}
		var firstErr error
		for _, f := range selected {
			err := provider.PostComment(ctx, sess.PullRequest.PullRequestRef, review.ToComment(f))
			metrics.Upstream(string(provider.Kind()), "PostComment", err)
			if err != nil {
				log.Warn("failed to post finding", "finding", f.ID, "error", err)
				resp.Failed = append(resp.Failed, commentFailure{ID: f.ID, Error: errorMessage(err)})
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			resp.Posted = append(resp.Posted, f.ID)
		}

		if len(resp.Posted) == 0 {
			return firstErr
		}

		if _, err := s.deps.Sessions.Update(ctx, session.ModeReview, sessionID(ctx), func(sess *session.Session) error {
			sess.MarkStep("comments")
			return nil
		}); err != nil {
			return err
		}

		log.Info("posted review comments", "posted", len(resp.Posted), "failed", len(resp.Failed))
		writeJSON(w, http.StatusOK, resp)
		return nil
	})
}
