package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/chainguard-dev/clog"

	"thoreinstein.com/shipwright/pkg/ado"
	"thoreinstein.com/shipwright/pkg/agent"
	"thoreinstein.com/shipwright/pkg/diff"
	shiperrors "thoreinstein.com/shipwright/pkg/errors"
	"thoreinstein.com/shipwright/pkg/git"
	"thoreinstein.com/shipwright/pkg/hosting"
	"thoreinstein.com/shipwright/pkg/metrics"
	"thoreinstein.com/shipwright/pkg/planner"
	"thoreinstein.com/shipwright/pkg/session"
	"thoreinstein.com/shipwright/pkg/sse"
)

type fetchRequest struct {
	URL string `json:"url"`
}

type ticketResponse struct {
	Ticket *ado.WorkItem `json:"ticket"`
}

type implementRequest struct {
	ExtraInstructions string `json:"extraInstructions"`
}

type implementResponse struct {
	*agent.Result
	Branch string `json:"branch"`
}

type commitPushRequest struct {
	Message string `json:"message"`
}

type commitPushResponse struct {
	Commit string `json:"commit"`
	Branch string `json:"branch"`
}

type createPRRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	TargetBranch string `json:"targetBranch"`
}

type createPRResponse struct {
	PullRequest *hosting.PullRequest `json:"pullRequest"`
	Warnings    []string             `json:"warnings,omitempty"`
}

func (s *Server) needWorkItems() error {
	return configured(s.deps.WorkItems, "ado.pat", "Azure DevOps is not configured (set ADO_PAT or run 'shipwright auth login')")
}

func (s *Server) needAgent() error {
	return configured(s.deps.Agent, "agent.api_key", "the coding agent is not configured (set ANTHROPIC_API_KEY)")
}

// ticketWorkspace loads the ticket session and checks that it has both a
// work item and an open workspace.
func (s *Server) ticketWorkspace(ctx context.Context, step string) (*session.Session, error) {
	sess, err := s.deps.Sessions.Load(ctx, session.ModeTicket, sessionID(ctx))
	if err != nil {
		return nil, err
	}
	if sess.Ticket == nil {
		return nil, shiperrors.NewWorkflowError(step, "fetch a work item first")
	}
	if sess.Workspace == nil {
		return nil, shiperrors.NewWorkflowError(step, "clone a repository or choose a local folder first")
	}
	return sess, nil
}

func (s *Server) ticketFetch(w http.ResponseWriter, r *http.Request) {
	var body fetchRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.exclusive(w, r, session.ModeTicket, "fetch", func() error {
		if err := s.needWorkItems(); err != nil {
			return err
		}
		ctx := r.Context()

		ref, err := ado.ParseWorkItemURL(strings.TrimSpace(body.URL))
		if err != nil {
			return err
		}

		wi, err := s.deps.WorkItems.GetWorkItem(ctx, ref)
		metrics.Upstream("ado", "GetWorkItem", err)
		if err != nil {
			return err
		}

		if _, err := s.deps.Sessions.Update(ctx, session.ModeTicket, sessionID(ctx), func(sess *session.Session) error {
			if sess.Ticket == nil || sess.Ticket.ID != wi.ID {
				sess.Plan = nil
				sess.SetDiscussion(nil)
				sess.Transcript = ""
				sess.LastCommit = ""
				sess.CreatedPR = nil
				sess.Steps = nil
			}
			sess.Ticket = wi
			sess.MarkStep("fetch")
			return nil
		}); err != nil {
			return err
		}

		clog.FromContext(ctx).Info("fetched work item", "id", wi.ID, "state", wi.State)
		writeJSON(w, http.StatusOK, ticketResponse{Ticket: wi})
		return nil
	})
}

func (s *Server) implement(w http.ResponseWriter, r *http.Request) {
	var body implementRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.stream(w, r, session.ModeTicket, "implement", func(ctx context.Context, out *sse.Writer) (any, error) {
		if err := s.needAgent(); err != nil {
			return nil, err
		}
		id := sessionID(ctx)

		sess, err := s.ticketWorkspace(ctx, "implement")
		if err != nil {
			return nil, err
		}
		ws := sess.Workspace

		branch := git.BranchNameForTicket(sess.Ticket.ID, sess.Ticket.Title)
		if ws.Branch != branch {
			_ = out.Status("Creating branch " + branch)
			if err := s.deps.Workspaces.CreateBranch(ctx, ws.Path, branch); err != nil {
				return nil, err
			}
		}

		guidance, err := s.guidance(sess)
		if err != nil {
			return nil, err
		}

		run := s.deps.Agent.Start(ctx, agent.Task{
			Workspace:    ws.Path,
			SystemPrompt: strings.TrimSpace(planner.SystemPromptImplement + "\n\n" + guidance),
			Prompt:       planner.BuildImplementPrompt(planner.TicketSubject(sess.Ticket), sess.Plan, body.ExtraInstructions),
		})
		forward(run, out)
		result, runErr := run.Wait()

		// The transcript is kept even when the run fails so the user can
		// see how far it got.
		if _, err := s.deps.Sessions.Update(ctx, session.ModeTicket, id, func(sess *session.Session) error {
			if sess.Workspace != nil {
				sess.Workspace.Branch = branch
			}
			sess.Transcript = out.Transcript().String()
			if runErr == nil {
				sess.MarkStep("implement")
			}
			return nil
		}); err != nil {
			clog.FromContext(ctx).Warn("failed to save implementation transcript", "error", err)
		}

		if runErr != nil {
			return nil, runErr
		}
		return implementResponse{Result: result, Branch: branch}, nil
	})
}

func (s *Server) ticketDiff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, err := s.deps.Sessions.Load(ctx, session.ModeTicket, sessionID(ctx))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sess.Workspace == nil {
		s.writeError(w, r, shiperrors.NewWorkflowError("diff", "clone a repository or choose a local folder first"))
		return
	}

	raw, err := s.deps.Workspaces.Diff(ctx, sess.Workspace.Path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, err := diff.Parse(raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// defaultCommitMessage follows the "#<id> <title>" form Azure Boards links
// commits with.
func defaultCommitMessage(wi *ado.WorkItem) string {
	return fmt.Sprintf("#%d %s", wi.ID, wi.Title)
}

func (s *Server) commitPush(w http.ResponseWriter, r *http.Request) {
	var body commitPushRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.exclusive(w, r, session.ModeTicket, "commit-push", func() error {
		ctx := r.Context()

		sess, err := s.ticketWorkspace(ctx, "commit")
		if err != nil {
			return err
		}
		ws := sess.Workspace

		message := strings.TrimSpace(body.Message)
		if message == "" {
			message = defaultCommitMessage(sess.Ticket)
		}

		branch, err := s.deps.Workspaces.CurrentBranch(ws.Path)
		if err != nil {
			return err
		}
		if branch == ws.BaseBranch {
			return shiperrors.NewWorkflowError("commit", "refusing to commit to the base branch "+branch+"; run implement to create a feature branch")
		}

		sha, err := s.deps.Workspaces.CommitAll(ctx, ws.Path, message)
		if err != nil {
			return err
		}
		if err := s.deps.Workspaces.Push(ctx, ws.Path, branch); err != nil {
			return err
		}

		if _, err := s.deps.Sessions.Update(ctx, session.ModeTicket, sessionID(ctx), func(sess *session.Session) error {
			sess.LastCommit = sha
			if sess.Workspace != nil {
				sess.Workspace.Branch = branch
			}
			sess.MarkStep("commit")
			return nil
		}); err != nil {
			return err
		}

		clog.FromContext(ctx).Info("pushed changes", "branch", branch, "commit", sha)
		writeJSON(w, http.StatusOK, commitPushResponse{Commit: sha, Branch: branch})
		return nil
	})
}

// pullRequestDescription builds the default body of a ticket pull request.
func pullRequestDescription(sess *session.Session) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Implements work item #%d: %s\n", sess.Ticket.ID, sess.Ticket.Title))
	if sess.Ticket.URL != "" {
		sb.WriteString("\n" + sess.Ticket.URL + "\n")
	}
	if sess.Plan != nil && sess.Plan.Summary != "" {
		sb.WriteString("\n## Summary\n\n")
		sb.WriteString(sess.Plan.Summary)
		sb.WriteString("\n")
	}
	if sess.Plan != nil && sess.Plan.Steps != "" {
		sb.WriteString("\n## Plan\n\n")
		sb.WriteString(sess.Plan.Steps)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

func (s *Server) createPR(w http.ResponseWriter, r *http.Request) {
	var body createPRRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.exclusive(w, r, session.ModeTicket, "create-pr", func() error {
		ctx := r.Context()
		log := clog.FromContext(ctx)

		sess, err := s.ticketWorkspace(ctx, "create-pr")
		if err != nil {
			return err
		}
		ws := sess.Workspace
		if err := configured(s.deps.Hosts, "ado.pat", "no pull request host is configured"); err != nil {
			return err
		}

		provider, repo, err := s.deps.Hosts.ResolveRepo(ws.RemoteURL)
		if err != nil {
			if shiperrors.IsConfigError(err) {
				return err
			}
			return shiperrors.NewWorkflowError("create-pr", "the workspace remote is not an Azure DevOps or GitHub repository")
		}

		branch, err := s.deps.Workspaces.CurrentBranch(ws.Path)
		if err != nil {
			return err
		}

		opts := hosting.CreatePullRequestOptions{
			Title:        strings.TrimSpace(body.Title),
			Description:  strings.TrimSpace(body.Description),
			SourceBranch: branch,
			TargetBranch: strings.TrimSpace(body.TargetBranch),
		}
		if opts.Title == "" {
			opts.Title = sess.Ticket.Title
		}
		if opts.Description == "" {
			opts.Description = pullRequestDescription(sess)
		}
		if opts.TargetBranch == "" {
			opts.TargetBranch = ws.BaseBranch
		}
		if s.deps.Workflow.LinkWorkItem && provider.Kind() == hosting.KindAzureDevOps {
			opts.WorkItemID = sess.Ticket.ID
		}

		pr, err := provider.CreatePullRequest(ctx, repo, opts)
		metrics.Upstream(string(provider.Kind()), "CreatePullRequest", err)
		if err != nil {
			return err
		}
		log.Info("created pull request", "id", pr.ID, "url", pr.WebURL)

		var warnings []string
		if state := s.deps.Workflow.TransitionState; state != "" && s.deps.WorkItems != nil {
			ref := ado.WorkItemRef{Organization: sess.Ticket.Organization, Project: sess.Ticket.Project, ID: sess.Ticket.ID}
			err := s.deps.WorkItems.UpdateWorkItemState(ctx, ref, state)
			metrics.Upstream("ado", "UpdateWorkItemState", err)
			if err != nil {
				log.Warn("failed to transition work item", "id", ref.ID, "state", state, "error", err)
				warnings = append(warnings, fmt.Sprintf("pull request created, but work item #%d could not be moved to %q: %s", ref.ID, state, errorMessage(err)))
			}
		}

		if _, err := s.deps.Sessions.Update(ctx, session.ModeTicket, sessionID(ctx), func(sess *session.Session) error {
			sess.CreatedPR = pr
			sess.MarkStep("pr")
			return nil
		}); err != nil {
			return err
		}

		writeJSON(w, http.StatusCreated, createPRResponse{PullRequest: pr, Warnings: warnings})
		return nil
	})
}
