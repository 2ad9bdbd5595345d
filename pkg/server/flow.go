package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/cockroachdb/errors"

	"thoreinstein.com/shipwright/pkg/ai"
	"thoreinstein.com/shipwright/pkg/diff"
	shiperrors "thoreinstein.com/shipwright/pkg/errors"
	"thoreinstein.com/shipwright/pkg/git"
	"thoreinstein.com/shipwright/pkg/picker"
	"thoreinstein.com/shipwright/pkg/planner"
	"thoreinstein.com/shipwright/pkg/session"
	"thoreinstein.com/shipwright/pkg/sse"
)

// Handlers shared by the ticket and review flows.

type planResponse struct {
	Plan *planner.Plan `json:"plan"`
}

type discussRequest struct {
	Message string `json:"message"`
}

type discussResponse struct {
	Reply      string       `json:"reply"`
	Discussion []ai.Message `json:"discussion"`
}

type refineRequest struct {
	Feedback string `json:"feedback"`
}

type cloneRequest struct {
	RepoURL string `json:"repoUrl"`
	Branch  string `json:"branch"`
}

type useLocalRequest struct {
	Path string `json:"path"`
}

type workspaceResponse struct {
	Workspace *git.Workspace `json:"workspace"`
}

type stateResponse struct {
	*session.Session
	Busy string `json:"busy,omitempty"`
}

func (s *Server) needPlanner() error {
	return configured(s.deps.Planner, "ai.provider", "no AI provider is configured for planning")
}

// planRequest describes what the session's plan is about.
func (s *Server) planRequest(ctx context.Context, sess *session.Session) (planner.Request, error) {
	var req planner.Request
	switch sess.Mode {
	case session.ModeReview:
		if sess.PullRequest == nil {
			return req, shiperrors.NewWorkflowError("plan", "fetch a pull request first")
		}
		req.Kind = planner.KindReview
		req.Subject = planner.PullRequestSubject(sess.PullRequest, s.changedFiles(ctx, sess), sess.Comments)
	default:
		if sess.Ticket == nil {
			return req, shiperrors.NewWorkflowError("plan", "fetch a work item first")
		}
		req.Kind = planner.KindTicket
		req.Subject = planner.TicketSubject(sess.Ticket)
	}

	guidance, err := s.guidance(sess)
	if err != nil {
		return req, err
	}
	req.Guidance = guidance
	return req, nil
}

// changedFiles lists the files a pull request touches when its branch is
// checked out. It returns nil when that is not known yet.
func (s *Server) changedFiles(ctx context.Context, sess *session.Session) []diff.FileChange {
	if sess.Workspace == nil || sess.PullRequest == nil {
		return nil
	}
	raw, err := s.deps.Workspaces.DiffAgainst(ctx, sess.Workspace.Path, sess.PullRequest.TargetBranch)
	if err != nil {
		s.logDebug(ctx, "could not diff pull request branch", "error", err)
		return nil
	}
	summary, err := diff.Parse(raw)
	if err != nil {
		s.logDebug(ctx, "could not parse pull request diff", "error", err)
		return nil
	}
	return summary.Files
}

// guidance renders the repository instructions for the session workspace,
// or the shared ones alone before a workspace is open.
func (s *Server) guidance(sess *session.Session) (string, error) {
	if s.deps.Library == nil {
		return "", nil
	}
	ws := ""
	if sess.Workspace != nil {
		ws = sess.Workspace.Path
	}
	return s.deps.Library.Render(ws)
}

func (s *Server) plan(mode session.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.stream(w, r, mode, "plan", func(ctx context.Context, out *sse.Writer) (any, error) {
			if err := s.needPlanner(); err != nil {
				return nil, err
			}
			id := sessionID(ctx)

			sess, err := s.deps.Sessions.Load(ctx, mode, id)
			if err != nil {
				return nil, err
			}
			req, err := s.planRequest(ctx, sess)
			if err != nil {
				return nil, err
			}

			_ = out.Status("Generating plan...")
			plan, err := s.deps.Planner.Generate(ctx, req, func(text string) { _ = out.Delta(text) })
			if err != nil {
				return nil, err
			}

			if _, err := s.deps.Sessions.Update(ctx, mode, id, func(sess *session.Session) error {
				sess.SetPlan(plan)
				sess.MarkStep("plan")
				return nil
			}); err != nil {
				return nil, err
			}
			return planResponse{Plan: plan}, nil
		})
	}
}

func (s *Server) refine(mode session.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body refineRequest
		if err := decode(w, r, &body); err != nil {
			s.writeError(w, r, err)
			return
		}

		s.exclusive(w, r, mode, "refine", func() error {
			if err := s.needPlanner(); err != nil {
				return err
			}
			ctx := r.Context()
			id := sessionID(ctx)

			sess, err := s.deps.Sessions.Load(ctx, mode, id)
			if err != nil {
				return err
			}
			req, err := s.planRequest(ctx, sess)
			if err != nil {
				return err
			}

			plan, err := s.deps.Planner.Refine(ctx, req, sess.Plan, body.Feedback, nil)
			if err != nil {
				return err
			}

			if _, err := s.deps.Sessions.Update(ctx, mode, id, func(sess *session.Session) error {
				sess.SetPlan(plan)
				return nil
			}); err != nil {
				return err
			}
			writeJSON(w, http.StatusOK, planResponse{Plan: plan})
			return nil
		})
	}
}

func (s *Server) discuss(mode session.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body discussRequest
		if err := decode(w, r, &body); err != nil {
			s.writeError(w, r, err)
			return
		}

		s.exclusive(w, r, mode, "discuss", func() error {
			if err := s.needPlanner(); err != nil {
				return err
			}
			ctx := r.Context()
			id := sessionID(ctx)

			sess, err := s.deps.Sessions.Load(ctx, mode, id)
			if err != nil {
				return err
			}
			req, err := s.planRequest(ctx, sess)
			if err != nil {
				return err
			}

			reply, history, err := s.deps.Planner.Discuss(ctx, req, sess.Plan, sess.Discussion, body.Message, nil)
			if err != nil {
				return err
			}

			sess, err = s.deps.Sessions.Update(ctx, mode, id, func(sess *session.Session) error {
				sess.SetDiscussion(history)
				return nil
			})
			if err != nil {
				return err
			}
			writeJSON(w, http.StatusOK, discussResponse{Reply: reply, Discussion: sess.Discussion})
			return nil
		})
	}
}

// setWorkspace stores ws in the session and removes the clone it
// replaces, if any.
func (s *Server) setWorkspace(ctx context.Context, mode session.Mode, ws *git.Workspace) error {
	ws.CanCreatePR = s.deps.Hosts != nil && s.deps.Hosts.CanCreatePR(ws.RemoteURL)

	var previous *git.Workspace
	if _, err := s.deps.Sessions.Update(ctx, mode, sessionID(ctx), func(sess *session.Session) error {
		previous = sess.Workspace
		sess.Workspace = ws
		sess.MarkStep("workspace")
		return nil
	}); err != nil {
		return err
	}

	if previous != nil && previous.Path != ws.Path {
		s.deps.Workspaces.Remove(previous)
	}
	return nil
}

func (s *Server) clone(mode session.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body cloneRequest
		if err := decode(w, r, &body); err != nil {
			s.writeError(w, r, err)
			return
		}

		s.exclusive(w, r, mode, "clone", func() error {
			ctx := r.Context()

			repoURL, branch := strings.TrimSpace(body.RepoURL), strings.TrimSpace(body.Branch)
			if mode == session.ModeReview {
				sess, err := s.deps.Sessions.Load(ctx, mode, sessionID(ctx))
				if err != nil {
					return err
				}
				if sess.PullRequest == nil {
					return shiperrors.NewWorkflowError("clone", "fetch a pull request first")
				}
				if repoURL == "" {
					repoURL = sess.PullRequest.CloneURL
				}
				branch = sess.PullRequest.SourceBranch
			}

			clog.FromContext(ctx).Info("cloning repository", "repo", repoURL, "branch", branch)
			ws, err := s.deps.Workspaces.Clone(ctx, repoURL, branch)
			if err != nil {
				return err
			}
			if err := s.setWorkspace(ctx, mode, ws); err != nil {
				s.deps.Workspaces.Remove(ws)
				return err
			}
			writeJSON(w, http.StatusOK, workspaceResponse{Workspace: ws})
			return nil
		})
	}
}

func (s *Server) useLocal(mode session.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body useLocalRequest
		if err := decode(w, r, &body); err != nil {
			s.writeError(w, r, err)
			return
		}

		s.exclusive(w, r, mode, "use-local", func() error {
			ctx := r.Context()

			ws, err := s.deps.Workspaces.UseLocal(body.Path)
			if err != nil {
				return err
			}

			if mode == session.ModeReview {
				sess, err := s.deps.Sessions.Load(ctx, mode, sessionID(ctx))
				if err != nil {
					return err
				}
				if pr := sess.PullRequest; pr != nil && ws.Branch != pr.SourceBranch {
					if err := s.deps.Workspaces.Checkout(ctx, ws.Path, pr.SourceBranch); err != nil {
						return shiperrors.NewWorkflowErrorWithCause("use-local", "could not check out "+pr.SourceBranch+" in "+ws.Path, err)
					}
					ws.Branch = pr.SourceBranch
				}
			}

			if err := s.setWorkspace(ctx, mode, ws); err != nil {
				return err
			}
			writeJSON(w, http.StatusOK, workspaceResponse{Workspace: ws})
			return nil
		})
	}
}

func (s *Server) pickFolder(w http.ResponseWriter, r *http.Request) {
	if err := configured(s.deps.Picker, "picker", "no folder picker is available"); err != nil {
		s.writeError(w, r, err)
		return
	}

	path, err := s.deps.Picker.PickFolder(r.Context())
	if errors.Is(err, picker.ErrCancelled) {
		writeJSON(w, http.StatusOK, map[string]any{"path": "", "cancelled": true})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "cancelled": false})
}

func (s *Server) state(mode session.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := sessionID(ctx)

		sess, err := s.deps.Sessions.Load(ctx, mode, id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		op, _ := s.deps.Sessions.Busy(mode, id)
		writeJSON(w, http.StatusOK, stateResponse{Session: sess, Busy: op})
	}
}

func (s *Server) reset(mode session.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		old, err := s.deps.Sessions.Reset(ctx, mode, sessionID(ctx))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if old != nil && old.Workspace != nil {
			s.deps.Workspaces.Remove(old.Workspace)
		}

		clog.FromContext(ctx).Info("session reset", "mode", mode)
		writeJSON(w, http.StatusOK, map[string]bool{"reset": true})
	}
}
