// Package server exposes the ticket and review workflows as a JSON and
// Server-Sent Events API.
//
// Every request is bound to a session, named by the X-Session-ID header
// or the shipwright_session cookie. Requests carrying neither share the
// "default" session.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"

	"thoreinstein.com/shipwright/pkg/ado"
	"thoreinstein.com/shipwright/pkg/agent"
	"thoreinstein.com/shipwright/pkg/config"
	shiperrors "thoreinstein.com/shipwright/pkg/errors"
	"thoreinstein.com/shipwright/pkg/git"
	"thoreinstein.com/shipwright/pkg/hosting"
	"thoreinstein.com/shipwright/pkg/instructions"
	"thoreinstein.com/shipwright/pkg/metrics"
	"thoreinstein.com/shipwright/pkg/planner"
	"thoreinstein.com/shipwright/pkg/session"
)

// Header and cookie names.
const (
	SessionHeader   = "X-Session-ID"
	SessionCookie   = "shipwright_session"
	RequestIDHeader = "X-Request-ID"
)

// WorkItems fetches and updates Azure Boards work items.
type WorkItems interface {
	GetWorkItem(ctx context.Context, ref ado.WorkItemRef) (*ado.WorkItem, error)
	UpdateWorkItemState(ctx context.Context, ref ado.WorkItemRef, state string) error
}

// Threads lists existing comment threads on an Azure DevOps pull request.
type Threads interface {
	ListThreads(ctx context.Context, ref hosting.PullRequestRef) ([]ado.Thread, error)
}

// Agent starts coding agent runs.
type Agent interface {
	Start(ctx context.Context, task agent.Task) *agent.Session
}

// FolderPicker asks the local user for a directory.
type FolderPicker interface {
	PickFolder(ctx context.Context) (string, error)
}

// Deps are the collaborators the handlers call. Optional integrations are
// left nil when they are not configured; their routes then fail with a
// configuration error.
type Deps struct {
	Sessions   *session.Manager
	Workspaces *git.Manager
	Hosts      *hosting.Registry
	Library    *instructions.Library
	WorkItems  WorkItems
	Threads    Threads
	Planner    *planner.Planner
	Agent      Agent
	Picker     FolderPicker
	Workflow   config.WorkflowConfig
}

// Server routes HTTP requests to the workflows.
type Server struct {
	deps    Deps
	verbose bool
	logger  *slog.Logger
	mux     *http.ServeMux
}

// Option is a functional option for configuring Server.
type Option func(*Server)

// WithLogger sets a custom logger for the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a Server and registers its routes.
func New(deps Deps, verbose bool, opts ...Option) *Server {
	s := &Server{
		deps:    deps,
		verbose: verbose,
		logger:  slog.Default(),
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) logDebug(ctx context.Context, msg string, args ...any) {
	if s.verbose {
		clog.FromContext(ctx).Debug(msg, args...)
	}
}

func (s *Server) routes() {
	t := func(pattern, name string, h http.HandlerFunc) {
		s.mux.Handle(pattern, s.route("ticket."+name, h))
	}
	t("POST /api/ticket/fetch", "fetch", s.ticketFetch)
	t("POST /api/ticket/plan", "plan", s.plan(session.ModeTicket))
	t("POST /api/ticket/refine", "refine", s.refine(session.ModeTicket))
	t("POST /api/ticket/discuss", "discuss", s.discuss(session.ModeTicket))
	t("POST /api/ticket/clone", "clone", s.clone(session.ModeTicket))
	t("POST /api/ticket/use-local", "use_local", s.useLocal(session.ModeTicket))
	t("POST /api/ticket/pick-folder", "pick_folder", s.pickFolder)
	t("POST /api/ticket/implement", "implement", s.implement)
	t("GET /api/ticket/diff", "diff", s.ticketDiff)
	t("POST /api/ticket/commit-push", "commit_push", s.commitPush)
	t("POST /api/ticket/create-pr", "create_pr", s.createPR)
	t("GET /api/ticket/instructions", "instructions_list", s.listInstructions)
	t("GET /api/ticket/instructions/{name}", "instructions_get", s.getInstruction)
	t("PUT /api/ticket/instructions/{name}", "instructions_save", s.saveInstruction)
	t("DELETE /api/ticket/instructions/{name}", "instructions_delete", s.deleteInstruction)
	t("POST /api/ticket/instructions/sync", "instructions_sync", s.syncInstructions)
	t("GET /api/ticket/state", "state", s.state(session.ModeTicket))
	t("POST /api/ticket/reset", "reset", s.reset(session.ModeTicket))

	r := func(pattern, name string, h http.HandlerFunc) {
		s.mux.Handle(pattern, s.route("review."+name, h))
	}
	r("POST /api/review/fetch", "fetch", s.reviewFetch)
	r("POST /api/review/plan", "plan", s.plan(session.ModeReview))
	r("POST /api/review/refine", "refine", s.refine(session.ModeReview))
	r("POST /api/review/discuss", "discuss", s.discuss(session.ModeReview))
	r("POST /api/review/clone", "clone", s.clone(session.ModeReview))
	r("POST /api/review/use-local", "use_local", s.useLocal(session.ModeReview))
	r("POST /api/review/pick-folder", "pick_folder", s.pickFolder)
	r("POST /api/review/run", "run", s.reviewRun)
	r("GET /api/review/findings", "findings", s.findings)
	r("POST /api/review/comments", "comments", s.postComments)
	r("GET /api/review/state", "state", s.state(session.ModeReview))
	r("POST /api/review/reset", "reset", s.reset(session.ModeReview))

	s.mux.Handle("POST /api/session", s.route("session.new", s.newSession))
	s.mux.Handle("GET /healthz", s.route("healthz", s.healthz))
	s.mux.Handle("GET /metrics", metrics.Handler())
}

type sessionKey struct{}

// sessionID returns the session resolved by the route middleware.
func sessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionKey{}).(string); ok {
		return id
	}
	return session.DefaultID
}

// route wraps h with request logging, session resolution and metrics.
func (s *Server) route(name string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		sid, sidErr := resolveSessionID(r)

		logger := clog.New(s.logger.Handler()).With("request_id", requestID, "route", name, "session", sid)
		ctx := clog.WithLogger(r.Context(), logger)
		ctx = context.WithValue(ctx, sessionKey{}, sid)
		r = r.WithContext(ctx)

		sw := &statusWriter{ResponseWriter: w}
		if sidErr != nil {
			s.writeError(sw, r, sidErr)
		} else {
			h(sw, r)
		}

		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		metrics.ObserveHTTP(name, status, elapsed)
		s.logDebug(ctx, "request completed", "method", r.Method, "status", status, "duration", elapsed)
	})
}

// statusWriter records the response status. It forwards Flush so event
// streams work through it.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// newSession issues a fresh session id and sets it as a cookie.
func (s *Server) newSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusCreated, map[string]string{"sessionId": id})
}

func configured[T comparable](v T, field, message string) error {
	var zero T
	if v == zero {
		return shiperrors.NewConfigError(field, message)
	}
	return nil
}
