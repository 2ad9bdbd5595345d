package server

import (
	"context"
	"net/http"

	"github.com/chainguard-dev/clog"

	"thoreinstein.com/shipwright/pkg/agent"
	"thoreinstein.com/shipwright/pkg/session"
	"thoreinstein.com/shipwright/pkg/sse"
)

// streamFunc does the work of a streamed operation. A non-nil result is
// sent as the result event.
type streamFunc func(ctx context.Context, out *sse.Writer) (any, error)

// exclusive marks the session busy with op while fn runs. A session that
// is already busy gets a 409 before fn is called.
func (s *Server) exclusive(w http.ResponseWriter, r *http.Request, mode session.Mode, op string, fn func() error) {
	release, err := s.deps.Sessions.Begin(mode, sessionID(r.Context()), op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer release()

	if err := fn(); err != nil {
		s.writeError(w, r, err)
	}
}

// stream runs fn as a long operation reported over Server-Sent Events.
// Failures after the stream has started are sent as an error event; the
// stream always ends with done.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, mode session.Mode, op string, fn streamFunc) {
	ctx := r.Context()

	release, err := s.deps.Sessions.Begin(mode, sessionID(ctx), op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer release()

	out, err := sse.NewWriter(w)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	log := clog.FromContext(ctx)
	log.Info("operation started", "operation", op, "mode", mode)

	result, err := fn(ctx, out)
	switch {
	case err != nil:
		log.Error("operation failed", "operation", op, "error", err)
		_ = out.Error(errorMessage(err))
	case result != nil:
		_ = out.Result(result)
	}
	_ = out.Done()
}

// forward relays agent events to the stream until the run ends. The
// final result and any error are read from run.Wait by the caller.
func forward(run *agent.Session, out *sse.Writer) {
	for ev := range run.Events() {
		switch ev.Type {
		case agent.EventStatus:
			_ = out.Status(ev.Text)
		case agent.EventDelta:
			_ = out.Delta(ev.Text)
		case agent.EventTool:
			_ = out.Tool(ev.Tool, ev.Phase, ev.Detail)
		}
	}
}
