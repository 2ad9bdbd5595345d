package server

import (
	"net/http"

	"thoreinstein.com/shipwright/pkg/instructions"
	"thoreinstein.com/shipwright/pkg/session"
)

type instructionsResponse struct {
	Instructions []instructions.Instruction `json:"instructions"`
	Skills       []instructions.Skill       `json:"skills"`
	SharedPath   string                     `json:"sharedPath,omitempty"`
}

type saveInstructionRequest struct {
	Content string `json:"content"`
}

// ticketWorkspacePath returns the open ticket workspace, or "" when none
// is open and only shared instructions are visible.
func (s *Server) ticketWorkspacePath(r *http.Request) (string, error) {
	ctx := r.Context()
	sess, err := s.deps.Sessions.Load(ctx, session.ModeTicket, sessionID(ctx))
	if err != nil {
		return "", err
	}
	if sess.Workspace == nil {
		return "", nil
	}
	return sess.Workspace.Path, nil
}

func (s *Server) needLibrary() error {
	return configured(s.deps.Library, "instructions", "instruction management is not available")
}

func (s *Server) listInstructions(w http.ResponseWriter, r *http.Request) {
	if err := s.needLibrary(); err != nil {
		s.writeError(w, r, err)
		return
	}
	ws, err := s.ticketWorkspacePath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	insts, err := s.deps.Library.List(ws)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	skills, err := s.deps.Library.Skills(ws)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := instructionsResponse{
		Instructions: insts,
		Skills:       skills,
		SharedPath:   s.deps.Library.SharedPath(),
	}
	if resp.Instructions == nil {
		resp.Instructions = []instructions.Instruction{}
	}
	if resp.Skills == nil {
		resp.Skills = []instructions.Skill{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getInstruction(w http.ResponseWriter, r *http.Request) {
	if err := s.needLibrary(); err != nil {
		s.writeError(w, r, err)
		return
	}
	ws, err := s.ticketWorkspacePath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	inst, err := s.deps.Library.Get(ws, r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) saveInstruction(w http.ResponseWriter, r *http.Request) {
	if err := s.needLibrary(); err != nil {
		s.writeError(w, r, err)
		return
	}
	var body saveInstructionRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	ws, err := s.ticketWorkspacePath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	inst, err := s.deps.Library.Save(ws, r.PathValue("name"), body.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) deleteInstruction(w http.ResponseWriter, r *http.Request) {
	if err := s.needLibrary(); err != nil {
		s.writeError(w, r, err)
		return
	}
	ws, err := s.ticketWorkspacePath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.deps.Library.Delete(ws, r.PathValue("name")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) syncInstructions(w http.ResponseWriter, r *http.Request) {
	if err := s.needLibrary(); err != nil {
		s.writeError(w, r, err)
		return
	}

	path, err := s.deps.Library.SyncShared(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}
