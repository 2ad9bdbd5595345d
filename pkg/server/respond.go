package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/cockroachdb/errors"

	shiperrors "thoreinstein.com/shipwright/pkg/errors"
	"thoreinstein.com/shipwright/pkg/session"
)

// maxBodyBytes bounds request bodies; instruction files are the largest.
const maxBodyBytes = 1 << 20

var sessionIDRe = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

type errorBody struct {
	Error string `json:"error"`
}

// resolveSessionID picks the session from the header, then the cookie.
func resolveSessionID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(SessionHeader))
	if id == "" {
		if c, err := r.Cookie(SessionCookie); err == nil {
			id = strings.TrimSpace(c.Value)
		}
	}
	if id == "" {
		return session.DefaultID, nil
	}
	if !sessionIDRe.MatchString(id) {
		return session.DefaultID, shiperrors.NewValidationError("session", "session id may only contain letters, digits, '.', '_' and '-'")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// errorMessage is the text shown to the user for err.
func errorMessage(err error) string {
	return strings.TrimSpace(shiperrors.FormatUserError(err))
}

// writeError reports err as {"error": message} with the status from
// shiperrors.HTTPStatus. Server-side failures are logged at error level.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := shiperrors.HTTPStatus(err)
	log := clog.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "status", status, "error", err)
	} else {
		log.Info("request rejected", "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: errorMessage(err)})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return shiperrors.NewValidationError("body", "request body is too large")
	}
	return shiperrors.NewValidationError("body", "invalid JSON: "+err.Error())
}
