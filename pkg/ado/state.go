package ado

import "strings"

// WorkflowPhase is the coarse phase of a work item, independent of the
// process template (Agile, Scrum, Basic, CMMI) that named its states.
type WorkflowPhase string

const (
	PhaseNotStarted WorkflowPhase = "not_started"
	PhaseInProgress WorkflowPhase = "in_progress"
	PhaseInReview   WorkflowPhase = "in_review"
	PhaseDone       WorkflowPhase = "done"
)

var stateToPhaseMap = map[string]WorkflowPhase{
	"new":      PhaseNotStarted,
	"to do":    PhaseNotStarted,
	"proposed": PhaseNotStarted,
	"approved": PhaseNotStarted,
	"ready":    PhaseNotStarted,

	"active":      PhaseInProgress,
	"committed":   PhaseInProgress,
	"doing":       PhaseInProgress,
	"in progress": PhaseInProgress,

	"resolved":  PhaseInReview,
	"in review": PhaseInReview,
	"testing":   PhaseInReview,

	"closed":  PhaseDone,
	"done":    PhaseDone,
	"removed": PhaseDone,
}

// MapStateToPhase maps a work item state to a workflow phase.
// Unknown states fall back to keyword matching, then PhaseNotStarted.
func MapStateToPhase(state string) WorkflowPhase {
	s := strings.ToLower(strings.TrimSpace(state))

	if phase, ok := stateToPhaseMap[s]; ok {
		return phase
	}

	switch {
	case strings.Contains(s, "progress") || strings.Contains(s, "dev"):
		return PhaseInProgress
	case strings.Contains(s, "review") || strings.Contains(s, "test") || strings.Contains(s, "qa"):
		return PhaseInReview
	case strings.Contains(s, "done") || strings.Contains(s, "close") || strings.Contains(s, "resolv"):
		return PhaseDone
	default:
		return PhaseNotStarted
	}
}
