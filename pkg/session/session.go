// Package session holds per-client workflow state: the fetched work item
// or pull request, the plan and its discussion, the workspace, and review
// findings. Ticket and review flows keep separate state per session id.
package session

import (
	"context"
	"time"

	"thoreinstein.com/shipwright/pkg/ado"
	"thoreinstein.com/shipwright/pkg/ai"
	"thoreinstein.com/shipwright/pkg/git"
	"thoreinstein.com/shipwright/pkg/hosting"
	"thoreinstein.com/shipwright/pkg/planner"
	"thoreinstein.com/shipwright/pkg/review"
)

// DefaultID is used when a request carries no session id.
const DefaultID = "default"

// MaxDiscussion caps the stored discussion history.
const MaxDiscussion = planner.MaxDiscussionMessages

// Mode separates ticket and review state.
type Mode string

const (
	ModeTicket Mode = "ticket"
	ModeReview Mode = "review"
)

// Session is the state of one flow for one client.
type Session struct {
	ID          string               `json:"id"`
	Mode        Mode                 `json:"mode"`
	Ticket      *ado.WorkItem        `json:"ticket,omitempty"`
	PullRequest *hosting.PullRequest `json:"pullRequest,omitempty"`
	Comments    []hosting.Comment    `json:"existingComments,omitempty"`
	Plan        *planner.Plan        `json:"plan,omitempty"`
	Discussion  []ai.Message         `json:"discussion"`
	Workspace   *git.Workspace       `json:"workspace,omitempty"`
	Findings    []review.Finding     `json:"findings,omitempty"`
	Transcript  string               `json:"transcript,omitempty"`
	Steps       []string             `json:"completedSteps"`
	LastCommit  string               `json:"lastCommit,omitempty"`
	CreatedPR   *hosting.PullRequest `json:"createdPullRequest,omitempty"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

// New returns an empty session.
func New(mode Mode, id string) *Session {
	return &Session{
		ID:         id,
		Mode:       mode,
		Discussion: []ai.Message{},
		Steps:      []string{},
	}
}

// Key identifies the session in a Store.
func (s *Session) Key() string {
	return Key(s.Mode, s.ID)
}

// Key builds a store key.
func Key(mode Mode, id string) string {
	return string(mode) + ":" + id
}

// AppendDiscussion adds messages and drops the oldest beyond MaxDiscussion.
func (s *Session) AppendDiscussion(msgs ...ai.Message) {
	s.Discussion = append(s.Discussion, msgs...)
	if len(s.Discussion) > MaxDiscussion {
		s.Discussion = append([]ai.Message(nil), s.Discussion[len(s.Discussion)-MaxDiscussion:]...)
	}
}

// SetDiscussion replaces the history, keeping only the newest MaxDiscussion.
func (s *Session) SetDiscussion(msgs []ai.Message) {
	s.Discussion = nil
	s.AppendDiscussion(msgs...)
	if s.Discussion == nil {
		s.Discussion = []ai.Message{}
	}
}

// MarkStep records a completed workflow step once.
func (s *Session) MarkStep(step string) {
	for _, done := range s.Steps {
		if done == step {
			return
		}
	}
	s.Steps = append(s.Steps, step)
}

// SetPlan stores a new plan. A first plan (revision 1) resets the
// discussion.
func (s *Session) SetPlan(p *planner.Plan) {
	if p != nil && p.Revision <= 1 {
		s.Discussion = []ai.Message{}
	}
	s.Plan = p
}

// Store persists sessions.
type Store interface {
	// Get returns the stored session or nil when there is none.
	Get(ctx context.Context, key string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, key string) error
	Count(ctx context.Context) (int, error)
	Close() error
}
