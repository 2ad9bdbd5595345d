// Package planner generates, refines and discusses implementation plans
// for work items and review plans for pull requests.
package planner

import (
	"context"
	"log/slog"
	"strings"

	"thoreinstein.com/shipwright/pkg/ai"
	shiperrors "thoreinstein.com/shipwright/pkg/errors"
)

// MaxDiscussionMessages caps the discussion history kept per plan.
const MaxDiscussionMessages = 20

// Kind selects the planning prompt.
type Kind string

const (
	KindTicket Kind = "ticket"
	KindReview Kind = "review"
)

// Request is the subject of a plan. Subject comes from TicketSubject or
// PullRequestSubject; Guidance is rendered repository instructions.
type Request struct {
	Kind     Kind
	Subject  string
	Guidance string
}

func (r Request) system() string {
	if r.Kind == KindReview {
		return systemPrompt(SystemPromptReview, r.Guidance)
	}
	return systemPrompt(SystemPromptTicket, r.Guidance)
}

// Planner drives plan generation through an AI provider.
type Planner struct {
	provider ai.Provider
	verbose  bool
	logger   *slog.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets a custom logger for the planner.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		p.logger = logger
	}
}

// New creates a Planner.
func New(provider ai.Provider, verbose bool, opts ...Option) *Planner {
	p := &Planner{
		provider: provider,
		verbose:  verbose,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Planner) logDebug(msg string, args ...any) {
	if p.verbose {
		p.logger.Debug(msg, args...)
	}
}

func (p *Planner) stream(ctx context.Context, messages []ai.Message, onDelta func(string)) (string, error) {
	if !p.provider.IsAvailable() {
		return "", shiperrors.NewAIError(p.provider.Name(), "StreamChat", "provider not configured")
	}
	chunks, err := p.provider.StreamChat(ctx, messages)
	if err != nil {
		return "", err
	}
	return ai.Collect(ctx, chunks, onDelta)
}

// Generate writes a first plan, streaming text to onDelta as it arrives.
func (p *Planner) Generate(ctx context.Context, req Request, onDelta func(string)) (*Plan, error) {
	if strings.TrimSpace(req.Subject) == "" {
		return nil, shiperrors.NewWorkflowError("plan", "nothing to plan: fetch a work item or pull request first")
	}

	p.logDebug("generating plan", "kind", req.Kind, "provider", p.provider.Name())

	text, err := p.stream(ctx, []ai.Message{
		{Role: ai.RoleSystem, Content: req.system()},
		{Role: ai.RoleUser, Content: buildGeneratePrompt(req)},
	}, onDelta)
	if err != nil {
		return nil, shiperrors.Wrap(err, "failed to generate plan")
	}

	plan := ParsePlan(text)
	plan.Revision = 1
	return &plan, nil
}

// Refine rewrites current according to feedback.
func (p *Planner) Refine(ctx context.Context, req Request, current *Plan, feedback string, onDelta func(string)) (*Plan, error) {
	if current == nil || current.Raw == "" {
		return nil, shiperrors.NewWorkflowError("refine", "no plan to refine: generate a plan first")
	}
	if strings.TrimSpace(feedback) == "" {
		return nil, shiperrors.NewValidationError("feedback", "feedback is required")
	}

	p.logDebug("refining plan", "kind", req.Kind, "revision", current.Revision)

	text, err := p.stream(ctx, []ai.Message{
		{Role: ai.RoleSystem, Content: req.system()},
		{Role: ai.RoleUser, Content: buildRefinePrompt(req, current, feedback)},
	}, onDelta)
	if err != nil {
		return nil, shiperrors.Wrap(err, "failed to refine plan")
	}

	plan := ParsePlan(text)
	plan.Revision = current.Revision + 1
	return &plan, nil
}

// Discuss answers message in the context of plan and the prior history.
// It returns the reply and the updated history, capped at the last
// MaxDiscussionMessages entries.
func (p *Planner) Discuss(ctx context.Context, req Request, plan *Plan, history []ai.Message, message string, onDelta func(string)) (string, []ai.Message, error) {
	if strings.TrimSpace(message) == "" {
		return "", history, shiperrors.NewValidationError("message", "message is required")
	}
	if !p.provider.IsAvailable() {
		return "", history, shiperrors.NewAIError(p.provider.Name(), "StreamChat", "provider not configured")
	}

	var sb strings.Builder
	sb.WriteString(req.system())
	sb.WriteString("\n\n")
	sb.WriteString(SystemPromptDiscuss)
	sb.WriteString("\n\n")
	sb.WriteString(req.Subject)
	if plan != nil && plan.Raw != "" {
		sb.WriteString("## Current Plan\n")
		sb.WriteString(plan.Raw)
		sb.WriteString("\n")
	}

	conv := ai.NewConversation(p.provider, sb.String()).
		WithHistory(history).
		WithLimit(MaxDiscussionMessages)
	conv.AddUserMessage(message)

	reply, err := conv.Stream(ctx, onDelta)
	if err != nil {
		return "", history, shiperrors.Wrap(err, "discussion failed")
	}
	return reply, conv.History(), nil
}
