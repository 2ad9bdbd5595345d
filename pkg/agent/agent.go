// Package agent runs the coding agent: a streaming Anthropic Messages
// tool-use loop that edits a workspace through a fixed set of tools and
// reports progress as a stream of events.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"thoreinstein.com/shipwright/pkg/config"
	shiperrors "thoreinstein.com/shipwright/pkg/errors"
)

const (
	DefaultModel          = "claude-sonnet-4-20250514"
	DefaultMaxTokens      = 8192
	DefaultMaxTurns       = 50
	DefaultTimeout        = 600 * time.Second
	DefaultCommandTimeout = 300 * time.Second
)

// EventType names an agent progress event. The values double as SSE
// event names.
type EventType string

const (
	EventStatus EventType = "status"
	EventDelta  EventType = "delta"
	EventTool   EventType = "tool"
	EventResult EventType = "result"
	EventError  EventType = "error"
)

// Tool phases.
const (
	PhaseStart  = "start"
	PhaseFinish = "finish"
	PhaseFailed = "error"
)

// Event is one progress notification from a running session.
type Event struct {
	Type   EventType
	Text   string
	Tool   string
	Phase  string
	Detail string
	Result *Result
	Err    error
}

// Result summarizes a finished run.
type Result struct {
	Summary      string   `json:"summary"`
	Turns        int      `json:"turns"`
	ToolCalls    int      `json:"toolCalls"`
	FilesWritten []string `json:"filesWritten"`
	InputTokens  int64    `json:"inputTokens"`
	OutputTokens int64    `json:"outputTokens"`
}

// Task is a single unit of work for the agent.
type Task struct {
	Workspace    string
	SystemPrompt string
	Prompt       string

	// ReadOnly withholds write_file, for reviews.
	ReadOnly bool
}

// Runner starts agent sessions.
type Runner struct {
	client          anthropic.Client
	model           string
	maxTokens       int64
	maxTurns        int
	timeout         time.Duration
	commandTimeout  time.Duration
	allowedCommands []string
	requestOptions  []option.RequestOption
	verbose         bool
	logger          *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets a custom logger for the runner.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithBaseURL points the Anthropic client at a different API host.
func WithBaseURL(url string) Option {
	return func(r *Runner) {
		if url != "" {
			r.requestOptions = append(r.requestOptions, option.WithBaseURL(url))
		}
	}
}

// WithRequestOptions appends raw SDK request options.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(r *Runner) {
		r.requestOptions = append(r.requestOptions, opts...)
	}
}

// WithTimeout overrides the overall run timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New creates a Runner. The Anthropic API key comes from cfg.APIKey.
func New(cfg config.AgentConfig, verbose bool, opts ...Option) (*Runner, error) {
	if cfg.APIKey == "" {
		return nil, shiperrors.NewConfigError("agent.api_key", "ANTHROPIC_API_KEY is required to run the coding agent")
	}

	r := &Runner{
		model:           cfg.Model,
		maxTokens:       int64(cfg.MaxTokens),
		maxTurns:        cfg.MaxTurns,
		timeout:         cfg.Timeout,
		commandTimeout:  cfg.CommandTimeout,
		allowedCommands: cfg.AllowedCommands,
		verbose:         verbose,
		logger:          slog.Default(),
	}
	if r.model == "" {
		r.model = DefaultModel
	}
	if r.maxTokens <= 0 {
		r.maxTokens = DefaultMaxTokens
	}
	if r.maxTurns <= 0 {
		r.maxTurns = DefaultMaxTurns
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.commandTimeout <= 0 {
		r.commandTimeout = DefaultCommandTimeout
	}

	for _, opt := range opts {
		opt(r)
	}

	r.client = anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, r.requestOptions...)...)
	return r, nil
}

func (r *Runner) logDebug(msg string, args ...any) {
	if r.verbose {
		r.logger.Debug(msg, args...)
	}
}

// Session is a running agent. Callers must drain Events until it is
// closed, or cancel the context passed to Start.
type Session struct {
	events chan Event
	done   chan struct{}
	result *Result
	err    error
}

// Events returns the progress stream. It is closed when the run ends.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Wait blocks until the run ends and returns its outcome.
func (s *Session) Wait() (*Result, error) {
	<-s.done
	return s.result, s.err
}

func (s *Session) emit(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// Start launches the agent on task. The run stops when ctx is cancelled,
// the runner timeout elapses or the model stops calling tools.
func (r *Runner) Start(ctx context.Context, task Task) *Session {
	s := &Session{
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer close(s.events)
		s.result, s.err = r.run(ctx, task, s.emit)
		if s.err != nil {
			s.emit(ctx, Event{Type: EventError, Err: s.err})
		}
	}()

	return s
}
