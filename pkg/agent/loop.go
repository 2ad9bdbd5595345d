package agent

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cockroachdb/errors"

	shiperrors "thoreinstein.com/shipwright/pkg/errors"
	"thoreinstein.com/shipwright/pkg/metrics"
)

type emitFunc func(context.Context, Event)

func (r *Runner) run(parent context.Context, task Task, emit emitFunc) (*Result, error) {
	if task.Workspace == "" {
		return nil, shiperrors.NewValidationError("workspace", "no workspace is open")
	}
	if strings.TrimSpace(task.Prompt) == "" {
		return nil, shiperrors.NewValidationError("prompt", "the agent needs a prompt")
	}

	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	tools := NewToolbox(task.Workspace, r.allowedCommands, r.commandTimeout)
	tools.readOnly = task.ReadOnly
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: r.maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(task.Prompt))},
		Tools:     tools.Definitions(),
	}
	if task.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: task.SystemPrompt}}
	}

	r.logger.Info("starting agent run", "workspace", task.Workspace, "model", r.model, "timeout", r.timeout)
	emit(ctx, Event{Type: EventStatus, Text: "Agent started in " + task.Workspace})

	result := &Result{}
	for turn := 1; ; turn++ {
		if turn > r.maxTurns {
			metrics.AgentRun("max_turns")
			return result, &shiperrors.AgentError{
				Phase:   "max_turns",
				Message: "the agent did not finish within the turn limit",
			}
		}
		result.Turns = turn

		message, err := r.stream(ctx, params, emit)
		if err != nil {
			return result, r.runError(parent, ctx, err)
		}

		result.InputTokens += message.Usage.InputTokens
		result.OutputTokens += message.Usage.OutputTokens
		metrics.Tokens(message.Usage.InputTokens, message.Usage.OutputTokens)

		var text strings.Builder
		var toolUses []anthropic.ToolUseBlock
		for _, content := range message.Content {
			switch content.Type {
			case "text":
				text.WriteString(content.Text)
			case "tool_use":
				toolUses = append(toolUses, anthropic.ToolUseBlock{
					ID:    content.ID,
					Name:  content.Name,
					Input: content.Input,
				})
			}
		}

		r.logDebug("agent turn complete", "turn", turn, "tool_calls", len(toolUses), "stop_reason", message.StopReason)

		if len(toolUses) == 0 {
			result.Summary = strings.TrimSpace(text.String())
			result.FilesWritten = tools.Written()
			metrics.AgentRun("success")
			r.logger.Info("agent run finished",
				"turns", result.Turns,
				"tool_calls", result.ToolCalls,
				"files_written", len(result.FilesWritten))
			emit(ctx, Event{Type: EventResult, Result: result})
			return result, nil
		}

		params.Messages = append(params.Messages, message.ToParam())

		results := make([]anthropic.ContentBlockParamUnion, 0, len(toolUses))
		for _, use := range toolUses {
			result.ToolCalls++
			results = append(results, r.callTool(ctx, tools, use, emit))
		}
		if ctx.Err() != nil {
			return result, r.runError(parent, ctx, ctx.Err())
		}

		params.Messages = append(params.Messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRoleUser,
			Content: results,
		})
	}
}

// stream sends one request and forwards text deltas while accumulating
// the full assistant message.
func (r *Runner) stream(ctx context.Context, params anthropic.MessageNewParams, emit emitFunc) (anthropic.Message, error) {
	stream := r.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var msg anthropic.Message
	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return msg, errors.Wrap(err, "failed to accumulate event")
		}
		delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
			emit(ctx, Event{Type: EventDelta, Text: text.Text})
		}
	}
	return msg, stream.Err()
}

func (r *Runner) callTool(ctx context.Context, tools *Toolbox, use anthropic.ToolUseBlock, emit emitFunc) anthropic.ContentBlockParamUnion {
	detail := Detail(use.Name, use.Input)
	emit(ctx, Event{Type: EventTool, Tool: use.Name, Phase: PhaseStart, Detail: detail})

	out, err := tools.Call(ctx, use.Name, use.Input)
	metrics.ToolCall(use.Name, err != nil)

	block := &anthropic.ToolResultBlockParam{ToolUseID: use.ID}
	if err != nil {
		r.logger.Warn("tool call failed", "tool", use.Name, "detail", detail, "error", err)
		emit(ctx, Event{Type: EventTool, Tool: use.Name, Phase: PhaseFailed, Detail: err.Error()})
		block.IsError = anthropic.Bool(true)
		out = strings.TrimSpace(out + "\n" + err.Error())
	} else {
		emit(ctx, Event{Type: EventTool, Tool: use.Name, Phase: PhaseFinish, Detail: detail})
	}

	block.Content = []anthropic.ToolResultBlockParamContentUnion{{
		OfText: &anthropic.TextBlockParam{Text: out},
	}}
	return anthropic.ContentBlockParamUnion{OfToolResult: block}
}

// runError classifies a failed request: caller cancellation, the run
// timeout, or an API failure.
func (r *Runner) runError(parent, ctx context.Context, err error) error {
	switch {
	case parent.Err() != nil:
		metrics.AgentRun("cancelled")
		return &shiperrors.AgentError{Phase: "cancelled", Message: "the request was cancelled", Cause: parent.Err()}
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		metrics.AgentRun("timeout")
		return &shiperrors.AgentError{
			Phase:   "timeout",
			Message: "the agent did not finish within " + r.timeout.String(),
			Cause:   ctx.Err(),
		}
	}

	metrics.AgentRun("error")
	agentErr := &shiperrors.AgentError{Phase: "stream", Message: "request to the model failed", Cause: err}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		agentErr.Message = apiErr.Error()
	}
	return agentErr
}
