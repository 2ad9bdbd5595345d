package ai

import (
	"context"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"

	shiperrors "thoreinstein.com/shipwright/pkg/errors"
)

const (
	anthropicDefaultModel = "claude-sonnet-4-20250514"
	anthropicMaxTokens    = 4096
)

// AnthropicProvider implements Provider on the Anthropic Messages API.
type AnthropicProvider struct {
	apiKey  string
	model   string
	logger  *slog.Logger
	client  anthropic.Client
	options []option.RequestOption
}

// AnthropicOption configures an AnthropicProvider.
type AnthropicOption func(*AnthropicProvider)

// WithAnthropicBaseURL points the client at a different API host. An empty
// url keeps the default.
func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(p *AnthropicProvider) {
		if url != "" {
			p.options = append(p.options, option.WithBaseURL(url))
		}
	}
}

// WithAnthropicRequestOptions appends raw SDK request options.
func WithAnthropicRequestOptions(opts ...option.RequestOption) AnthropicOption {
	return func(p *AnthropicProvider) {
		p.options = append(p.options, opts...)
	}
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey, model string, logger *slog.Logger, opts ...AnthropicOption) *AnthropicProvider {
	if model == "" {
		model = anthropicDefaultModel
	}
	p := &AnthropicProvider{
		apiKey: apiKey,
		model:  model,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.client = anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, p.options...)...)
	return p
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return ProviderAnthropic
}

// IsAvailable checks if the provider is configured and ready.
func (p *AnthropicProvider) IsAvailable() bool {
	return p.apiKey != ""
}

func (p *AnthropicProvider) params(messages []Message) anthropic.MessageNewParams {
	system, turns := splitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: anthropicMaxTokens,
		Messages:  make([]anthropic.MessageParam, 0, len(turns)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	for _, m := range turns {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	return params
}

// Chat performs a single-turn chat completion.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	if !p.IsAvailable() {
		return nil, shiperrors.NewAIError(ProviderAnthropic, "Chat", "provider not configured")
	}

	params := p.params(messages)
	logDebug(p.logger, "sending chat request", "model", p.model, "message_count", len(params.Messages))

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, anthropicError("Chat", err)
	}

	var content strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	logDebug(p.logger, "received response",
		"stop_reason", msg.StopReason,
		"input_tokens", msg.Usage.InputTokens,
		"output_tokens", msg.Usage.OutputTokens)

	return &Response{
		Content:      content.String(),
		StopReason:   string(msg.StopReason),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

// StreamChat performs a streaming chat completion.
func (p *AnthropicProvider) StreamChat(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	if !p.IsAvailable() {
		return nil, shiperrors.NewAIError(ProviderAnthropic, "StreamChat", "provider not configured")
	}

	params := p.params(messages)
	logDebug(p.logger, "sending streaming chat request", "model", p.model, "message_count", len(params.Messages))

	stream := p.client.Messages.NewStreaming(ctx, params)
	chunks := make(chan StreamChunk)

	go func() {
		defer close(chunks)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
				if !send(ctx, chunks, StreamChunk{Content: text.Text}) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			} else {
				err = anthropicError("StreamChat", err)
			}
			send(ctx, chunks, StreamChunk{Error: err, Done: true})
			return
		}

		send(ctx, chunks, StreamChunk{Done: true})
	}()

	return chunks, nil
}

// anthropicError converts SDK errors into AIError, keeping the HTTP status
// so 429/5xx stay retryable.
func anthropicError(operation string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		aiErr := shiperrors.NewAIErrorWithStatus(ProviderAnthropic, operation, apiErr.StatusCode, apiErr.Error())
		if apiErr.StatusCode == 529 {
			aiErr.Retryable = true
		}
		aiErr.Cause = err
		return aiErr
	}
	return shiperrors.NewAIErrorWithCause(ProviderAnthropic, operation, "request failed", err)
}
