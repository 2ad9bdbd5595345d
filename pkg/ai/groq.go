package ai

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	shiperrors "thoreinstein.com/shipwright/pkg/errors"
)

const (
	groqBaseURL      = "https://api.groq.com/openai/v1/"
	groqDefaultModel = "llama-3.3-70b-versatile"
	groqMaxTokens    = 4096
)

// GroqProvider implements Provider for Groq's OpenAI-compatible API.
type GroqProvider struct {
	apiKey  string
	model   string
	baseURL string
	logger  *slog.Logger
	client  openai.Client
}

// GroqOption configures a GroqProvider.
type GroqOption func(*GroqProvider)

// WithGroqBaseURL overrides the API base URL. An empty url keeps the
// default.
func WithGroqBaseURL(url string) GroqOption {
	return func(p *GroqProvider) {
		if url != "" {
			p.baseURL = url
		}
	}
}

// NewGroqProvider creates a new Groq provider.
func NewGroqProvider(apiKey, model string, logger *slog.Logger, opts ...GroqOption) *GroqProvider {
	if model == "" {
		model = groqDefaultModel
	}
	p := &GroqProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: groqBaseURL,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.client = openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(p.baseURL),
	)
	return p
}

// Name returns the provider name.
func (p *GroqProvider) Name() string {
	return ProviderGroq
}

// IsAvailable checks if the provider is configured and ready.
func (p *GroqProvider) IsAvailable() bool {
	return p.apiKey != ""
}

func (p *GroqProvider) params(messages []Message) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(p.model),
		MaxTokens: openai.Int(groqMaxTokens),
		Messages:  make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}
	return params
}

// Chat performs a single-turn chat completion.
func (p *GroqProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	if !p.IsAvailable() {
		return nil, shiperrors.NewAIError(ProviderGroq, "Chat", "provider not configured")
	}

	logDebug(p.logger, "sending chat request", "model", p.model, "message_count", len(messages))

	completion, err := p.client.Chat.Completions.New(ctx, p.params(messages))
	if err != nil {
		return nil, groqError("Chat", err)
	}
	if len(completion.Choices) == 0 {
		return nil, shiperrors.NewAIError(ProviderGroq, "Chat", "no choices in response")
	}

	choice := completion.Choices[0]
	return &Response{
		Content:      choice.Message.Content,
		StopReason:   choice.FinishReason,
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
	}, nil
}

// StreamChat performs a streaming chat completion.
func (p *GroqProvider) StreamChat(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	if !p.IsAvailable() {
		return nil, shiperrors.NewAIError(ProviderGroq, "StreamChat", "provider not configured")
	}

	logDebug(p.logger, "sending streaming chat request", "model", p.model, "message_count", len(messages))

	stream := p.client.Chat.Completions.NewStreaming(ctx, p.params(messages))
	chunks := make(chan StreamChunk)

	go func() {
		defer close(chunks)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if text := chunk.Choices[0].Delta.Content; text != "" {
				if !send(ctx, chunks, StreamChunk{Content: text}) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			} else {
				err = groqError("StreamChat", err)
			}
			send(ctx, chunks, StreamChunk{Error: err, Done: true})
			return
		}

		send(ctx, chunks, StreamChunk{Done: true})
	}()

	return chunks, nil
}

func groqError(operation string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		aiErr := shiperrors.NewAIErrorWithStatus(ProviderGroq, operation, apiErr.StatusCode, apiErr.Message)
		aiErr.Cause = err
		return aiErr
	}
	return shiperrors.NewAIErrorWithCause(ProviderGroq, operation, "request failed", err)
}
