package ai

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	shiperrors "thoreinstein.com/shipwright/pkg/errors"
)

const geminiDefaultModel = "googleai/gemini-2.5-flash"

// GeminiProvider implements Provider through Genkit's Google AI plugin.
type GeminiProvider struct {
	apiKey    string
	modelName string
	logger    *slog.Logger

	initOnce sync.Once
	model    ai.Model
	initErr  error
}

// NewGeminiProvider creates a new Gemini provider. The Genkit runtime is
// initialized lazily on first use.
func NewGeminiProvider(apiKey, modelName string, logger *slog.Logger) *GeminiProvider {
	if modelName == "" {
		modelName = geminiDefaultModel
	}
	if !strings.Contains(modelName, "/") {
		modelName = "googleai/" + modelName
	}
	return &GeminiProvider{
		apiKey:    apiKey,
		modelName: modelName,
		logger:    logger,
	}
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return ProviderGemini
}

// IsAvailable checks if the provider is configured.
func (p *GeminiProvider) IsAvailable() bool {
	return p.apiKey != ""
}

func (p *GeminiProvider) init(ctx context.Context) error {
	p.initOnce.Do(func() {
		if p.model != nil {
			return
		}
		if p.apiKey == "" {
			p.initErr = shiperrors.NewAIError(ProviderGemini, "init", "API key not set")
			return
		}

		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{APIKey: p.apiKey}))
		p.model = googlegenai.GoogleAIModel(g, p.modelName)
		if p.model == nil {
			p.initErr = shiperrors.NewAIError(ProviderGemini, "init", "unknown model: "+p.modelName)
			return
		}

		logDebug(p.logger, "gemini provider initialized", "model", p.modelName)
	})

	return p.initErr
}

// Chat performs a single-turn chat completion.
func (p *GeminiProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	if err := p.init(ctx); err != nil {
		return nil, err
	}

	resp, err := p.model.Generate(ctx, &ai.ModelRequest{Messages: toGenkitMessages(messages)}, nil)
	if err != nil {
		return nil, shiperrors.NewAIErrorWithCause(ProviderGemini, "Chat", "genkit generate failed", err)
	}
	if resp.Message == nil {
		return nil, shiperrors.NewAIError(ProviderGemini, "Chat", "received empty response from gemini")
	}

	res := &Response{
		Content:    textOf(resp.Message.Content),
		StopReason: string(resp.FinishReason),
	}
	if resp.Usage != nil {
		res.InputTokens = resp.Usage.InputTokens
		res.OutputTokens = resp.Usage.OutputTokens
	}
	return res, nil
}

// StreamChat performs a streaming chat completion.
func (p *GeminiProvider) StreamChat(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	if err := p.init(ctx); err != nil {
		return nil, err
	}

	req := &ai.ModelRequest{Messages: toGenkitMessages(messages)}
	chunks := make(chan StreamChunk)

	go func() {
		defer close(chunks)

		_, err := p.model.Generate(ctx, req, func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			if text := textOf(chunk.Content); text != "" {
				if !send(ctx, chunks, StreamChunk{Content: text}) {
					return ctx.Err()
				}
			}
			return nil
		})
		if err != nil {
			send(ctx, chunks, StreamChunk{
				Error: shiperrors.NewAIErrorWithCause(ProviderGemini, "StreamChat", "genkit generate failed", err),
				Done:  true,
			})
			return
		}

		send(ctx, chunks, StreamChunk{Done: true})
	}()

	return chunks, nil
}

func toGenkitMessages(messages []Message) []*ai.Message {
	out := make([]*ai.Message, len(messages))
	for i, m := range messages {
		role := ai.RoleUser
		switch m.Role {
		case RoleSystem:
			role = ai.RoleSystem
		case RoleAssistant:
			role = ai.RoleModel
		}
		out[i] = &ai.Message{
			Role:    role,
			Content: []*ai.Part{ai.NewTextPart(m.Content)},
		}
	}
	return out
}

func textOf(parts []*ai.Part) string {
	var b strings.Builder
	for _, part := range parts {
		if part.IsText() {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
