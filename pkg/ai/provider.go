// Package ai provides the chat providers used for planning, refinement and
// discussion.
//
// Every provider implements the same small interface so the planner does
// not care whether a plan comes from Claude, a Groq-hosted model, a local
// Ollama model or Gemini through Genkit.
package ai

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"thoreinstein.com/shipwright/pkg/config"
	shiperrors "thoreinstein.com/shipwright/pkg/errors"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a conversation message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response from AI provider.
type Response struct {
	Content      string
	StopReason   string // "end_turn", "max_tokens", etc.
	InputTokens  int
	OutputTokens int
}

// StreamChunk for streaming responses.
type StreamChunk struct {
	Content string
	Done    bool
	Error   error
}

// Provider interface for AI operations.
type Provider interface {
	// IsAvailable checks if provider is available and configured.
	IsAvailable() bool

	// Chat performs a single-turn chat completion.
	Chat(ctx context.Context, messages []Message) (*Response, error)

	// StreamChat performs a streaming chat completion.
	// Returns a channel that receives chunks until Done is true or Error is set.
	StreamChat(ctx context.Context, messages []Message) (<-chan StreamChunk, error)

	// Name returns the provider name.
	Name() string
}

// Provider name constants.
const (
	ProviderAnthropic = "anthropic"
	ProviderGroq      = "groq"
	ProviderOllama    = "ollama"
	ProviderGemini    = "gemini"
)

// NewProvider creates the chat provider selected by cfg.Provider.
// Environment variables take precedence over config file values for API keys.
// When cfg.Model is empty, the provider-specific default model is used.
func NewProvider(cfg *config.AIConfig, logger *slog.Logger) (Provider, error) {
	if cfg == nil {
		return nil, shiperrors.NewConfigError("ai", "config is nil")
	}

	model := func(fallback string) string {
		if cfg.Model != "" {
			return cfg.Model
		}
		return fallback
	}

	switch cfg.Provider {
	case ProviderAnthropic:
		apiKey := resolveKey(cfg.APIKey, "ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, shiperrors.NewConfigError("ai.api_key",
				"Anthropic API key not set (set ANTHROPIC_API_KEY or ai.api_key in config)")
		}
		return NewAnthropicProvider(apiKey, model(cfg.AnthropicModel), logger, WithAnthropicBaseURL(cfg.Endpoint)), nil

	case ProviderGroq:
		apiKey := resolveKey(cfg.APIKey, "GROQ_API_KEY")
		if apiKey == "" {
			return nil, shiperrors.NewConfigError("ai.api_key",
				"Groq API key not set (set GROQ_API_KEY or ai.api_key in config)")
		}
		return NewGroqProvider(apiKey, model(cfg.GroqModel), logger, WithGroqBaseURL(cfg.Endpoint)), nil

	case ProviderOllama:
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = cfg.OllamaEndpoint
		}
		return NewOllamaProvider(endpoint, model(cfg.OllamaModel), logger), nil

	case ProviderGemini:
		apiKey := resolveKey(cfg.APIKey, "GOOGLE_GENAI_API_KEY", "GEMINI_API_KEY")
		if apiKey == "" {
			return nil, shiperrors.NewConfigError("ai.api_key",
				"Gemini API key not set (set GOOGLE_GENAI_API_KEY or ai.api_key in config)")
		}
		return NewGeminiProvider(apiKey, model(cfg.GeminiModel), logger), nil

	default:
		return nil, shiperrors.NewConfigError("ai.provider",
			"unsupported AI provider: "+cfg.Provider+" (supported: anthropic, groq, ollama, gemini)")
	}
}

// resolveKey returns the first non-empty environment variable from envs,
// falling back to the config value.
func resolveKey(configKey string, envs ...string) string {
	for _, name := range envs {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return configKey
}

// Collect drains a stream, forwarding each content chunk to onDelta (which
// may be nil) and returning the concatenated text.
func Collect(ctx context.Context, chunks <-chan StreamChunk, onDelta func(string)) (string, error) {
	var b strings.Builder
	for {
		select {
		case <-ctx.Done():
			return b.String(), ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				return b.String(), nil
			}
			if chunk.Content != "" {
				b.WriteString(chunk.Content)
				if onDelta != nil {
					onDelta(chunk.Content)
				}
			}
			if chunk.Error != nil {
				return b.String(), chunk.Error
			}
			if chunk.Done {
				return b.String(), nil
			}
		}
	}
}

// splitSystem separates system messages (joined by blank lines) from the
// conversational turns.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	turns := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(system, "\n\n"), turns
}

// send delivers a chunk unless ctx is done first.
func send(ctx context.Context, ch chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func logDebug(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Debug(msg, args...)
	}
}
