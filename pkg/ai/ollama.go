package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	shiperrors "thoreinstein.com/shipwright/pkg/errors"
)

const (
	ollamaDefaultEndpoint = "http://localhost:11434"
	ollamaDefaultModel    = "llama3.2"
	ollamaChatPath        = "/api/chat"
)

// OllamaProvider implements Provider for a local Ollama server.
type OllamaProvider struct {
	endpoint string
	model    string
	logger   *slog.Logger
	client   *http.Client
	retry    shiperrors.RetryConfig
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(endpoint, model string, logger *slog.Logger) *OllamaProvider {
	if endpoint == "" {
		endpoint = ollamaDefaultEndpoint
	}
	if model == "" {
		model = ollamaDefaultModel
	}
	return &OllamaProvider{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		model:    model,
		logger:   logger,
		client:   &http.Client{},
		retry:    shiperrors.DefaultRetryConfig(),
	}
}

// Name returns the provider name.
func (p *OllamaProvider) Name() string {
	return ProviderOllama
}

// IsAvailable reports whether an endpoint is configured. Local instances
// need no API key.
func (p *OllamaProvider) IsAvailable() bool {
	return p.endpoint != ""
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
}

type ollamaError struct {
	Error string `json:"error"`
}

// Chat performs a single-turn chat completion.
func (p *OllamaProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	if !p.IsAvailable() {
		return nil, shiperrors.NewAIError(ProviderOllama, "Chat", "provider not configured")
	}

	logDebug(p.logger, "sending chat request", "model", p.model, "message_count", len(messages))

	resp, err := shiperrors.RetryWithResult(ctx, p.retry, func() (*http.Response, error) {
		return p.post(ctx, "Chat", messages, false)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, shiperrors.NewAIErrorWithCause(ProviderOllama, "Chat", "failed to parse response", err)
	}

	stopReason := "stop"
	if !out.Done {
		stopReason = "incomplete"
	}

	return &Response{
		Content:      out.Message.Content,
		StopReason:   stopReason,
		InputTokens:  out.PromptEvalCount,
		OutputTokens: out.EvalCount,
	}, nil
}

// StreamChat performs a streaming chat completion over Ollama's
// newline-delimited JSON stream.
func (p *OllamaProvider) StreamChat(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	if !p.IsAvailable() {
		return nil, shiperrors.NewAIError(ProviderOllama, "StreamChat", "provider not configured")
	}

	logDebug(p.logger, "sending streaming chat request", "model", p.model, "message_count", len(messages))

	resp, err := p.post(ctx, "StreamChat", messages, true)
	if err != nil {
		return nil, err
	}

	chunks := make(chan StreamChunk)
	go p.streamResponse(ctx, resp.Body, chunks)
	return chunks, nil
}

func (p *OllamaProvider) streamResponse(ctx context.Context, body io.ReadCloser, chunks chan<- StreamChunk) {
	defer close(chunks)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var out ollamaResponse
		if err := json.Unmarshal(line, &out); err != nil {
			logDebug(p.logger, "failed to parse stream chunk", "error", err)
			continue
		}

		if out.Message.Content != "" {
			if !send(ctx, chunks, StreamChunk{Content: out.Message.Content}) {
				return
			}
		}
		if out.Done {
			send(ctx, chunks, StreamChunk{Done: true})
			return
		}
	}

	err := scanner.Err()
	if ctx.Err() != nil {
		err = ctx.Err()
	} else if err != nil {
		err = shiperrors.NewAIErrorWithCause(ProviderOllama, "StreamChat", "stream read error", err)
	}
	send(ctx, chunks, StreamChunk{Error: err, Done: true})
}

// post sends a chat request and returns the open response on HTTP 200.
func (p *OllamaProvider) post(ctx context.Context, operation string, messages []Message, stream bool) (*http.Response, error) {
	reqBody := ollamaRequest{Model: p.model, Stream: stream, Messages: make([]ollamaMessage, 0, len(messages))}
	for _, m := range messages {
		reqBody.Messages = append(reqBody.Messages, ollamaMessage(m))
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, shiperrors.NewAIErrorWithCause(ProviderOllama, operation, "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+ollamaChatPath, bytes.NewReader(body))
	if err != nil {
		return nil, shiperrors.NewAIErrorWithCause(ProviderOllama, operation, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, shiperrors.NewAIErrorWithCause(ProviderOllama, operation, "request failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, p.handleErrorResponse(resp, operation)
	}
	return resp, nil
}

func (p *OllamaProvider) handleErrorResponse(resp *http.Response, operation string) error {
	body, _ := io.ReadAll(resp.Body)

	var apiErr ollamaError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return shiperrors.NewAIErrorWithStatus(ProviderOllama, operation, resp.StatusCode, apiErr.Error)
	}

	return shiperrors.NewAIErrorWithStatus(ProviderOllama, operation,
		resp.StatusCode, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
}
