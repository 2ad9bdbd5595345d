package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"thoreinstein.com/shipwright/pkg/config"
	shiperrors "thoreinstein.com/shipwright/pkg/errors"
)

// scriptedProvider replays canned replies.
type scriptedProvider struct {
	replies []string
	seen    [][]Message
	err     error
}

func (s *scriptedProvider) Name() string      { return "scripted" }
func (s *scriptedProvider) IsAvailable() bool { return true }

func (s *scriptedProvider) Chat(_ context.Context, messages []Message) (*Response, error) {
	s.seen = append(s.seen, messages)
	if s.err != nil {
		return nil, s.err
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return &Response{Content: reply}, nil
}

func (s *scriptedProvider) StreamChat(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	resp, err := s.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamChunk, 3)
	half := len(resp.Content) / 2
	ch <- StreamChunk{Content: resp.Content[:half]}
	ch <- StreamChunk{Content: resp.Content[half:]}
	ch <- StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func TestNewProvider(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("GOOGLE_GENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	tests := []struct {
		name     string
		cfg      *config.AIConfig
		wantName string
		wantErr  bool
	}{
		{"nil config", nil, "", true},
		{"anthropic", &config.AIConfig{Provider: "anthropic", APIKey: "k"}, ProviderAnthropic, false},
		{"anthropic without key", &config.AIConfig{Provider: "anthropic"}, "", true},
		{"groq", &config.AIConfig{Provider: "groq", APIKey: "k"}, ProviderGroq, false},
		{"ollama needs no key", &config.AIConfig{Provider: "ollama"}, ProviderOllama, false},
		{"gemini", &config.AIConfig{Provider: "gemini", APIKey: "k"}, ProviderGemini, false},
		{"unknown", &config.AIConfig{Provider: "llamafile"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg, nil)
			if tt.wantErr {
				require.True(t, shiperrors.IsConfigError(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantName, p.Name())
		})
	}
}

func TestNewProvider_EnvKeyWins(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "from-env")

	p, err := NewProvider(&config.AIConfig{Provider: "groq"}, nil)
	require.NoError(t, err)
	require.Equal(t, "from-env", p.(*GroqProvider).apiKey)
}

func TestNewProvider_ModelFallback(t *testing.T) {
	p, err := NewProvider(&config.AIConfig{Provider: "ollama", OllamaModel: "qwen2.5-coder"}, nil)
	require.NoError(t, err)
	require.Equal(t, "qwen2.5-coder", p.(*OllamaProvider).model)

	p, err = NewProvider(&config.AIConfig{Provider: "ollama", Model: "override", OllamaModel: "qwen2.5-coder"}, nil)
	require.NoError(t, err)
	require.Equal(t, "override", p.(*OllamaProvider).model)
}

func TestCollect_Error(t *testing.T) {
	ch := make(chan StreamChunk, 2)
	ch <- StreamChunk{Content: "par"}
	ch <- StreamChunk{Error: errors.New("boom"), Done: true}
	close(ch)

	text, err := Collect(context.Background(), ch, nil)
	require.EqualError(t, err, "boom")
	require.Equal(t, "par", text)
}

func TestCollect_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Collect(ctx, make(chan StreamChunk), nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSplitSystem(t *testing.T) {
	system, turns := splitSystem([]Message{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "q"},
		{Role: RoleSystem, Content: "b"},
	})
	require.Equal(t, "a\n\nb", system)
	require.Equal(t, []Message{{Role: RoleUser, Content: "q"}}, turns)
}

func TestConversation(t *testing.T) {
	p := &scriptedProvider{replies: []string{"first answer", "second answer"}}
	c := NewConversation(p, "system prompt").WithLimit(3)

	c.AddUserMessage("one")
	_, err := c.Stream(context.Background(), nil)
	require.NoError(t, err)

	c.AddUserMessage("two")
	var deltas []string
	text, err := c.Stream(context.Background(), func(d string) { deltas = append(deltas, d) })
	require.NoError(t, err)
	require.Equal(t, "second answer", text)
	require.Len(t, deltas, 2)

	history := c.History()
	require.Len(t, history, 3)
	require.Equal(t, "first answer", history[0].Content)
	require.Equal(t, "second answer", history[2].Content)

	require.Equal(t, RoleSystem, p.seen[1][0].Role)
	require.Equal(t, "system prompt", p.seen[1][0].Content)
}

func TestConversation_WithHistory(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "a"},
		{Role: RoleAssistant, Content: "b"},
		{Role: RoleUser, Content: "c"},
	}
	c := NewConversation(&scriptedProvider{}, "").WithLimit(2).WithHistory(history)

	require.Equal(t, history[1:], c.History())

	history[1].Content = "mutated"
	require.Equal(t, "b", c.History()[0].Content)
}

func TestConversation_StreamError(t *testing.T) {
	c := NewConversation(&scriptedProvider{err: errors.New("down")}, "")
	c.AddUserMessage("hi")

	_, err := c.Stream(context.Background(), nil)
	require.Error(t, err)
	require.Len(t, c.History(), 1)
}
