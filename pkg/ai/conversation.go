package ai

import (
	"context"
	"sync"
)

// Conversation manages multi-turn conversation state.
type Conversation struct {
	mu       sync.Mutex
	provider Provider
	messages []Message
	system   string
	limit    int
}

// NewConversation creates a new conversation with a system prompt.
func NewConversation(provider Provider, systemPrompt string) *Conversation {
	return &Conversation{
		provider: provider,
		system:   systemPrompt,
	}
}

// WithHistory seeds the conversation with earlier turns.
func (c *Conversation) WithHistory(history []Message) *Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages[:0:0], history...)
	c.trim()
	return c
}

// WithLimit caps the history at the last n messages. Zero means unbounded.
func (c *Conversation) WithLimit(n int) *Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limit = n
	c.trim()
	return c
}

// AddUserMessage adds a user message to the conversation.
func (c *Conversation) AddUserMessage(content string) {
	c.append(Message{Role: RoleUser, Content: content})
}

// AddAssistantMessage adds an assistant message to the conversation.
func (c *Conversation) AddAssistantMessage(content string) {
	c.append(Message{Role: RoleAssistant, Content: content})
}

func (c *Conversation) append(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
	c.trim()
}

// trim drops the oldest messages beyond limit. Callers hold mu.
func (c *Conversation) trim() {
	if c.limit > 0 && len(c.messages) > c.limit {
		c.messages = append(c.messages[:0:0], c.messages[len(c.messages)-c.limit:]...)
	}
}

// Stream sends the conversation, calling onDelta for every streamed chunk,
// and appends the complete reply to the history once the stream finishes
// without error.
func (c *Conversation) Stream(ctx context.Context, onDelta func(string)) (string, error) {
	chunks, err := c.provider.StreamChat(ctx, c.buildMessages())
	if err != nil {
		return "", err
	}

	text, err := Collect(ctx, chunks, onDelta)
	if err != nil {
		return text, err
	}
	if text != "" {
		c.AddAssistantMessage(text)
	}
	return text, nil
}

// History returns a copy of the conversation (excluding the system prompt).
func (c *Conversation) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]Message, len(c.messages))
	copy(result, c.messages)
	return result
}

// buildMessages constructs the full message list with system prompt.
func (c *Conversation) buildMessages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	messages := make([]Message, 0, len(c.messages)+1)
	if c.system != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: c.system})
	}
	return append(messages, c.messages...)
}
