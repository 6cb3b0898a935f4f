package interfaces

import (
	"context"
)

// Message represents a single message in a chat conversation
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string

	// Content contains the text content of the message
	Content string
}

// LLMService defines the chat completion surface used by the AI classifier.
// Implementations wrap a cloud provider (Anthropic Claude, Google Gemini).
type LLMService interface {
	// Chat generates a completion response based on the conversation history.
	// The messages slice should contain the full conversation context including
	// the system prompt and the user message.
	Chat(ctx context.Context, messages []Message) (string, error)

	// Provider returns the provider name ("claude", "gemini")
	Provider() string

	// Close releases resources held by the client
	Close() error
}
