// Package llm provides completion-provider clients for the agent.
package llm

import (
	"context"
	"fmt"

	"github.com/WolfverusWasTaken/cheapskate.ai/internal/config"
)

// Message is one turn of provider-visible conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolCall is a structured action request returned by a provider.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Completion is the provider's reply: free text, tool calls, or both.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// ToolSpec declares one callable action to the provider. Parameters is a
// JSON-schema shaped object describing the arguments.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Provider abstracts a chat-completion backend.
type Provider interface {
	// Complete sends the message history and optional tool declarations and
	// returns the model's reply.
	Complete(ctx context.Context, messages []Message, tools []ToolSpec) (*Completion, error)
	// Name identifies the backend for logging.
	Name() string
}

// New builds the configured provider.
func New(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllama(cfg.OllamaURL, cfg.OllamaModel, cfg.GetRequestTimeout()), nil
	case "gemini":
		return NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GetRequestTimeout()), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
