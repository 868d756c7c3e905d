package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyCompletion is returned when a provider answers without any text.
var ErrEmptyCompletion = errors.New("empty completion")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a provider-neutral chat completion call.
type CompletionRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// ChatCompleter turns an ordered message list into one assistant reply.
// OpenAI-compatible endpoints, Gemini and Anthropic implement it.
type ChatCompleter interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ProviderConfig selects and configures a ChatCompleter.
type ProviderConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
}

// NewCompleter builds the completer named by cfg.Provider.
func NewCompleter(cfg ProviderConfig) (ChatCompleter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai", "openai-compat", "openai_compat":
		return NewOpenAICompatCompleter(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case "gemini":
		return NewGeminiCompleter(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case "anthropic":
		return NewAnthropicCompleter(cfg.BaseURL, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// splitSystem joins every system message into one instruction and returns the
// remaining conversation in order. Used by providers that take the system
// prompt out of band.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if text := strings.TrimSpace(msg.Content); text != "" {
				system = append(system, text)
			}
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(system, "\n\n"), rest
}
