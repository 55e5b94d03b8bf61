// Package llm implements the text-completion collaborator the dialogue core
// talks to.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Role of a message in the outbound history. System messages are never sent
// in the history; the system instruction travels separately.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one history entry sent to the provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Completer produces the narrator's next reply.
type Completer interface {
	Complete(ctx context.Context, system string, history []Message) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, system string, history []Message) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, system string, history []Message) (string, error) {
	return f(ctx, system, history)
}

// ErrEmptyCompletion is returned when the provider answered without content.
var ErrEmptyCompletion = errors.New("no completion returned")

// Provider names accepted by New.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Params are per-call generation settings.
type Params struct {
	Model       string
	MaxTokens   int
	Temperature float32
}

// DefaultParams mirrors the production call settings.
func DefaultParams() Params {
	return Params{
		Model:       "gpt-4o-mini",
		MaxTokens:   1000,
		Temperature: 0.8,
	}
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	Params   Params
	// Timeout bounds a single call. Zero means no client-side limit.
	Timeout time.Duration
}

// New returns the Completer for cfg.Provider.
func New(ctx context.Context, cfg Config) (Completer, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIClient(cfg), nil
	case ProviderGemini:
		return NewGeminiClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}
