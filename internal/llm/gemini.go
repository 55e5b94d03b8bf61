package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiClient calls Google's Gemini API through the genai SDK.
type GeminiClient struct {
	client  *genai.Client
	params  Params
	timeout time.Duration
}

// NewGeminiClient creates a Gemini-backed Completer.
func NewGeminiClient(ctx context.Context, cfg Config) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	params := cfg.Params
	if params.Model == "" || strings.HasPrefix(params.Model, "gpt-") {
		params.Model = defaultGeminiModel
	}

	return &GeminiClient{
		client:  client,
		params:  params,
		timeout: cfg.Timeout,
	}, nil
}

// Complete sends history with the system instruction and returns the reply
// text.
func (c *GeminiClient) Complete(ctx context.Context, system string, history []Message) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	contents := toGeminiContents(history)
	if len(contents) == 0 {
		// The API rejects an empty turn list; an opening call still needs
		// something to respond to.
		contents = []*genai.Content{genai.NewContentFromText("はじめまして", genai.RoleUser)}
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.params.Temperature),
		MaxOutputTokens: int32(c.params.MaxTokens),
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.params.Model, contents, config)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	if resp == nil {
		return "", ErrEmptyCompletion
	}

	slog.Debug("completion finished",
		"provider", ProviderGemini,
		"model", c.params.Model,
		"history_len", len(history),
		"duration", time.Since(start))

	return resp.Text(), nil
}

func toGeminiContents(history []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents
}
