// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/junrei/internal/llm"
	"github.com/ashureev/junrei/internal/onboarding"
	"github.com/ashureev/junrei/internal/progression"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	SessionTTL  time.Duration
	AI          AIConfig
	RateLimit   RateLimitConfig
	Progression progression.Config

	// OnboardingRefreshResult lets later temperament results overwrite
	// earlier ones during onboarding.
	OnboardingRefreshResult bool
}

// AIConfig selects the completion provider.
type AIConfig struct {
	Provider      string
	Model         string
	OpenAIKey     string
	OpenAIBaseURL string
	GoogleKey     string
	MaxTokens     int
	Temperature   float64
	Timeout       time.Duration
}

// RateLimitConfig bounds message requests per user.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/junrei.db"),
		SessionTTL:  getEnvDuration("SESSION_TTL", 60*time.Minute),
		AI: AIConfig{
			Provider:      strings.ToLower(getEnv("AI_PROVIDER", llm.ProviderOpenAI)),
			Model:         getEnv("AI_MODEL", ""),
			OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
			GoogleKey:     getEnv("GOOGLE_API_KEY", ""),
			MaxTokens:     getEnvInt("AI_MAX_TOKENS", 1000),
			Temperature:   getEnvFloat("AI_TEMPERATURE", 0.8),
			Timeout:       getEnvDuration("AI_TIMEOUT", 0),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Progression:             progression.DefaultConfig(),
		OnboardingRefreshResult: getEnvBool("ONBOARDING_REFRESH_RESULT", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	switch c.AI.Provider {
	case llm.ProviderOpenAI, llm.ProviderGemini:
	default:
		return fmt.Errorf("AI_PROVIDER must be %q or %q, got %q", llm.ProviderOpenAI, llm.ProviderGemini, c.AI.Provider)
	}
	if c.AI.MaxTokens <= 0 {
		return fmt.Errorf("AI_MAX_TOKENS must be > 0")
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		return fmt.Errorf("AI_TEMPERATURE must be between 0 and 2")
	}
	if c.AI.Timeout < 0 {
		return fmt.Errorf("AI_TIMEOUT cannot be negative")
	}
	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if err := c.Progression.Validate(); err != nil {
		return fmt.Errorf("progression: %w", err)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// LLM returns the provider configuration for llm.New.
func (c *Config) LLM() llm.Config {
	params := llm.DefaultParams()
	if c.AI.Model != "" {
		params.Model = c.AI.Model
	}
	params.MaxTokens = c.AI.MaxTokens
	params.Temperature = float32(c.AI.Temperature)

	key := c.AI.OpenAIKey
	if c.AI.Provider == llm.ProviderGemini {
		key = c.AI.GoogleKey
	}
	return llm.Config{
		Provider: c.AI.Provider,
		APIKey:   key,
		BaseURL:  c.AI.OpenAIBaseURL,
		Params:   params,
		Timeout:  c.AI.Timeout,
	}
}

// OnboardingPolicy maps OnboardingRefreshResult to a classifier policy.
func (c *Config) OnboardingPolicy() onboarding.Policy {
	if c.OnboardingRefreshResult {
		return onboarding.Refresh
	}
	return onboarding.FirstWins
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
