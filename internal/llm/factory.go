package llm

import (
	"fmt"
	"strings"
	"time"
)

// NewClient builds a Client for the named provider. Supported providers are
// "anthropic" and "openai" (any OpenAI-compatible endpoint via BaseURL).
func NewClient(provider string, config Config) (Client, error) {
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}

	switch strings.ToLower(provider) {
	case "anthropic":
		if config.BaseURL == "" {
			config.BaseURL = DefaultAnthropicConfig(config.APIKey).BaseURL
		}
		if config.Model == "" {
			config.Model = DefaultAnthropicConfig(config.APIKey).Model
		}
		return NewAnthropicClient(config), nil
	case "openai", "openai-compatible":
		if config.BaseURL == "" {
			config.BaseURL = DefaultOpenAIConfig(config.APIKey).BaseURL
		}
		if config.Model == "" {
			config.Model = DefaultOpenAIConfig(config.APIKey).Model
		}
		return NewOpenAIClient(config), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", provider)
	}
}
