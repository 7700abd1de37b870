package config

import "fmt"

// Supported providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// LLMConfig configures the model used for synthesis.
type LLMConfig struct {
	Provider string `yaml:"provider" validate:"oneof=openai gemini"`
	APIKey   string `yaml:"api_key,omitempty"`
	// APIKeyEnv names an environment variable holding the key.
	APIKeyEnv   string  `yaml:"api_key_env,omitempty"`
	Model       string  `yaml:"model" validate:"required"`
	BaseURL     string  `yaml:"base_url,omitempty" validate:"omitempty,url"`
	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`
}

// RequireAPIKey reports a missing key for providers that need one. An
// OpenAI-compatible endpoint given by base_url may run without a key.
func (c LLMConfig) RequireAPIKey() error {
	if c.APIKey != "" {
		return nil
	}
	if c.Provider == ProviderOpenAI && c.BaseURL != "" {
		return nil
	}
	return fmt.Errorf("LLM API key not configured for provider %s (set OPENAI_API_KEY, GEMINI_API_KEY or llm.api_key_env)", c.Provider)
}

// ModelID identifies provider and model, e.g. "openai/gpt-4o-mini".
func (c LLMConfig) ModelID() string {
	return c.Provider + "/" + c.Model
}
