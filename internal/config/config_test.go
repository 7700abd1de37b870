package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"OPENAI_API_KEY", "GEMINI_API_KEY", "NATURAL_PROVIDER", "NATURAL_MODEL",
		"NATURAL_BASE_URL", "NATURAL_CACHE", "NATURAL_MAX_ATTEMPTS"} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.LLM.Provider != ProviderOpenAI {
		t.Errorf("expected Provider=openai, got %s", cfg.LLM.Provider)
	}
	if cfg.MaxAttempts != 5 {
		t.Errorf("expected MaxAttempts=5, got %d", cfg.MaxAttempts)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Path == "" {
		t.Errorf("expected cache enabled with a path, got %+v", cfg.Cache)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "natural.yaml")

	cfg := DefaultConfig()
	cfg.LLM.Provider = ProviderGemini
	cfg.LLM.Model = "gemini-2.5-pro"
	cfg.MaxAttempts = 3
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.LLM.Provider != ProviderGemini || loaded.LLM.Model != "gemini-2.5-pro" {
		t.Errorf("unexpected LLM config: %+v", loaded.LLM)
	}
	if loaded.MaxAttempts != 3 {
		t.Errorf("expected MaxAttempts=3, got %d", loaded.MaxAttempts)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Model != DefaultConfig().LLM.Model {
		t.Errorf("expected default model, got %s", cfg.LLM.Model)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("llm: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "oa-key")
	t.Setenv("NATURAL_MODEL", "gpt-4o")
	t.Setenv("NATURAL_MAX_ATTEMPTS", "9")
	t.Setenv("NATURAL_CACHE", "/tmp/natural.db")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	if cfg.LLM.APIKey != "oa-key" {
		t.Errorf("expected APIKey=oa-key, got %s", cfg.LLM.APIKey)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Errorf("expected Model=gpt-4o, got %s", cfg.LLM.Model)
	}
	if cfg.MaxAttempts != 9 {
		t.Errorf("expected MaxAttempts=9, got %d", cfg.MaxAttempts)
	}
	if cfg.Cache.Path != "/tmp/natural.db" {
		t.Errorf("expected cache path override, got %s", cfg.Cache.Path)
	}
}

func TestConfig_EnvOverrides_Gemini(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "oa-key")
	t.Setenv("GEMINI_API_KEY", "gm-key")

	cfg := DefaultConfig()
	cfg.LLM.Provider = ProviderGemini
	cfg.applyEnvOverrides()
	if cfg.LLM.APIKey != "gm-key" {
		t.Errorf("gemini provider should use GEMINI_API_KEY, got %s", cfg.LLM.APIKey)
	}

	cfg = DefaultConfig()
	cfg.applyEnvOverrides()
	if cfg.LLM.APIKey != "oa-key" {
		t.Errorf("openai provider should keep OPENAI_API_KEY, got %s", cfg.LLM.APIKey)
	}
}

func TestConfig_APIKeyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MY_PROXY_KEY", "proxy")

	cfg := DefaultConfig()
	cfg.LLM.APIKeyEnv = "MY_PROXY_KEY"
	cfg.applyEnvOverrides()
	if cfg.LLM.APIKey != "proxy" {
		t.Errorf("expected key from MY_PROXY_KEY, got %s", cfg.LLM.APIKey)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(*Config) {}, true},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "anthropic" }, false},
		{"negative attempts", func(c *Config) { c.MaxAttempts = -1 }, false},
		{"missing model", func(c *Config) { c.LLM.Model = "" }, false},
		{"bad base url", func(c *Config) { c.LLM.BaseURL = "not a url" }, false},
		{"cache without path", func(c *Config) { c.Cache.Path = "" }, false},
		{"disabled cache without path", func(c *Config) { c.Cache = CacheConfig{} }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.valid && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLLMConfig_RequireAPIKey(t *testing.T) {
	if err := (LLMConfig{Provider: ProviderOpenAI}).RequireAPIKey(); err == nil {
		t.Error("expected missing key error")
	}
	if err := (LLMConfig{Provider: ProviderOpenAI, BaseURL: "http://localhost:11434/v1"}).RequireAPIKey(); err != nil {
		t.Errorf("local endpoint should not need a key: %v", err)
	}
	if err := (LLMConfig{Provider: ProviderGemini, APIKey: "k"}).RequireAPIKey(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if id := (LLMConfig{Provider: "openai", Model: "gpt-4o"}).ModelID(); id != "openai/gpt-4o" {
		t.Errorf("unexpected model id %s", id)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("NATURAL_MODEL=from-dotenv\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("NATURAL_MODEL") })
	os.Unsetenv("NATURAL_MODEL")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := os.Getenv("NATURAL_MODEL"); got != "from-dotenv" {
		t.Errorf("expected NATURAL_MODEL=from-dotenv, got %q", got)
	}
}

func TestLoggingConfig(t *testing.T) {
	c := LoggingConfig{Level: "debug", Format: "json", File: "natural.log", Categories: map[string]bool{"api": false}}
	if c.IsCategoryEnabled("api") {
		t.Error("api should be disabled")
	}
	if !c.IsCategoryEnabled("loader") {
		t.Error("unlisted categories should be enabled")
	}
	opts := c.Options()
	if !opts.JSON || opts.Level != "debug" || len(opts.OutputPaths) != 1 {
		t.Errorf("unexpected options %+v", opts)
	}
}
