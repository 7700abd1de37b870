package config

import "natural/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string          `yaml:"format" validate:"omitempty,oneof=json text"`
	File       string          `yaml:"file,omitempty"`
	Categories map[string]bool `yaml:"categories,omitempty"` // Per-category toggles
}

// IsCategoryEnabled returns whether logging is enabled for a category.
// Unlisted categories are enabled.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}

// Options converts the configuration for logging.Initialize. An empty file
// logs to stderr.
func (c *LoggingConfig) Options() logging.Options {
	opts := logging.Options{
		Level:      c.Level,
		JSON:       c.Format == "json",
		Categories: c.Categories,
	}
	if c.File != "" {
		opts.OutputPaths = []string{c.File}
	}
	return opts
}
