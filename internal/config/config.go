// Package config loads the agent's YAML configuration. Values from the file
// are expanded against the environment, so secrets can stay in env vars
// (api_key: ${ANTHROPIC_API_KEY}).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Provider Provider `yaml:"provider"`
	Turn     Turn     `yaml:"turn"`
	Tools    Tools    `yaml:"tools"`
	Sessions Sessions `yaml:"sessions"`
	Logging  Logging  `yaml:"logging"`
	Metrics  Metrics  `yaml:"metrics"`
}

// Provider selects and configures the model backend.
type Provider struct {
	// Name is "anthropic" or "openai".
	Name string `yaml:"name"`

	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`

	// ThinkingLevel is recorded in the session metadata.
	ThinkingLevel string `yaml:"thinking_level"`
}

// Turn tunes the turn engine.
type Turn struct {
	SystemPrompt       string        `yaml:"system_prompt"`
	MaxRetries         int           `yaml:"max_retries"`
	RetryBaseDelay     time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay      time.Duration `yaml:"retry_max_delay"`
	MaxConcurrentTools int           `yaml:"max_concurrent_tools"`
	QueueMaxDepth      int           `yaml:"queue_max_depth"`
}

// Tools tunes the tool execution context.
type Tools struct {
	// Cwd is the working directory tools run in. Defaults to the process
	// working directory.
	Cwd string `yaml:"cwd"`

	TextMaxBytes    int `yaml:"text_max_bytes"`
	TextMaxLines    int `yaml:"text_max_lines"`
	CommandMaxBytes int `yaml:"command_max_bytes"`
}

// Sessions locates the session log store.
type Sessions struct {
	// Dir is the root directory for session files. Defaults to
	// ~/.loom/sessions.
	Dir string `yaml:"dir"`
}

// Logging mirrors the structured logger setup.
type Logging struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider: Provider{
			Name: "anthropic",
		},
		Turn: Turn{
			MaxRetries:         3,
			RetryBaseDelay:     time.Second,
			RetryMaxDelay:      30 * time.Second,
			MaxConcurrentTools: 4,
			QueueMaxDepth:      16,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Metrics: Metrics{
			Addr: "127.0.0.1:9190",
		},
	}
}

// Load reads path, expands environment references, and unmarshals over the
// defaults. An empty path returns the defaults untouched.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.Provider.Name {
	case "anthropic", "openai":
	case "":
		return fmt.Errorf("provider.name is required")
	default:
		return fmt.Errorf("unknown provider %q", c.Provider.Name)
	}
	if c.Turn.MaxRetries < 0 {
		return fmt.Errorf("turn.max_retries must be >= 0")
	}
	if c.Turn.QueueMaxDepth < 0 {
		return fmt.Errorf("turn.queue_max_depth must be >= 0")
	}
	return nil
}

// SessionDir resolves the session store location.
func (c *Config) SessionDir() string {
	if c.Sessions.Dir != "" {
		return c.Sessions.Dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".loom/sessions"
	}
	return filepath.Join(home, ".loom", "sessions")
}
