package openai

import (
	"errors"
	"strings"
	"time"
)

// Config holds the OpenAI-compatible backend settings. Any API that speaks
// the chat completions interface works via base_url (Mistral, Groq,
// DeepSeek, vLLM, LiteLLM, etc.).
type Config struct {
	BaseURL string            `yaml:"base_url"`
	APIKey  string            `yaml:"api_key"`
	Model   string            `yaml:"model"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
}

// validate checks the required fields.
func (c *Config) validate() error {
	if c.APIKey == "" {
		return errors.New("openai: api_key is required")
	}
	if c.Model == "" {
		return errors.New("openai: model is required")
	}
	return nil
}
