// File: internal/services/ai/config.go
package ai

import (
	"fmt"
	"strings"
	"time"
)

const (
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
	BackendStub   = "stub"
)

type Config struct {
	Backend   string
	ModelName string

	// OpenAI-compatible server hosting the model
	BaseURL string
	APIKey  string

	// Device reported by health checks: cuda, mps or cpu
	Device string

	// LoadTimeout bounds the reachability check done by Load
	LoadTimeout time.Duration

	// Model Parameters
	Temperature float32
	TopP        float32
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOpenAI:
		if c.BaseURL == "" {
			return NewConfigError("MODEL_BASE_URL is required for the openai backend")
		}
	case BackendGemini:
		if c.APIKey == "" {
			return NewConfigError("GEMINI_API_KEY is required for the gemini backend")
		}
	case BackendStub:
	default:
		return NewConfigError(fmt.Sprintf("unknown MODEL_BACKEND %q", c.Backend))
	}
	if c.Backend != BackendStub && strings.TrimSpace(c.ModelName) == "" {
		return NewConfigError("MODEL_NAME is required")
	}
	if c.LoadTimeout <= 0 {
		return NewConfigError("load timeout must be positive")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return NewConfigError("temperature must be within 0..2")
	}
	if c.TopP <= 0 || c.TopP > 1 {
		return NewConfigError("top_p must be within (0, 1]")
	}
	return nil
}

// AcceleratorAvailable reports whether the configured device is a GPU.
func (c *Config) AcceleratorAvailable() bool {
	d := strings.ToLower(c.Device)
	return d != "" && d != "cpu"
}

func DefaultConfig() *Config {
	return &Config{
		Backend:     BackendStub,
		ModelName:   "google/medgemma-4b-it",
		Device:      "cpu",
		LoadTimeout: 30 * time.Second,
		Temperature: 0.7,
		TopP:        0.9,
	}
}
