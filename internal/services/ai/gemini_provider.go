// File: internal/services/ai/gemini_provider.go
package ai

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiProvider streams from a hosted Gemini model. The client is created by
// Load and closed by Unload.
type GeminiProvider struct {
	config *Config

	mu     sync.RWMutex
	client *genai.Client
}

func NewGeminiProvider(config *Config) *GeminiProvider {
	return &GeminiProvider{config: config}
}

func (p *GeminiProvider) Load(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return nil
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(strings.TrimSpace(p.config.APIKey)))
	if err != nil {
		return NewModelError(p.config.ModelName, "load", "create gemini client", err)
	}
	p.client = cl
	return nil
}

func (p *GeminiProvider) Loaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client != nil
}

func (p *GeminiProvider) StreamCompletion(ctx context.Context, req Request, onDelta func(string) error) error {
	p.mu.RLock()
	cl := p.client
	p.mu.RUnlock()
	if cl == nil {
		return NewNotLoadedError(p.config.ModelName)
	}

	m := cl.GenerativeModel(p.config.ModelName)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(p.config.Temperature),
		TopP:        ptrFloat32(p.config.TopP),
	}
	if req.MaxTokens > 0 {
		m.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.System != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	parts := make([]genai.Part, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, &genai.Blob{MIMEType: img.MIMEType, Data: img.Data})
	}
	parts = append(parts, genai.Text(req.Prompt))

	iter := m.GenerateContentStream(ctx, parts...)
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return NewProviderError("streaming", "gemini stream error", err)
		}
		for _, c := range resp.Candidates {
			if c.Content == nil {
				continue
			}
			for _, part := range c.Content.Parts {
				t, ok := part.(genai.Text)
				if !ok || t == "" || onDelta == nil {
					continue
				}
				if cbErr := onDelta(string(t)); cbErr != nil {
					return cbErr
				}
			}
		}
	}
}

// ReleaseMemory is a no-op for a hosted model.
func (p *GeminiProvider) ReleaseMemory(ctx context.Context) error { return nil }

func (p *GeminiProvider) Unload(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

func (p *GeminiProvider) Status() ProviderStatus {
	loaded := p.Loaded()
	msg := "model not loaded"
	if loaded {
		msg = "Gemini backend ready"
	}
	return ProviderStatus{
		Backend:              BackendGemini,
		Model:                p.config.ModelName,
		Device:               p.config.Device,
		Loaded:               loaded,
		AcceleratorAvailable: p.config.AcceleratorAvailable(),
		Message:              msg,
	}
}

func ptrFloat32(v float32) *float32 { return &v }
