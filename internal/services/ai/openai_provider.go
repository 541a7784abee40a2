// File: internal/services/ai/openai_provider.go
package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"sync/atomic"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to an OpenAI-compatible server (vLLM, TGI, llama.cpp)
// that hosts the model.
type OpenAIProvider struct {
	config *Config
	client *openai.Client
	loaded atomic.Bool
}

func NewOpenAIProvider(config *Config) *OpenAIProvider {
	llmConfig := openai.DefaultConfig(config.APIKey)
	llmConfig.BaseURL = config.BaseURL
	return &OpenAIProvider{
		config: config,
		client: openai.NewClientWithConfig(llmConfig),
	}
}

// Load checks that the server answers and serves the configured model.
func (p *OpenAIProvider) Load(ctx context.Context) error {
	if p.loaded.Load() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.config.LoadTimeout)
	defer cancel()

	models, err := p.client.ListModels(ctx)
	if err != nil {
		return &AIError{Type: ErrTypeNetwork, Model: p.config.ModelName, Operation: "load", Message: "list models", Cause: err}
	}
	found := false
	for _, m := range models.Models {
		if m.ID == p.config.ModelName {
			found = true
			break
		}
	}
	if !found {
		return NewModelError(p.config.ModelName, "load", "model is not served by "+p.config.BaseURL, nil)
	}
	p.loaded.Store(true)
	return nil
}

func (p *OpenAIProvider) Loaded() bool { return p.loaded.Load() }

func (p *OpenAIProvider) StreamCompletion(ctx context.Context, req Request, onDelta func(string) error) error {
	if !p.loaded.Load() {
		return NewNotLoadedError(p.config.ModelName)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       p.config.ModelName,
		Messages:    buildMessages(req),
		MaxTokens:   req.MaxTokens,
		Temperature: p.config.Temperature,
		TopP:        p.config.TopP,
		Stream:      true,
	})
	if err != nil {
		return NewProviderError("streaming", "failed to create stream", err)
	}
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return NewProviderError("streaming", "stream receive error", err)
		}

		if len(response.Choices) > 0 {
			delta := response.Choices[0].Delta.Content
			if delta != "" && onDelta != nil {
				if cbErr := onDelta(delta); cbErr != nil {
					return cbErr
				}
			}
		}
	}
}

func buildMessages(req Request) []openai.ChatCompletionMessage {
	var msgs []openai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	if len(req.Images) == 0 {
		return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})
	}

	parts := make([]openai.ChatMessagePart, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}
	parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: req.Prompt})
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts})
}

// ReleaseMemory is a no-op: the serving process owns its KV cache.
func (p *OpenAIProvider) ReleaseMemory(ctx context.Context) error { return nil }

func (p *OpenAIProvider) Unload(ctx context.Context) error {
	p.loaded.Store(false)
	return nil
}

func (p *OpenAIProvider) Status() ProviderStatus {
	loaded := p.loaded.Load()
	msg := "model not loaded"
	if loaded {
		msg = "OpenAI-compatible backend ready"
	}
	return ProviderStatus{
		Backend:              BackendOpenAI,
		Model:                p.config.ModelName,
		Device:               p.config.Device,
		Loaded:               loaded,
		AcceleratorAvailable: p.config.AcceleratorAvailable(),
		Message:              msg,
	}
}
