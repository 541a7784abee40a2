// File: internal/services/ai/stub_provider.go
package ai

import (
	"context"
	"strings"
	"sync/atomic"
	"time"
)

const stubReply = "Bu yanıt geliştirme modunda üretilmiştir. This response was produced in development mode."

// StubProvider is an in-process model for local development and the
// diagnostic command. It streams a fixed reply word by word.
type StubProvider struct {
	config *Config
	delay  time.Duration
	loaded atomic.Bool
}

func NewStubProvider(config *Config, delay time.Duration) *StubProvider {
	return &StubProvider{config: config, delay: delay}
}

func (p *StubProvider) Load(ctx context.Context) error {
	p.loaded.Store(true)
	return nil
}

func (p *StubProvider) Loaded() bool { return p.loaded.Load() }

func (p *StubProvider) StreamCompletion(ctx context.Context, req Request, onDelta func(string) error) error {
	if !p.loaded.Load() {
		return NewNotLoadedError(p.config.ModelName)
	}
	for _, word := range strings.SplitAfter(stubReply, " ") {
		if p.delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.delay):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if onDelta != nil {
			if err := onDelta(word); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *StubProvider) ReleaseMemory(ctx context.Context) error { return nil }

func (p *StubProvider) Unload(ctx context.Context) error {
	p.loaded.Store(false)
	return nil
}

func (p *StubProvider) Status() ProviderStatus {
	return ProviderStatus{
		Backend:              BackendStub,
		Model:                p.config.ModelName,
		Device:               p.config.Device,
		Loaded:               p.loaded.Load(),
		AcceleratorAvailable: p.config.AcceleratorAvailable(),
		Message:              "stub backend",
	}
}
