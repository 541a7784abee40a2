// File: internal/services/ai/interface.go
package ai

import "context"

// Image is an attachment sent alongside the prompt text.
type Image struct {
	MIMEType string
	Data     []byte
}

// Request is a single generation call.
type Request struct {
	System    string
	Prompt    string
	Images    []Image
	MaxTokens int
}

// ProviderStatus represents model and accelerator state
type ProviderStatus struct {
	Backend              string
	Model                string
	Device               string
	Loaded               bool
	AcceleratorAvailable bool
	// MemoryAllocatedBytes is nil when the backend cannot report it.
	MemoryAllocatedBytes *int64
	Message              string
}

// CompletionProvider streams completions for a request
type CompletionProvider interface {
	StreamCompletion(ctx context.Context, req Request, onDelta func(string) error) error
}

// Model is the shared generative model handle. Only the scheduler calls it,
// one generation at a time.
type Model interface {
	CompletionProvider

	// Load prepares the backend. It is safe to call again after success.
	Load(ctx context.Context) error
	Loaded() bool
	// ReleaseMemory drops caches held by the backend between generations.
	ReleaseMemory(ctx context.Context) error
	Unload(ctx context.Context) error
	Status() ProviderStatus
}
