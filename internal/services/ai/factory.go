// File: internal/services/ai/factory.go
package ai

// NewModel builds the backend selected by config.Backend.
func NewModel(config *Config) (Model, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch config.Backend {
	case BackendOpenAI:
		return NewOpenAIProvider(config), nil
	case BackendGemini:
		return NewGeminiProvider(config), nil
	default:
		return NewStubProvider(config, 0), nil
	}
}
