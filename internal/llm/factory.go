package llm

import (
	"context"
	"fmt"
	"time"
)

// Config selects and configures the provider.
type Config struct {
	// Provider is "gemini", "openai" or "mock".
	Provider string
	BaseURL  string // openai only
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Validate checks that the selected provider has what it needs.
func (c Config) Validate() error {
	switch c.Provider {
	case "gemini":
		if c.APIKey == "" {
			return fmt.Errorf("--llm-key is required for the gemini provider")
		}
	case "openai":
		if c.Model == "" {
			return fmt.Errorf("--llm-model is required for the openai provider")
		}
	case "mock":
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	return nil
}

// NewProvider creates a Provider from configuration and wraps it with event
// logging when rec is non-nil.
func NewProvider(ctx context.Context, cfg Config, rec EventRecorder) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var base Provider
	var err error
	switch cfg.Provider {
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.APIKey, cfg.Model)
	case "openai":
		base, err = NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case "mock":
		base = NewMockProvider()
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	if rec == nil {
		return base, nil
	}
	return WithLogging(base, rec), nil
}
