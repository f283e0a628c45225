package llm

import (
	"context"
	"fmt"
)

// Provider is an interface for LLM API providers
type Provider interface {
	// Call makes an LLM API call
	Call(ctx context.Context, request Request) (*Response, error)

	// Provider returns the provider name
	Provider() string
}

// ProviderFactory creates providers from profiles.
type ProviderFactory interface {
	NewProvider(profile Profile) (Provider, error)
}

// DefaultFactory builds the SDK-backed providers.
type DefaultFactory struct{}

// NewProvider creates a new LLM provider based on the profile
func (DefaultFactory) NewProvider(profile Profile) (Provider, error) {
	if profile.APIKey == "" {
		return nil, fmt.Errorf("profile %s has no API key", profile.ID)
	}
	switch profile.Provider {
	case "anthropic":
		return NewAnthropicProvider(profile.APIKey), nil
	case "openai":
		return NewOpenAIProvider(profile.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", profile.Provider)
	}
}
