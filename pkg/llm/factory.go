package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vango-go/meetai/pkg/gateway/config"
)

// FromConfig builds the client selected by cfg.LLMProvider.
func FromConfig(ctx context.Context, cfg config.Config, httpClient *http.Client) (Client, error) {
	var opts []Option
	if httpClient != nil {
		opts = append(opts, WithHTTPClient(httpClient))
	}
	switch cfg.LLMProvider {
	case config.LLMProviderAzure:
		return NewAzure(cfg.AzureOpenAIEndpoint, cfg.AzureOpenAIAPIVersion, cfg.AzureOpenAIKey, cfg.AzureOpenAIDeployment, opts...), nil
	case config.LLMProviderOpenAI:
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.OpenAIBaseURL))
		}
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, opts...), nil
	case config.LLMProviderGemini:
		return NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, httpClient)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
}
