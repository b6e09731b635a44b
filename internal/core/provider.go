package core

import (
	"context"
	"fmt"

	"practicum.dev/assistant-gateway/internal/config"
)

// NewModelBackend builds the provider selected by LLM_PROVIDER.
func NewModelBackend(ctx context.Context, cfg *config.Config) (ModelBackend, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		return NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiEmbeddingModel)
	case config.ProviderOpenAI:
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.OpenAIEmbeddingModel), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.LLMProvider)
	}
}
