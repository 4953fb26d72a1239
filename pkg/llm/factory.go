package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cubelens/cubelens-engine/pkg/config"
)

// NewGenerationClient creates the generation collaborator client selected by
// configuration.
func NewGenerationClient(cfg *config.AIConfig, logger *zap.Logger) (LLMClient, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicClient(cfg.LLMAPIKey, cfg.LLMModel, logger)
	case "openai":
		return NewClient(&Config{
			Endpoint: cfg.LLMBaseURL,
			Model:    cfg.LLMModel,
			APIKey:   cfg.LLMAPIKey,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}

// NewEmbeddingClient creates the embedding collaborator client. Embeddings
// always go through an OpenAI-compatible endpoint regardless of the
// generation provider.
func NewEmbeddingClient(cfg *config.AIConfig, logger *zap.Logger) (LLMClient, error) {
	return NewClient(&Config{
		Endpoint: cfg.EmbeddingBaseURL,
		Model:    cfg.EmbeddingModel,
		APIKey:   cfg.EmbeddingAPIKey,
	}, logger)
}
