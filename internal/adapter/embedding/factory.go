package embedding

import (
	"context"
	"fmt"

	"dupguard/config"
	"dupguard/internal/domain"
	"dupguard/internal/port"
)

// New builds the configured provider wrapped in the LRU cache.
func New(ctx context.Context, cfg config.EmbeddingConfig) (port.Embedder, error) {
	var (
		e   port.Embedder
		err error
	)
	switch cfg.Provider {
	case "", "local":
		e = NewHashingEmbedder(cfg.Dimension, cfg.Model)
	case "openai":
		apiKeyEnv := cfg.APIKeyEnv
		if apiKeyEnv == "" {
			apiKeyEnv = "OPENAI_API_KEY"
		}
		e, err = NewOpenAIEmbedder(apiKeyEnv, cfg.Model, cfg.BaseURL, cfg.Dimension, cfg.Timeout)
	case "ollama":
		e = NewOllamaEmbedder(cfg.Model, cfg.BaseURL, cfg.Dimension, cfg.Timeout)
	case "gemini":
		apiKeyEnv := cfg.APIKeyEnv
		if apiKeyEnv == "" {
			apiKeyEnv = "GEMINI_API_KEY"
		}
		e, err = NewGeminiEmbedder(ctx, apiKeyEnv, cfg.Model, cfg.Dimension)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", domain.ErrConfiguration, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewCached(e, cfg.CacheSize, cfg.CacheTTL), nil
}
