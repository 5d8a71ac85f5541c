package embedding

import (
	"fmt"

	"github.com/hyperjump/schemarag/internal/config"
)

// New builds the embedder selected by cfg.Provider.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "", "hashing":
		return NewHashEmbedder(cfg.Dimensions), nil
	case "onnx":
		return NewONNXEmbedder(cfg.Model, cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
	case "http":
		return NewHTTPEmbedder(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dimensions, 0)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
