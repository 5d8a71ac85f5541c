// Package embedding provides text embedding models and caching.
package embedding

import "context"

// Embedder produces vector embeddings for text. Model identifies the embedding model;
// vectors from different models are never comparable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
	Close() error
}
