package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"
)

// Store persists embeddings across runs, keyed by model and content hash.
type Store interface {
	GetEmbedding(ctx context.Context, model, key string) ([]float32, bool, error)
	PutEmbedding(ctx context.Context, model, key string, vec []float32) error
}

// Cached wraps an Embedder with an in-process LRU and an optional persistent Store.
// Store failures are logged and fall through to the wrapped embedder. It writes on every
// miss, so it serves index builds; questions are embedded without it.
type Cached struct {
	Embedder
	lru    *vectorLRU
	store  Store
	logger *zap.Logger
}

// NewCached wraps inner. store may be nil.
func NewCached(inner Embedder, cacheSize int, store Store, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{
		Embedder: inner,
		lru:      newVectorLRU(cacheSize),
		store:    store,
		logger:   logger,
	}
}

// Stats reports in-process cache activity.
func (c *Cached) Stats() CacheStats { return c.lru.stats() }

// ContentKey is the cache key for text: hex sha256 of its bytes.
func ContentKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Embed returns the cached vector when present, else embeds and records it.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := ContentKey(text)
	if v, ok := c.lookup(ctx, key); ok {
		return v, nil
	}
	v, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.record(ctx, key, v)
	return v, nil
}

// EmbedBatch embeds only the texts that miss both caches, in one inner batch call.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missText []string
	for i, text := range texts {
		keys[i] = ContentKey(text)
		if v, ok := c.lookup(ctx, keys[i]); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missText = append(missText, text)
	}
	if len(missText) == 0 {
		return out, nil
	}
	vecs, err := c.Embedder.EmbedBatch(ctx, missText)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missText) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missText))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		c.record(ctx, keys[i], vecs[j])
	}
	return out, nil
}

func (c *Cached) lookup(ctx context.Context, key string) ([]float32, bool) {
	if v, ok := c.lru.get(key); ok {
		return v, true
	}
	if c.store == nil {
		return nil, false
	}
	v, ok, err := c.store.GetEmbedding(ctx, c.Model(), key)
	if err != nil {
		c.logger.Warn("embedding cache read failed", zap.Error(err))
		return nil, false
	}
	if !ok || len(v) != c.Dimensions() {
		return nil, false
	}
	c.lru.put(key, v)
	return v, true
}

func (c *Cached) record(ctx context.Context, key string, v []float32) {
	c.lru.put(key, v)
	if c.store == nil {
		return
	}
	if err := c.store.PutEmbedding(ctx, c.Model(), key, v); err != nil {
		c.logger.Warn("embedding cache write failed", zap.Error(err))
	}
}
