package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/schemarag/internal/config"
	"github.com/hyperjump/schemarag/internal/embedding"
	"github.com/hyperjump/schemarag/internal/index"
	"github.com/hyperjump/schemarag/internal/schema"
	"github.com/hyperjump/schemarag/internal/storage"
	"github.com/hyperjump/schemarag/internal/summary"
	"github.com/hyperjump/schemarag/internal/vector"
)

// BuildIndex summarizes every table of m and embeds the summaries into a new index.
func BuildIndex(ctx context.Context, m *schema.Model, emb embedding.Embedder, opts index.Options) (*index.Index, error) {
	if m == nil || m.Len() == 0 {
		return nil, fmt.Errorf("%w: schema has no tables", index.ErrBuild)
	}
	return index.Build(ctx, emb, summary.Documents(m), opts)
}

// NewEmbedder creates the configured embedder behind the in-process LRU and, when store
// is non-nil, the persistent embedding cache.
func NewEmbedder(cfg config.EmbeddingConfig, store embedding.Store, logger *zap.Logger) (embedding.Embedder, error) {
	inner, err := embedding.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedding.NewCached(inner, cfg.CacheSize, store, logger), nil
}

// BuildReport describes a finished offline build.
type BuildReport struct {
	Tables     int
	Model      string
	Metric     vector.Metric
	Dimensions int
	Pruned     int64
	Path       string
	Duration   time.Duration
}

// Rebuild loads the schema file, builds the index, saves it under cfg.Storage.IndexPath and
// drops cached embeddings that no current summary uses.
func Rebuild(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*BuildReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()
	m, err := schema.Load(cfg.Schema.Path)
	if err != nil {
		return nil, err
	}
	metric, err := vector.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", index.ErrBuild, err)
	}

	store, err := storage.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	emb, err := NewEmbedder(cfg.Embedding, store, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", index.ErrBuild, err)
	}
	defer emb.Close()

	ix, err := BuildIndex(ctx, m, emb, index.Options{Metric: metric, Workers: cfg.Embedding.Workers, Logger: logger})
	if err != nil {
		return nil, err
	}
	if err := ix.Save(cfg.Storage.IndexPath); err != nil {
		return nil, err
	}
	if c, ok := emb.(*embedding.Cached); ok {
		st := c.Stats()
		logger.Debug("Embedding cache", zap.Int("entries", st.Entries), zap.Uint64("hits", st.Hits), zap.Uint64("misses", st.Misses))
	}

	keep := make([]string, 0, ix.Len())
	for _, doc := range ix.Documents() {
		keep = append(keep, embedding.ContentKey(doc.Content))
	}
	pruned, err := store.PruneEmbeddings(ctx, ix.Model(), keep)
	if err != nil {
		logger.Warn("Failed to prune embedding cache", zap.Error(err))
	}

	report := &BuildReport{
		Tables:     ix.Len(),
		Model:      ix.Model(),
		Metric:     ix.Metric(),
		Dimensions: ix.Dimensions(),
		Pruned:     pruned,
		Path:       cfg.Storage.IndexPath,
		Duration:   time.Since(start),
	}
	logger.Info("Index built",
		zap.Int("tables", report.Tables),
		zap.String("model", report.Model),
		zap.String("path", report.Path),
		zap.Duration("duration", report.Duration))
	return report, nil
}
