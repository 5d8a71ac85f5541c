// Package index implements the semantic index over table summaries: build from
// documents, nearest-neighbour search, and persistence to a directory.
package index

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/schemarag/internal/embedding"
	"github.com/hyperjump/schemarag/internal/models"
	"github.com/hyperjump/schemarag/internal/vector"
)

var (
	// ErrBuild is returned when an index cannot be built. No partial index is produced.
	ErrBuild = errors.New("index build failed")
	// ErrLoad is returned when a persisted index is missing, corrupt or incompatible.
	ErrLoad = errors.New("index load failed")
)

// Options configures Build.
type Options struct {
	Metric  vector.Metric
	Workers int // concurrent embedding batches; <= 1 embeds in one batch
	Logger  *zap.Logger
}

// Index binds each summary document to its embedding. It is immutable after Build or
// Load, so Search is safe for concurrent use.
type Index struct {
	embedder embedding.Embedder
	model    string
	vectors  *vector.MemoryIndex
	docs     []models.SummaryDocument
}

// Build embeds every document and returns a searchable index. Document i is bound to
// vector i.
func Build(ctx context.Context, emb embedding.Embedder, docs []models.SummaryDocument, opts Options) (*Index, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no documents", ErrBuild)
	}
	if emb == nil {
		return nil, fmt.Errorf("%w: no embedder", ErrBuild)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vecs, err := embedAll(ctx, emb, texts, opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuild, err)
	}
	mem, err := vector.NewMemoryIndex(opts.Metric, emb.Dimensions(), vecs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuild, err)
	}

	logger.Info("Semantic index built",
		zap.Int("documents", len(docs)),
		zap.String("model", emb.Model()),
		zap.String("metric", string(mem.Metric())))
	return &Index{
		embedder: emb,
		model:    emb.Model(),
		vectors:  mem,
		docs:     append([]models.SummaryDocument(nil), docs...),
	}, nil
}

// embedAll splits texts into contiguous chunks embedded concurrently. Output order
// follows input order.
func embedAll(ctx context.Context, emb embedding.Embedder, texts []string, workers int) ([][]float32, error) {
	if workers <= 1 || len(texts) < 2 {
		vecs, err := emb.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
		}
		return vecs, nil
	}
	if workers > len(texts) {
		workers = len(texts)
	}
	out := make([][]float32, len(texts))
	size := (len(texts) + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(texts); start += size {
		start, end := start, min(start+size, len(texts))
		g.Go(func() error {
			vecs, err := emb.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), end-start)
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Search embeds query with the build-time embedder and returns up to k documents by
// ascending distance. Rank starts at 1. k larger than Len returns every document.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]models.RetrievalResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	qv, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := ix.vectors.Search(qv, k)
	if err != nil {
		return nil, err
	}
	results := make([]models.RetrievalResult, len(hits))
	for i, h := range hits {
		doc := ix.docs[h.Position]
		results[i] = models.RetrievalResult{
			Table:   doc.Table,
			Score:   h.Distance,
			Rank:    i + 1,
			Summary: doc.Content,
		}
	}
	return results, nil
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int { return len(ix.docs) }

// Model returns the embedding model identity the index was built with.
func (ix *Index) Model() string { return ix.model }

// Metric returns the distance metric.
func (ix *Index) Metric() vector.Metric { return ix.vectors.Metric() }

// Dimensions returns the vector dimension.
func (ix *Index) Dimensions() int { return ix.vectors.Dimensions() }

// Documents returns a copy of the indexed documents in index order.
func (ix *Index) Documents() []models.SummaryDocument {
	return append([]models.SummaryDocument(nil), ix.docs...)
}
