// Package retrieval turns a question into ranked tables. It owns the ranking policy
// on top of the semantic index: distance threshold, table dedupe and optional
// keyword fusion.
package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/schemarag/internal/keyword"
	"github.com/hyperjump/schemarag/internal/models"
)

// DefaultTopK is the number of tables retrieved when no k is given.
const DefaultTopK = models.DefaultTopK

// Index is the semantic index the retriever delegates to.
type Index interface {
	Search(ctx context.Context, query string, k int) ([]models.RetrievalResult, error)
	Len() int
	Documents() []models.SummaryDocument
}

// Options is the retrieval policy. The zero value delegates straight to the index.
type Options struct {
	TopK int
	// MaxDistance drops results farther than this; 0 disables the threshold.
	MaxDistance float64
	// KeywordWeight > 0 enables hybrid ranking with BM25 over the summaries.
	KeywordWeight  float64
	SemanticWeight float64
	// TableBoost and Fuzzy tune the keyword side of hybrid ranking.
	TableBoost float64
	Fuzzy      bool
	Logger     *zap.Logger
}

// Retriever is safe for concurrent use.
type Retriever struct {
	index    Index
	keywords *keyword.SummaryIndex
	opts     Options
	logger   *zap.Logger
}

// New returns a retriever over ix. With KeywordWeight > 0 it also builds an in-memory
// keyword index of the indexed summaries.
func New(ix Index, opts Options) (*Retriever, error) {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.KeywordWeight < 0 || opts.SemanticWeight < 0 || opts.MaxDistance < 0 {
		return nil, fmt.Errorf("retrieval weights and max distance must not be negative")
	}
	if opts.KeywordWeight > 0 && opts.SemanticWeight == 0 {
		opts.SemanticWeight = 1 - opts.KeywordWeight
		if opts.SemanticWeight < 0 {
			opts.SemanticWeight = 0
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Retriever{index: ix, opts: opts, logger: logger}
	if opts.KeywordWeight > 0 {
		kw, err := keyword.NewSummaryIndex(ix.Documents())
		if err != nil {
			return nil, err
		}
		n, err := kw.DocCount()
		if err != nil {
			kw.Close()
			return nil, err
		}
		if int(n) != ix.Len() {
			kw.Close()
			return nil, fmt.Errorf("keyword index holds %d summaries, semantic index %d", n, ix.Len())
		}
		r.keywords = kw
	}
	return r, nil
}

// Hybrid reports whether keyword fusion is enabled.
func (r *Retriever) Hybrid() bool { return r.keywords != nil }

// Retrieve returns up to k ranked tables for question; k <= 0 uses the configured
// default. Ranks are renumbered from 1 after filtering.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]models.RetrievalResult, error) {
	if k <= 0 {
		k = r.opts.TopK
	}
	var (
		results []models.RetrievalResult
		err     error
	)
	if r.keywords != nil {
		results, err = r.hybrid(ctx, question, k)
	} else {
		results, err = r.semantic(ctx, question, k)
	}
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Rank = i + 1
		r.logger.Debug("Retrieved table",
			zap.String("question", question),
			zap.Int("rank", results[i].Rank),
			zap.String("table", results[i].Table),
			zap.Float64("score", results[i].Score),
			zap.String("summary", results[i].Summary))
	}
	return results, nil
}

func (r *Retriever) semantic(ctx context.Context, question string, k int) ([]models.RetrievalResult, error) {
	hits, err := r.index.Search(ctx, question, k)
	if err != nil {
		return nil, err
	}
	out := r.filter(hits, k)
	// Duplicate tables were dropped; look further down the ranking to refill k.
	if len(out) < len(hits) && len(hits) == k && r.index.Len() > k {
		all, err := r.index.Search(ctx, question, r.index.Len())
		if err != nil {
			return nil, err
		}
		out = r.filter(all, k)
	}
	return out, nil
}

func (r *Retriever) hybrid(ctx context.Context, question string, k int) ([]models.RetrievalResult, error) {
	n := r.index.Len()
	hits, err := r.index.Search(ctx, question, n)
	if err != nil {
		return nil, err
	}
	kw, err := r.keywords.Search(ctx, question, n, &keyword.SearchOptions{TableBoost: r.opts.TableBoost, FuzzyEnabled: r.opts.Fuzzy})
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	fused := fuse(hits, normalizeKeywordScores(kw), r.opts.KeywordWeight, r.opts.SemanticWeight)
	ranked := make([]models.RetrievalResult, len(fused))
	for i, f := range fused {
		ranked[i] = f.result
		ranked[i].Relevance = f.score
	}
	return r.filter(ranked, k), nil
}

// filter applies the distance threshold and table dedupe, keeping at most k results.
func (r *Retriever) filter(results []models.RetrievalResult, k int) []models.RetrievalResult {
	out := make([]models.RetrievalResult, 0, min(k, len(results)))
	seen := make(map[string]struct{}, len(results))
	for _, res := range results {
		if len(out) == k {
			break
		}
		if r.opts.MaxDistance > 0 && res.Score > r.opts.MaxDistance {
			continue
		}
		if _, dup := seen[res.Table]; dup {
			continue
		}
		seen[res.Table] = struct{}{}
		out = append(out, res)
	}
	return out
}

// Close releases the keyword index, if any.
func (r *Retriever) Close() error {
	if r.keywords != nil {
		return r.keywords.Close()
	}
	return nil
}
