package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/schemarag/internal/config"
	"github.com/hyperjump/schemarag/internal/embedding"
	"github.com/hyperjump/schemarag/internal/execute"
	"github.com/hyperjump/schemarag/internal/generation"
	"github.com/hyperjump/schemarag/internal/index"
	"github.com/hyperjump/schemarag/internal/retrieval"
	"github.com/hyperjump/schemarag/internal/schema"
	"github.com/hyperjump/schemarag/internal/storage"
)

// FromConfig loads the schema and the persisted index and wires a Session from cfg.
// A missing or incompatible index fails with index.ErrLoad; it is never replaced by an
// empty one. Execution is enabled only when the database section is usable.
func FromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m, err := schema.Load(cfg.Schema.Path)
	if err != nil {
		return nil, err
	}

	var closers []func() error
	fail := func(err error) (*Session, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	store, err := storage.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, store.Close)

	// Questions are embedded without the cache so searches never write shared state.
	emb, err := embedding.New(cfg.Embedding)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", index.ErrLoad, err))
	}
	closers = append(closers, emb.Close)

	ix, err := index.Load(cfg.Storage.IndexPath, emb)
	if err != nil {
		return fail(err)
	}

	ret, err := retrieval.New(ix, retrieval.Options{
		TopK:           cfg.Retrieval.TopK,
		MaxDistance:    cfg.Retrieval.MaxDistance,
		KeywordWeight:  cfg.Retrieval.KeywordWeight,
		SemanticWeight: cfg.Retrieval.SemanticWeight,
		TableBoost:     cfg.Retrieval.TableBoost,
		Fuzzy:          cfg.Retrieval.Fuzzy,
		Logger:         logger,
	})
	if err != nil {
		return fail(err)
	}
	closers = append(closers, ret.Close)

	client, err := generation.NewChatClient(cfg.Generation)
	if err != nil {
		return fail(err)
	}
	gen := generation.NewService(client, cfg.Generation.Dialect, cfg.Generation.MaxAttempts, logger)

	var exec Executor
	if e, err := execute.New(execute.FromConfig(cfg.Database), logger); err != nil {
		logger.Debug("Query execution disabled", zap.Error(err))
	} else {
		exec = e
	}

	s, err := NewSession(Deps{
		Schema:    m,
		Retriever: ret,
		Generator: gen,
		Executor:  exec,
		History:   store,
		Index:     ix,
		Logger:    logger,
		TopK:      cfg.Retrieval.TopK,
	})
	if err != nil {
		return fail(err)
	}
	s.closers = closers
	logger.Info("Session ready",
		zap.Int("tables", m.Len()),
		zap.Int("indexed", ix.Len()),
		zap.String("model", ix.Model()),
		zap.Bool("hybrid", ret.Hybrid()),
		zap.Bool("execution", exec != nil))
	return s, nil
}
