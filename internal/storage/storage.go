// Package storage persists embedding vectors and the question history.
package storage

import (
	"context"

	"github.com/hyperjump/schemarag/internal/models"
)

// Storage defines embedding cache and question history persistence.
type Storage interface {
	// Embedding cache, keyed by model name and content hash
	GetEmbedding(ctx context.Context, model, key string) ([]float32, bool, error)
	PutEmbedding(ctx context.Context, model, key string, vec []float32) error
	CountEmbeddings(ctx context.Context) (int64, error)
	PruneEmbeddings(ctx context.Context, model string, keep []string) (int64, error)

	// Question history
	CreateQuestion(ctx context.Context, rec *models.QuestionRecord) error
	GetQuestion(ctx context.Context, id string) (*models.QuestionRecord, error)
	ListQuestions(ctx context.Context, offset, limit int) ([]*models.QuestionRecord, error)
	CountQuestions(ctx context.Context) (int64, error)

	Close() error
}

var _ Storage = (*SQLiteStorage)(nil)

// Open returns the SQLite-backed Storage at dbPath.
func Open(dbPath string) (Storage, error) {
	return NewSQLiteStorage(dbPath)
}
