// Package pipeline wires retrieval, schema selection, SQL generation and execution
// into one explicit, reusable session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/schemarag/internal/models"
	"github.com/hyperjump/schemarag/internal/schema"
	"github.com/hyperjump/schemarag/internal/vector"
)

// ErrNoExecutor is returned by Ask when execution is requested but no database is configured.
var ErrNoExecutor = errors.New("query execution is not configured")

// Retriever ranks tables for a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string, k int) ([]models.RetrievalResult, error)
}

// SQLGenerator turns a question and a schema subset into SQL text.
type SQLGenerator interface {
	GenerateSQL(ctx context.Context, question string, selected *schema.Model) (string, error)
}

// Executor runs SQL against the target database.
type Executor interface {
	Execute(ctx context.Context, query string) (*models.QueryResult, error)
}

// History records and lists answered questions.
type History interface {
	CreateQuestion(ctx context.Context, rec *models.QuestionRecord) error
	ListQuestions(ctx context.Context, offset, limit int) ([]*models.QuestionRecord, error)
	CountQuestions(ctx context.Context) (int64, error)
}

// IndexInfo describes the loaded semantic index.
type IndexInfo interface {
	Len() int
	Model() string
	Metric() vector.Metric
	Dimensions() int
}

// Deps are the collaborators of a Session. Schema, Retriever and Generator are required.
type Deps struct {
	Schema    *schema.Model
	Retriever Retriever
	Generator SQLGenerator
	Executor  Executor // optional
	History   History  // optional
	Index     IndexInfo
	Logger    *zap.Logger
	TopK      int
}

// Session answers questions. It holds no per-question state, so concurrent calls are safe
// as long as the collaborators are.
type Session struct {
	schema    *schema.Model
	retriever Retriever
	generator SQLGenerator
	executor  Executor
	history   History
	index     IndexInfo
	logger    *zap.Logger
	topK      int
	closers   []func() error
}

// NewSession validates deps and returns a Session.
func NewSession(d Deps) (*Session, error) {
	if d.Schema == nil {
		return nil, fmt.Errorf("schema is required")
	}
	if d.Retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if d.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	topK := d.TopK
	if topK <= 0 {
		topK = models.DefaultTopK
	}
	return &Session{
		schema:    d.Schema,
		retriever: d.Retriever,
		generator: d.Generator,
		executor:  d.Executor,
		history:   d.History,
		index:     d.Index,
		logger:    logger,
		topK:      topK,
	}, nil
}

// Schema returns the full schema model.
func (s *Session) Schema() *schema.Model { return s.schema }

// History returns the question history, or nil when none is configured.
func (s *Session) History() History { return s.history }

// CanExecute reports whether Ask can run generated SQL.
func (s *Session) CanExecute() bool { return s.executor != nil }

// Retrieve ranks the k most relevant tables for question. k <= 0 uses the session default.
func (s *Session) Retrieve(ctx context.Context, question string, k int) ([]models.RetrievalResult, error) {
	if k <= 0 {
		k = s.topK
	}
	return s.retriever.Retrieve(ctx, question, k)
}

// GenerateSQL retrieves the relevant tables, reduces the schema to them and generates SQL.
// Retrieved tables missing from the schema are dropped by the selection.
func (s *Session) GenerateSQL(ctx context.Context, question string, k int) (*models.Answer, error) {
	start := time.Now()
	results, err := s.Retrieve(ctx, question, k)
	if err != nil {
		return nil, err
	}
	selected := schema.Select(s.schema, results)
	answer := &models.Answer{
		ID:        uuid.New().String(),
		Question:  question,
		Retrieved: results,
		Tables:    selected.Names(),
	}
	sql, err := s.generator.GenerateSQL(ctx, question, selected)
	if err != nil {
		answer.Duration = time.Since(start)
		return answer, err
	}
	answer.SQL = sql
	answer.Duration = time.Since(start)
	return answer, nil
}

// Ask answers req end to end and records the outcome in the history. On failure the
// partial answer (retrieved tables, and SQL when it was generated) is returned with the
// error; a failed execution never carries rows.
func (s *Session) Ask(ctx context.Context, req models.AskRequest) (*models.Answer, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	answer, err := s.GenerateSQL(ctx, req.Question, req.TopK)
	if err == nil && req.Execute {
		if s.executor == nil {
			err = ErrNoExecutor
		} else {
			var result *models.QueryResult
			result, err = s.executor.Execute(ctx, answer.SQL)
			if err == nil {
				answer.Result = result
			}
		}
	}
	if answer != nil {
		answer.Duration = time.Since(start)
		s.record(ctx, answer, err)
	}
	if err != nil {
		s.logger.Warn("Question failed", zap.String("question", req.Question), zap.Error(err))
		return answer, err
	}
	s.logger.Info("Question answered",
		zap.String("request_id", answer.ID),
		zap.Strings("tables", answer.Tables),
		zap.Duration("duration", answer.Duration))
	return answer, nil
}

func (s *Session) record(ctx context.Context, answer *models.Answer, askErr error) {
	if s.history == nil {
		return
	}
	rec := &models.QuestionRecord{
		ID:       answer.ID,
		Question: answer.Question,
		Tables:   answer.Tables,
		SQL:      answer.SQL,
		RowCount: answer.Result.RowCount(),
	}
	if askErr != nil {
		rec.Error = askErr.Error()
	}
	if err := s.history.CreateQuestion(ctx, rec); err != nil {
		s.logger.Warn("Failed to record question", zap.String("request_id", answer.ID), zap.Error(err))
	}
}

// Status summarizes what the session is serving.
type Status struct {
	Tables     int    `json:"tables"`
	Indexed    int    `json:"indexed_documents"`
	Model      string `json:"embedding_model,omitempty"`
	Metric     string `json:"metric,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`
	Hybrid     bool   `json:"hybrid"`
	Execution  bool   `json:"execution"`
	Questions  int64  `json:"questions"`
}

// Status reports schema, index and history counts.
func (s *Session) Status(ctx context.Context) (*Status, error) {
	st := &Status{Tables: s.schema.Len(), Execution: s.executor != nil}
	if s.index != nil {
		st.Indexed = s.index.Len()
		st.Model = s.index.Model()
		st.Metric = string(s.index.Metric())
		st.Dimensions = s.index.Dimensions()
	}
	if h, ok := s.retriever.(interface{ Hybrid() bool }); ok {
		st.Hybrid = h.Hybrid()
	}
	if s.history != nil {
		n, err := s.history.CountQuestions(ctx)
		if err != nil {
			return nil, err
		}
		st.Questions = n
	}
	return st, nil
}

// Close releases the resources acquired by FromConfig.
func (s *Session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
