package generation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/schemarag/internal/schema"
)

// Service runs BuildRequest, Generate and ParseResponse. With MaxAttempts > 1 an
// unparseable reply is sent back to the model with a correction request.
type Service struct {
	generator   Generator
	dialect     string
	maxAttempts int
	logger      *zap.Logger
}

// NewService returns a Service. maxAttempts < 1 means one attempt.
func NewService(gen Generator, dialect string, maxAttempts int, logger *zap.Logger) *Service {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{generator: gen, dialect: dialect, maxAttempts: maxAttempts, logger: logger}
}

// GenerateSQL returns the SQL text for question over selected.
func (s *Service) GenerateSQL(ctx context.Context, question string, selected *schema.Model) (string, error) {
	req, err := BuildRequest(question, selected, s.dialect)
	if err != nil {
		return "", err
	}
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		raw, err := s.generator.Generate(ctx, req)
		if err != nil {
			if !errors.Is(err, ErrGeneration) {
				err = fmt.Errorf("%w: %w", ErrGeneration, err)
			}
			return "", err
		}
		sql, err := ParseResponse(raw)
		if err == nil {
			s.logger.Debug("Generated SQL", zap.String("sql", sql), zap.Int("attempt", attempt))
			return sql, nil
		}
		lastErr = err
		s.logger.Warn("Unparseable generation response",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.maxAttempts),
			zap.Error(err))
		req = withFeedback(req, raw, err)
	}
	return "", lastErr
}

// withFeedback returns a copy of req with the bad reply and a correction appended.
func withFeedback(req *Request, raw string, parseErr error) *Request {
	next := *req
	next.Messages = append(append([]Message(nil), req.Messages...),
		Message{Role: "assistant", Content: raw},
		Message{Role: "user", Content: fmt.Sprintf(
			"Your previous reply could not be used (%v). Reply with only a JSON object of the form {\"sql_query\": \"<%s query>\"} and nothing else.",
			parseErr, next.Dialect)},
	)
	return &next
}
