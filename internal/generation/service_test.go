package generation

import (
	"context"
	"errors"
	"testing"
)

type scriptedGenerator struct {
	replies  []string
	err      error
	requests []*Request
}

func (g *scriptedGenerator) Generate(_ context.Context, req *Request) (string, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return "", g.err
	}
	reply := g.replies[0]
	if len(g.replies) > 1 {
		g.replies = g.replies[1:]
	}
	return reply, nil
}

func TestService_GenerateSQL(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{`{"sql_query": "SELECT * FROM patients"}`}}
	s := NewService(gen, "", 1, nil)
	sql, err := s.GenerateSQL(context.Background(), "show me all patients", selected(t, "patients"))
	if err != nil {
		t.Fatal(err)
	}
	if sql != "SELECT * FROM patients" {
		t.Errorf("sql = %q", sql)
	}
}

func TestService_noRetryByDefault(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"nope", `{"sql_query": "SELECT 1"}`}}
	s := NewService(gen, "", 0, nil)
	_, err := s.GenerateSQL(context.Background(), "q", selected(t, "patients"))
	if !errors.Is(err, ErrResponseParse) {
		t.Fatalf("err = %v", err)
	}
	if len(gen.requests) != 1 {
		t.Errorf("calls = %d, want 1", len(gen.requests))
	}
}

func TestService_retryWithFeedback(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"```sql\nSELECT 1\n```", `{"sql_query": "SELECT 1"}`}}
	s := NewService(gen, "", 3, nil)
	sql, err := s.GenerateSQL(context.Background(), "q", selected(t, "patients"))
	if err != nil {
		t.Fatal(err)
	}
	if sql != "SELECT 1" || len(gen.requests) != 2 {
		t.Fatalf("sql = %q, calls = %d", sql, len(gen.requests))
	}
	second := gen.requests[1].Messages
	if len(second) != 4 || second[2].Role != "assistant" || second[2].Content != "```sql\nSELECT 1\n```" {
		t.Errorf("feedback messages = %+v", second)
	}
	if len(gen.requests[0].Messages) != 2 {
		t.Error("first request must not be mutated")
	}
}

func TestService_retryExhausted(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"{}"}}
	s := NewService(gen, "", 2, nil)
	if _, err := s.GenerateSQL(context.Background(), "q", selected(t, "patients")); !errors.Is(err, ErrResponseParse) {
		t.Fatalf("err = %v", err)
	}
	if len(gen.requests) != 2 {
		t.Errorf("calls = %d, want 2", len(gen.requests))
	}
}

func TestService_generationErrorNotRetried(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("connection refused")}
	s := NewService(gen, "", 3, nil)
	_, err := s.GenerateSQL(context.Background(), "q", selected(t, "patients"))
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("err = %v, want ErrGeneration", err)
	}
	if len(gen.requests) != 1 {
		t.Errorf("calls = %d, want 1", len(gen.requests))
	}
}
