// Package generation builds SQL generation requests from a schema subset and a
// question, calls an OpenAI-compatible chat endpoint, and parses its reply.
package generation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/schemarag/internal/schema"
)

var (
	// ErrResponseParse is returned when the model reply is not {"sql_query": "<sql>"}.
	ErrResponseParse = errors.New("response parse failed")
	// ErrGeneration is returned when the generation service cannot be reached, times
	// out, or answers with an error.
	ErrGeneration = errors.New("generation failed")
)

// DefaultDialect is the SQL dialect named in the prompt when none is configured.
const DefaultDialect = "MySQL"

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the generation input: the question, the selected schema serialized in the
// schema file format, and the chat messages that carry both.
type Request struct {
	Question string          `json:"question"`
	Dialect  string          `json:"dialect"`
	Schema   json.RawMessage `json:"schema"`
	Messages []Message       `json:"messages"`
}

// BuildRequest serializes selected (every column, primary key and foreign key of the
// selected tables, in rank order) and question into the instruction contract.
func BuildRequest(question string, selected *schema.Model, dialect string) (*Request, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}
	if selected == nil {
		return nil, fmt.Errorf("selected schema is required")
	}
	if dialect == "" {
		dialect = DefaultDialect
	}
	compact, err := json.Marshal(selected)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	var indented bytes.Buffer
	if err := json.Indent(&indented, compact, "", "  "); err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}

	return &Request{
		Question: question,
		Dialect:  dialect,
		Schema:   compact,
		Messages: []Message{
			{Role: "system", Content: systemPrompt(dialect)},
			{Role: "user", Content: userPrompt(dialect, indented.String(), question)},
		},
	}, nil
}

func systemPrompt(dialect string) string {
	return fmt.Sprintf("You are a SQL expert. Generate valid %s queries based on the given schema and user questions. Always return valid JSON format.", dialect)
}

func userPrompt(dialect, schemaJSON, question string) string {
	return fmt.Sprintf(`You are a SQL expert. Generate a %[1]s query based on the user's question and the provided database schema.

Database Schema:
%[2]s

User Question: %[3]s

Generate a valid %[1]s query that answers the user's question. Return ONLY a JSON object with the following format:
{
  "sql_query": "YOUR SQL QUERY HERE"
}

Do not include any other text, markdown, or code blocks. Return only valid JSON.`, dialect, schemaJSON, question)
}

// ParseResponse extracts sql_query from raw. raw must be exactly one JSON object
// (surrounding whitespace allowed) whose sql_query is a non-empty string. Other keys
// are ignored.
func ParseResponse(raw string) (string, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	var obj map[string]json.RawMessage
	if err := dec.Decode(&obj); err != nil {
		return "", fmt.Errorf("%w: not a JSON object: %w", ErrResponseParse, err)
	}
	if obj == nil {
		return "", fmt.Errorf("%w: not a JSON object", ErrResponseParse)
	}
	if _, err := dec.Token(); err != io.EOF {
		return "", fmt.Errorf("%w: unexpected data after JSON object", ErrResponseParse)
	}
	field, ok := obj["sql_query"]
	if !ok {
		return "", fmt.Errorf("%w: missing sql_query", ErrResponseParse)
	}
	var sql string
	if err := json.Unmarshal(field, &sql); err != nil {
		return "", fmt.Errorf("%w: sql_query is not a string", ErrResponseParse)
	}
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return "", fmt.Errorf("%w: sql_query is empty", ErrResponseParse)
	}
	return sql, nil
}
