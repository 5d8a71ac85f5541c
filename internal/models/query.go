package models

import (
	"fmt"
	"strings"
)

// DefaultTopK is the number of tables retrieved when a request does not say.
const DefaultTopK = 3

// MaxTopK caps the number of tables a single request may retrieve.
const MaxTopK = 50

// AskRequest is a natural-language question submitted to the pipeline.
type AskRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
	Execute  bool   `json:"execute,omitempty"`
}

// Validate ensures the request has a question and normalizes TopK.
func (r *AskRequest) Validate() error {
	r.Question = strings.TrimSpace(r.Question)
	if r.Question == "" {
		return fmt.Errorf("question cannot be empty")
	}
	if r.TopK <= 0 {
		r.TopK = DefaultTopK
	}
	if r.TopK > MaxTopK {
		r.TopK = MaxTopK
	}
	return nil
}
