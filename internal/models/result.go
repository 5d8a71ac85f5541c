package models

import "time"

// RetrievalResult is one ranked table for a question. Score is the vector distance
// under the index metric: lower is more similar. Rank starts at 1.
type RetrievalResult struct {
	Table     string  `json:"table"`
	Score     float64 `json:"score"`
	Rank      int     `json:"rank"`
	Summary   string  `json:"summary,omitempty"`
	Relevance float64 `json:"relevance,omitempty"` // fused score, set only by hybrid retrieval
}

// TableNames returns the table names of results in rank order.
func TableNames(results []RetrievalResult) []string {
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Table
	}
	return names
}

// Answer is the outcome of one question: what was retrieved, what was generated,
// and optionally what the database returned.
type Answer struct {
	ID        string            `json:"id"`
	Question  string            `json:"question"`
	Retrieved []RetrievalResult `json:"retrieved"`
	Tables    []string          `json:"tables"`
	SQL       string            `json:"sql"`
	Result    *QueryResult      `json:"result,omitempty"`
	Duration  time.Duration     `json:"duration_ns"`
}
