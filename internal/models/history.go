package models

import "time"

// QuestionRecord is one entry of the question history.
type QuestionRecord struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Tables    []string  `json:"tables"`
	SQL       string    `json:"sql,omitempty"`
	RowCount  int       `json:"row_count"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
