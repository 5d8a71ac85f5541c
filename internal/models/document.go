// Package models defines core data structures shared by the retrieval pipeline.
package models

// SummaryDocument is the embeddable description of one table.
// Table is the only metadata; it binds the document back to the schema.
type SummaryDocument struct {
	Table   string `json:"table"`
	Content string `json:"summary"`
}
