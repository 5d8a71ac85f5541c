// Package keyword scores table summaries against a question with bleve's BM25 ranking.
package keyword

// SearchOptions tunes a keyword search. A nil *SearchOptions uses the defaults.
type SearchOptions struct {
	// TableBoost weights matches on the table name field; 1 means no boost.
	TableBoost float64
	// FuzzyEnabled adds edit-distance matching so misspelled identifiers still hit.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance (1 or 2, default 2).
	Fuzziness int
}

// Hit is one matching summary: its position in the index and its table name.
type Hit struct {
	Position int
	Table    string
	Score    float64
}
