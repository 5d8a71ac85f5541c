package schema

import "github.com/hyperjump/schemarag/internal/models"

// Select projects m down to the tables named by results, in rank order.
// Tables missing from m (a stale index) are skipped, and a table named twice is kept
// once at its best rank. The returned Model shares the original *Table values; nothing
// is copied or altered.
func Select(m *Model, results []models.RetrievalResult) *Model {
	selected := &Model{
		tables: make(map[string]*Table, len(results)),
		order:  make([]string, 0, len(results)),
	}
	for _, r := range results {
		t, ok := m.tables[r.Table]
		if !ok {
			continue
		}
		if _, dup := selected.tables[r.Table]; dup {
			continue
		}
		selected.tables[r.Table] = t
		selected.order = append(selected.order, r.Table)
	}
	return selected
}
