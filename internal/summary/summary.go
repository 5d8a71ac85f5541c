// Package summary renders table metadata into natural-language descriptions for embedding.
package summary

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/schemarag/internal/models"
	"github.com/hyperjump/schemarag/internal/schema"
)

// Summarize describes t in at most three sentences: the table and its columns, the
// primary key, and the foreign keys. It is a pure function of t; column types are ignored.
func Summarize(t *schema.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "This table %s has columns %s.", t.Name, strings.Join(t.ColumnNames(), ", "))

	if pks := primaryKeys(t); len(pks) > 0 {
		fmt.Fprintf(&b, " The primary key in this table is %s.", strings.Join(pks, ", "))
	}

	if fks := foreignKeys(t); len(fks) > 0 {
		fmt.Fprintf(&b, " Foreign keys: %s.", strings.Join(fks, "; "))
	}
	return b.String()
}

// primaryKeys returns the distinct primary key columns in column declaration order.
// Keys that are not declared columns sort last in their listed order.
func primaryKeys(t *schema.Table) []string {
	seen := make(map[string]bool, len(t.PrimaryKeys))
	pks := make([]string, 0, len(t.PrimaryKeys))
	for _, pk := range t.PrimaryKeys {
		if !seen[pk] {
			seen[pk] = true
			pks = append(pks, pk)
		}
	}
	pos := func(name string) int {
		if i := t.ColumnIndex(name); i >= 0 {
			return i
		}
		return len(t.Columns)
	}
	sort.SliceStable(pks, func(i, j int) bool { return pos(pks[i]) < pos(pks[j]) })
	return pks
}

func foreignKeys(t *schema.Table) []string {
	seen := make(map[schema.ForeignKey]bool, len(t.ForeignKeys))
	clauses := make([]string, 0, len(t.ForeignKeys))
	for _, fk := range t.ForeignKeys {
		if seen[fk] {
			continue
		}
		seen[fk] = true
		clauses = append(clauses, fmt.Sprintf("%s references %s.%s", fk.Column, fk.ReferencesTable, fk.ReferencesColumn))
	}
	return clauses
}

// Documents summarizes every table of m. Document i describes table i in model order.
func Documents(m *schema.Model) []models.SummaryDocument {
	tables := m.Tables()
	docs := make([]models.SummaryDocument, len(tables))
	for i, t := range tables {
		docs[i] = models.SummaryDocument{Table: t.Name, Content: Summarize(t)}
	}
	return docs
}
