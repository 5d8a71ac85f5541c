// Package schema holds the in-memory model of a relational schema: tables, their
// columns in declaration order, primary keys and foreign keys.
package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrFileNotFound is returned when the schema file does not exist.
	ErrFileNotFound = errors.New("schema file not found")
	// ErrFormat is returned when the schema data is malformed or misses a required field.
	ErrFormat = errors.New("invalid schema format")
)

// Column is a table column. Type is kept exactly as reported by the source database.
type Column struct {
	Name string
	Type string
}

// ForeignKey links a column of the owning table to a column of another (or the same) table.
// Referential integrity is not checked.
type ForeignKey struct {
	Column           string `json:"column" yaml:"column"`
	ReferencesTable  string `json:"references_table" yaml:"references_table"`
	ReferencesColumn string `json:"references_column" yaml:"references_column"`
}

// Table is the metadata of one table. Columns are in declaration order.
type Table struct {
	Name        string
	Columns     []Column
	PrimaryKeys []string
	ForeignKeys []ForeignKey
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the declaration position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (t *Table) validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: table name is empty", ErrFormat)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("%w: table %q has a column with an empty name", ErrFormat, t.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: table %q declares column %q twice", ErrFormat, t.Name, c.Name)
		}
		seen[c.Name] = true
	}
	for _, pk := range t.PrimaryKeys {
		if !seen[pk] {
			return fmt.Errorf("%w: table %q primary key %q is not a column", ErrFormat, t.Name, pk)
		}
	}
	for _, fk := range t.ForeignKeys {
		if !seen[fk.Column] {
			return fmt.Errorf("%w: table %q foreign key column %q is not a column", ErrFormat, t.Name, fk.Column)
		}
		if fk.ReferencesTable == "" || fk.ReferencesColumn == "" {
			return fmt.Errorf("%w: table %q foreign key on %q has an empty reference", ErrFormat, t.Name, fk.Column)
		}
	}
	return nil
}

// Model maps table names to tables and remembers the order tables were declared in.
// A Model is read-only once built and safe for concurrent use.
type Model struct {
	tables map[string]*Table
	order  []string
}

// NewModel validates tables and builds a Model in the given order.
// Duplicate table names, primary keys that are not columns and foreign keys on
// unknown columns are rejected with ErrFormat.
func NewModel(tables ...*Table) (*Model, error) {
	m := &Model{
		tables: make(map[string]*Table, len(tables)),
		order:  make([]string, 0, len(tables)),
	}
	for _, t := range tables {
		if t == nil {
			return nil, fmt.Errorf("%w: nil table", ErrFormat)
		}
		if err := t.validate(); err != nil {
			return nil, err
		}
		if _, dup := m.tables[t.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate table %q", ErrFormat, t.Name)
		}
		m.tables[t.Name] = t
		m.order = append(m.order, t.Name)
	}
	return m, nil
}

// Len returns the number of tables.
func (m *Model) Len() int {
	return len(m.order)
}

// Table returns the named table.
func (m *Model) Table(name string) (*Table, bool) {
	t, ok := m.tables[name]
	return t, ok
}

// Names returns table names in model order.
func (m *Model) Names() []string {
	return append([]string(nil), m.order...)
}

// Tables returns the tables in model order.
func (m *Model) Tables() []*Table {
	out := make([]*Table, len(m.order))
	for i, name := range m.order {
		out[i] = m.tables[name]
	}
	return out
}
