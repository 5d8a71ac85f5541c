package models

import (
	"fmt"
	"strconv"
	"time"
)

// Column describes one column of a query result.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Field is one named, typed cell of a result row.
type Field struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// String renders the value for display. Known types are formatted explicitly;
// anything else falls back to its literal fmt rendering.
func (f Field) String() string {
	switch v := f.Value.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case []byte:
		return string(v)
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

// Row is an ordered list of fields, one per result column.
type Row struct {
	Fields []Field `json:"fields"`
}

// Strings returns the display rendering of every field in order.
func (r Row) Strings() []string {
	out := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		out[i] = f.String()
	}
	return out
}

// QueryResult is the complete row set of one executed statement.
type QueryResult struct {
	Columns  []Column      `json:"columns"`
	Rows     []Row         `json:"rows"`
	Duration time.Duration `json:"duration_ns"`
}

// RowCount returns the number of rows.
func (r *QueryResult) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}
