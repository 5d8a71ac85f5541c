package summary

import (
	"strings"
	"testing"

	"github.com/hyperjump/schemarag/internal/schema"
)

const hospitalJSON = `{
  "patients": {
    "columns": {"id": "int", "name": "varchar"},
    "primary_keys": ["id"],
    "foreign_keys": []
  },
  "appointments": {
    "columns": {"id": "int", "patient_id": "int"},
    "primary_keys": ["id"],
    "foreign_keys": [
      {"column": "patient_id", "references_table": "patients", "references_column": "id"}
    ]
  }
}`

func mustParse(t *testing.T, s string) *schema.Model {
	t.Helper()
	m, err := schema.ParseJSON([]byte(s))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestSummarize_Appointments(t *testing.T) {
	m := mustParse(t, hospitalJSON)
	tbl, _ := m.Table("appointments")
	got := Summarize(tbl)
	want := "This table appointments has columns id, patient_id. " +
		"The primary key in this table is id. " +
		"Foreign keys: patient_id references patients.id."
	if got != want {
		t.Errorf("Summarize:\n got %q\nwant %q", got, want)
	}
	if !strings.Contains(got, "patient_id references patients.id") {
		t.Error("summary should describe the foreign key")
	}
}

func TestSummarize_Deterministic(t *testing.T) {
	tbl := &schema.Table{
		Name:        "orders",
		Columns:     []schema.Column{{Name: "id", Type: "int"}, {Name: "customer_id", Type: "int"}, {Name: "total", Type: "decimal"}},
		PrimaryKeys: []string{"id"},
		ForeignKeys: []schema.ForeignKey{{Column: "customer_id", ReferencesTable: "customers", ReferencesColumn: "id"}},
	}
	first := Summarize(tbl)
	for i := 0; i < 10; i++ {
		if got := Summarize(tbl); got != first {
			t.Fatalf("call %d differs: %q vs %q", i, got, first)
		}
	}
}

func TestSummarize_NoKeys(t *testing.T) {
	tbl := &schema.Table{Name: "logs", Columns: []schema.Column{{Name: "msg", Type: "text"}}}
	got := Summarize(tbl)
	if got != "This table logs has columns msg." {
		t.Errorf("got %q", got)
	}
	if strings.Contains(got, "primary key") || strings.Contains(got, "Foreign keys") {
		t.Error("summary without keys must not mention keys")
	}
}

func TestSummarize_ZeroColumns(t *testing.T) {
	got := Summarize(&schema.Table{Name: "empty"})
	if got != "This table empty has columns ." {
		t.Errorf("got %q", got)
	}
}

func TestSummarize_PrimaryKeysInDeclarationOrder(t *testing.T) {
	tbl := &schema.Table{
		Name:        "enrollments",
		Columns:     []schema.Column{{Name: "student_id", Type: "int"}, {Name: "course_id", Type: "int"}},
		PrimaryKeys: []string{"course_id", "student_id", "course_id"},
	}
	got := Summarize(tbl)
	if !strings.Contains(got, "The primary key in this table is student_id, course_id.") {
		t.Errorf("got %q", got)
	}
}

func TestSummarize_DuplicateForeignKeysOnce(t *testing.T) {
	fk := schema.ForeignKey{Column: "parent_id", ReferencesTable: "nodes", ReferencesColumn: "id"}
	tbl := &schema.Table{
		Name:        "nodes",
		Columns:     []schema.Column{{Name: "id", Type: "int"}, {Name: "parent_id", Type: "int"}},
		ForeignKeys: []schema.ForeignKey{fk, fk},
	}
	got := Summarize(tbl)
	if n := strings.Count(got, "parent_id references nodes.id"); n != 1 {
		t.Errorf("self reference rendered %d times: %q", n, got)
	}
}

func TestSummarize_IgnoresColumnTypes(t *testing.T) {
	a := &schema.Table{Name: "t", Columns: []schema.Column{{Name: "c", Type: "int"}}}
	b := &schema.Table{Name: "t", Columns: []schema.Column{{Name: "c", Type: "varchar(255)"}}}
	if Summarize(a) != Summarize(b) {
		t.Error("column types must not affect the summary")
	}
}

func TestDocuments_Order(t *testing.T) {
	m := mustParse(t, hospitalJSON)
	docs := Documents(m)
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0].Table != "patients" || docs[1].Table != "appointments" {
		t.Errorf("document order: %s, %s", docs[0].Table, docs[1].Table)
	}
	if !strings.HasPrefix(docs[1].Content, "This table appointments") {
		t.Errorf("document 1 content: %q", docs[1].Content)
	}
}
