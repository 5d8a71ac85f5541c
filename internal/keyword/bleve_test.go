package keyword

import (
	"context"
	"testing"

	"github.com/hyperjump/schemarag/internal/models"
)

func summaries() []models.SummaryDocument {
	return []models.SummaryDocument{
		{Table: "patients", Content: "This table patients has columns id, name, birth_date. The primary key in this table is id."},
		{Table: "appointments", Content: "This table appointments has columns id, patient_id, doctor_id, scheduled_at. The primary key in this table is id. Foreign keys: patient_id references patients.id; doctor_id references doctors.id."},
		{Table: "doctors", Content: "This table doctors has columns id, name, specialty. The primary key in this table is id."},
	}
}

func newIndex(t *testing.T) *SummaryIndex {
	t.Helper()
	idx, err := NewSummaryIndex(summaries())
	if err != nil {
		t.Fatalf("NewSummaryIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestSummaryIndex_DocCount(t *testing.T) {
	idx := newIndex(t)
	n, err := idx.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("DocCount = %d, want 3", n)
	}
}

func TestSummaryIndex_SearchFindsTerm(t *testing.T) {
	idx := newIndex(t)
	results, err := idx.Search(context.Background(), "specialty", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Table != "doctors" || results[0].Position != 2 {
		t.Errorf("top = %+v, want doctors", results[0])
	}
}

func TestSummaryIndex_SnakeCasePartsMatch(t *testing.T) {
	idx := newIndex(t)
	results, err := idx.Search(context.Background(), "scheduled", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Table != "appointments" {
		t.Errorf("results = %+v, want appointments via scheduled_at", results)
	}
}

func TestSummaryIndex_TableBoost(t *testing.T) {
	idx := newIndex(t)
	results, err := idx.Search(context.Background(), "doctors", 10, &SearchOptions{TableBoost: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) < 2 {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Table != "doctors" {
		t.Errorf("top = %s, want doctors", results[0].Table)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("scores not descending: %+v", results)
		}
	}
}

func TestSummaryIndex_Fuzzy(t *testing.T) {
	idx := newIndex(t)
	exact, _ := idx.Search(context.Background(), "specialtty", 10, nil)
	if len(exact) != 0 {
		t.Errorf("exact search for a typo should miss, got %+v", exact)
	}
	fuzzy, err := idx.Search(context.Background(), "specialtty", 10, &SearchOptions{FuzzyEnabled: true, Fuzziness: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(fuzzy) == 0 || fuzzy[0].Table != "doctors" {
		t.Errorf("fuzzy results = %+v", fuzzy)
	}
}

func TestSummaryIndex_LimitAndEmpty(t *testing.T) {
	idx := newIndex(t)
	results, _ := idx.Search(context.Background(), "table id", 1, nil)
	if len(results) != 1 {
		t.Errorf("limit not applied: %+v", results)
	}
	if r, err := idx.Search(context.Background(), "  ,, ", 10, nil); err != nil || len(r) != 0 {
		t.Errorf("empty query: %v, %v", r, err)
	}
	if r, _ := idx.Search(context.Background(), "patients", 0, nil); r != nil {
		t.Errorf("zero limit: %v", r)
	}
}
