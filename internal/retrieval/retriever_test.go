package retrieval

import (
	"context"
	"math"
	"sort"
	"testing"

	"github.com/hyperjump/schemarag/internal/embedding"
	"github.com/hyperjump/schemarag/internal/index"
	"github.com/hyperjump/schemarag/internal/models"
)

// fixedIndex ranks its documents by a fixed distance per document, ignoring the query.
type fixedIndex struct {
	docs      []models.SummaryDocument
	distances []float64
	calls     []int
}

func (f *fixedIndex) Search(_ context.Context, _ string, k int) ([]models.RetrievalResult, error) {
	f.calls = append(f.calls, k)
	out := make([]models.RetrievalResult, len(f.docs))
	for i, d := range f.docs {
		out[i] = models.RetrievalResult{Table: d.Table, Summary: d.Content, Score: f.distances[i]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	if k < len(out) {
		out = out[:k]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

func (f *fixedIndex) Len() int                            { return len(f.docs) }
func (f *fixedIndex) Documents() []models.SummaryDocument { return f.docs }

func threeDocs() *fixedIndex {
	return &fixedIndex{
		docs: []models.SummaryDocument{
			{Table: "alpha", Content: "This table alpha has columns id."},
			{Table: "beta", Content: "This table beta has columns specialty."},
			{Table: "gamma", Content: "This table gamma has columns code."},
		},
		distances: []float64{0.1, 0.5, 0.6},
	}
}

func TestRetrieve_defaultsDelegateToIndex(t *testing.T) {
	ctx := context.Background()
	docs := []models.SummaryDocument{
		{Table: "patients", Content: "This table patients has columns id, name. The primary key in this table is id."},
		{Table: "appointments", Content: "This table appointments has columns id, patient_id. The primary key in this table is id. Foreign keys: patient_id references patients.id."},
	}
	ix, err := index.Build(ctx, embedding.NewHashEmbedder(384), docs, index.Options{})
	if err != nil {
		t.Fatal(err)
	}
	r, err := New(ix, Options{})
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Retrieve(ctx, "show me all patients", 0)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := ix.Search(ctx, "show me all patients", DefaultTopK)
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if got[0].Table != "patients" {
		t.Errorf("top = %s, want patients", got[0].Table)
	}
}

func TestRetrieve_defaultK(t *testing.T) {
	f := threeDocs()
	f.docs = append(f.docs, models.SummaryDocument{Table: "delta"})
	f.distances = append(f.distances, 0.9)
	r, _ := New(f, Options{})
	got, _ := r.Retrieve(context.Background(), "q", 0)
	if len(got) != 3 || f.calls[0] != 3 {
		t.Errorf("len = %d, calls = %v", len(got), f.calls)
	}
}

func TestRetrieve_maxDistance(t *testing.T) {
	r, _ := New(threeDocs(), Options{MaxDistance: 0.55})
	got, err := r.Retrieve(context.Background(), "q", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].Table != "beta" || got[1].Rank != 2 {
		t.Errorf("got %+v", got)
	}
}

func TestRetrieve_dedupeRefills(t *testing.T) {
	f := &fixedIndex{
		docs: []models.SummaryDocument{
			{Table: "orders"}, {Table: "orders"}, {Table: "items"}, {Table: "users"},
		},
		distances: []float64{0.1, 0.2, 0.3, 0.4},
	}
	r, _ := New(f, Options{})
	got, err := r.Retrieve(context.Background(), "q", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Table != "orders" || got[1].Table != "items" {
		t.Errorf("got %+v", got)
	}
	if got[1].Rank != 2 {
		t.Errorf("rank = %d, want 2", got[1].Rank)
	}
	if len(f.calls) != 2 || f.calls[1] != 4 {
		t.Errorf("calls = %v, want a refill search over all documents", f.calls)
	}
}

func TestRetrieve_hybridPromotesKeywordMatch(t *testing.T) {
	r, err := New(threeDocs(), Options{KeywordWeight: 0.9, SemanticWeight: 0.1})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if !r.Hybrid() {
		t.Fatal("expected hybrid mode")
	}
	got, err := r.Retrieve(context.Background(), "specialty", 3)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Table != "beta" || got[1].Table != "alpha" || got[2].Table != "gamma" {
		t.Fatalf("order = %v", models.TableNames(got))
	}
	if got[0].Score != 0.5 {
		t.Errorf("score should keep the vector distance, got %f", got[0].Score)
	}
	want := 0.9 + 0.1/1.5
	if math.Abs(got[0].Relevance-want) > 1e-9 {
		t.Errorf("relevance = %f, want %f", got[0].Relevance, want)
	}
}

func TestRetrieve_hybridTiesFollowSemanticRank(t *testing.T) {
	r, _ := New(threeDocs(), Options{KeywordWeight: 1})
	defer r.Close()
	got, _ := r.Retrieve(context.Background(), "specialty", 3)
	if models.TableNames(got)[1] != "alpha" || models.TableNames(got)[2] != "gamma" {
		t.Errorf("order = %v", models.TableNames(got))
	}
}

func TestRetrieve_hybridFuzzyMatchesTypo(t *testing.T) {
	ctx := context.Background()
	strict, _ := New(threeDocs(), Options{KeywordWeight: 0.9, SemanticWeight: 0.1})
	defer strict.Close()
	got, _ := strict.Retrieve(ctx, "specialtty", 1)
	if got[0].Table != "alpha" {
		t.Errorf("without fuzzy matching the typo should not promote beta, got %v", models.TableNames(got))
	}

	fuzzy, _ := New(threeDocs(), Options{KeywordWeight: 0.9, SemanticWeight: 0.1, Fuzzy: true, TableBoost: 2})
	defer fuzzy.Close()
	got, err := fuzzy.Retrieve(ctx, "specialtty", 1)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Table != "beta" {
		t.Errorf("fuzzy order = %v", models.TableNames(got))
	}
}

// miscountedIndex reports more documents than it returns.
type miscountedIndex struct{ *fixedIndex }

func (m miscountedIndex) Len() int { return m.fixedIndex.Len() + 1 }

func TestNew_hybridRejectsMismatchedIndex(t *testing.T) {
	if _, err := New(miscountedIndex{threeDocs()}, Options{KeywordWeight: 0.5}); err == nil {
		t.Error("expected error when keyword and semantic indexes disagree")
	}
}

func TestNew_rejectsNegative(t *testing.T) {
	if _, err := New(threeDocs(), Options{MaxDistance: -1}); err == nil {
		t.Error("expected error")
	}
}

func TestFuse(t *testing.T) {
	hits := []models.RetrievalResult{{Table: "a", Score: 0}, {Table: "b", Score: 1}}
	fused := fuse(hits, map[string]float64{"b": 1}, 0.5, 0.5)
	if fused[0].result.Table != "b" {
		t.Fatalf("top = %s", fused[0].result.Table)
	}
	if math.Abs(fused[0].score-0.75) > 1e-9 || math.Abs(fused[1].score-0.5) > 1e-9 {
		t.Errorf("scores = %f, %f", fused[0].score, fused[1].score)
	}
}
