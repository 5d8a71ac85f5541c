package index

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/schemarag/internal/embedding"
	"github.com/hyperjump/schemarag/internal/models"
	"github.com/hyperjump/schemarag/internal/vector"
)

func clinicDocs() []models.SummaryDocument {
	return []models.SummaryDocument{
		{Table: "patients", Content: "This table patients has columns id, name. The primary key in this table is id."},
		{Table: "appointments", Content: "This table appointments has columns id, patient_id. The primary key in this table is id. Foreign keys: patient_id references patients.id."},
	}
}

func manyDocs() []models.SummaryDocument {
	return []models.SummaryDocument{
		{Table: "customers", Content: "This table customers has columns id, name, email."},
		{Table: "orders", Content: "This table orders has columns id, customer_id, total."},
		{Table: "products", Content: "This table products has columns id, title, price."},
		{Table: "order_items", Content: "This table order_items has columns order_id, product_id, quantity."},
		{Table: "suppliers", Content: "This table suppliers has columns id, name, country."},
	}
}

func tables(rs []models.RetrievalResult) []string {
	return models.TableNames(rs)
}

func TestBuildSearch_patientsRanksFirst(t *testing.T) {
	ctx := context.Background()
	ix, err := Build(ctx, embedding.NewHashEmbedder(384), clinicDocs(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	results, err := ix.Search(ctx, "show me all patients", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Table != "patients" || results[0].Rank != 1 {
		t.Fatalf("results = %+v", results)
	}
	all, _ := ix.Search(ctx, "show me all patients", 2)
	if all[0].Score > all[1].Score {
		t.Errorf("scores not ascending: %+v", all)
	}
}

func TestSearch_kBeyondCountReturnsAll(t *testing.T) {
	ctx := context.Background()
	ix, _ := Build(ctx, embedding.NewHashEmbedder(64), clinicDocs(), Options{})
	results, err := ix.Search(ctx, "anything", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("len = %d, want 2", len(results))
	}
	if _, err := ix.Search(ctx, "anything", 0); err == nil {
		t.Error("expected error for k=0")
	}
}

func TestSearch_prefixProperty(t *testing.T) {
	ctx := context.Background()
	ix, _ := Build(ctx, embedding.NewHashEmbedder(128), manyDocs(), Options{})
	for _, q := range []string{"customer orders", "product price", "who supplies"} {
		full, _ := ix.Search(ctx, q, 5)
		for k := 1; k < 5; k++ {
			part, _ := ix.Search(ctx, q, k)
			for i := range part {
				if part[i].Table != full[i].Table {
					t.Fatalf("q=%q k=%d: %v is not a prefix of %v", q, k, tables(part), tables(full))
				}
			}
		}
	}
}

func TestSearch_tiesFollowDocumentOrder(t *testing.T) {
	ctx := context.Background()
	docs := []models.SummaryDocument{
		{Table: "b", Content: "same words"},
		{Table: "a", Content: "same words"},
		{Table: "c", Content: "same words"},
	}
	ix, _ := Build(ctx, embedding.NewHashEmbedder(32), docs, Options{})
	results, _ := ix.Search(ctx, "unrelated query", 3)
	got := tables(results)
	if got[0] != "b" || got[1] != "a" || got[2] != "c" {
		t.Errorf("order = %v, want [b a c]", got)
	}
}

func TestBuild_parallelMatchesSerial(t *testing.T) {
	ctx := context.Background()
	emb := embedding.NewHashEmbedder(64)
	serial, _ := Build(ctx, emb, manyDocs(), Options{})
	parallel, err := Build(ctx, emb, manyDocs(), Options{Workers: 3})
	if err != nil {
		t.Fatal(err)
	}
	a, _ := serial.Search(ctx, "order quantity", 5)
	b, _ := parallel.Search(ctx, "order quantity", 5)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("parallel build differs at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

type failingEmbedder struct{ *embedding.HashEmbedder }

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("model unavailable")
}

func TestBuild_errors(t *testing.T) {
	ctx := context.Background()
	if _, err := Build(ctx, embedding.NewHashEmbedder(8), nil, Options{}); !errors.Is(err, ErrBuild) {
		t.Errorf("empty docs: err = %v", err)
	}
	if _, err := Build(ctx, failingEmbedder{embedding.NewHashEmbedder(8)}, clinicDocs(), Options{Workers: 2}); !errors.Is(err, ErrBuild) {
		t.Errorf("embed failure: err = %v", err)
	}
	if _, err := Build(ctx, embedding.NewHashEmbedder(8), clinicDocs(), Options{Metric: "dot"}); !errors.Is(err, ErrBuild) {
		t.Errorf("bad metric: err = %v", err)
	}
}

func TestSaveLoad_roundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "index")
	for _, metric := range []vector.Metric{vector.MetricL2, vector.MetricCosine} {
		emb := embedding.NewHashEmbedder(96)
		built, err := Build(ctx, emb, manyDocs(), Options{Metric: metric})
		if err != nil {
			t.Fatal(err)
		}
		if err := built.Save(dir); err != nil {
			t.Fatal(err)
		}
		if !Exists(dir) {
			t.Fatal("Exists should be true after Save")
		}
		loaded, err := Load(dir, embedding.NewHashEmbedder(96))
		if err != nil {
			t.Fatal(err)
		}
		if loaded.Metric() != metric || loaded.Len() != 5 || loaded.Model() != "hashing-96" {
			t.Fatalf("loaded %s/%d/%s", loaded.Metric(), loaded.Len(), loaded.Model())
		}
		for _, q := range []string{"customer email", "price of products", "x"} {
			want, _ := built.Search(ctx, q, 5)
			got, _ := loaded.Search(ctx, q, 5)
			for i := range want {
				if want[i] != got[i] {
					t.Fatalf("%s q=%q: %+v != %+v", metric, q, got[i], want[i])
				}
			}
		}
	}
}

func TestLoad_errors(t *testing.T) {
	ctx := context.Background()
	saved := func(t *testing.T) string {
		dir := t.TempDir()
		ix, err := Build(ctx, embedding.NewHashEmbedder(16), clinicDocs(), Options{})
		if err != nil {
			t.Fatal(err)
		}
		if err := ix.Save(dir); err != nil {
			t.Fatal(err)
		}
		return dir
	}

	t.Run("missing dir", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope"), embedding.NewHashEmbedder(16))
		if !errors.Is(err, ErrLoad) {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("missing vectors", func(t *testing.T) {
		dir := saved(t)
		_ = os.Remove(filepath.Join(dir, vectorsFile))
		if _, err := Load(dir, embedding.NewHashEmbedder(16)); !errors.Is(err, ErrLoad) {
			t.Errorf("err = %v", err)
		}
		if Exists(dir) {
			t.Error("Exists should be false")
		}
	})
	t.Run("truncated vectors", func(t *testing.T) {
		dir := saved(t)
		path := filepath.Join(dir, vectorsFile)
		data, _ := os.ReadFile(path)
		_ = os.WriteFile(path, data[:len(data)-5], 0644)
		if _, err := Load(dir, embedding.NewHashEmbedder(16)); !errors.Is(err, ErrLoad) {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("dimension mismatch", func(t *testing.T) {
		dir := saved(t)
		if _, err := Load(dir, embedding.NewHashEmbedder(32)); !errors.Is(err, ErrLoad) {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("count mismatch", func(t *testing.T) {
		dir := saved(t)
		other, _ := Build(ctx, embedding.NewHashEmbedder(16), manyDocs(), Options{})
		otherDir := t.TempDir()
		_ = other.Save(otherDir)
		data, _ := os.ReadFile(filepath.Join(otherDir, manifestFile))
		_ = os.WriteFile(filepath.Join(dir, manifestFile), data, 0644)
		if _, err := Load(dir, embedding.NewHashEmbedder(16)); !errors.Is(err, ErrLoad) {
			t.Errorf("err = %v", err)
		}
	})
	for _, tt := range []struct {
		name   string
		offset int
		value  uint32
	}{
		{"oversized dimension header", 12, 0x7fffffff},
		{"dimension header disagrees", 12, 32},
		{"oversized count header", 16, 0x7fffffff},
		{"unknown metric header", 8, 7},
	} {
		t.Run(tt.name, func(t *testing.T) {
			dir := saved(t)
			path := filepath.Join(dir, vectorsFile)
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			binary.LittleEndian.PutUint32(data[tt.offset:], tt.value)
			if err := os.WriteFile(path, data, 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(dir, embedding.NewHashEmbedder(16)); !errors.Is(err, ErrLoad) {
				t.Errorf("err = %v", err)
			}
		})
	}
	t.Run("padded vectors", func(t *testing.T) {
		dir := saved(t)
		path := filepath.Join(dir, vectorsFile)
		data, _ := os.ReadFile(path)
		_ = os.WriteFile(path, append(data, 0, 0, 0, 0), 0644)
		if _, err := Load(dir, embedding.NewHashEmbedder(16)); !errors.Is(err, ErrLoad) {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("corrupt manifest", func(t *testing.T) {
		dir := saved(t)
		_ = os.WriteFile(filepath.Join(dir, manifestFile), []byte("{"), 0644)
		if _, err := Load(dir, embedding.NewHashEmbedder(16)); !errors.Is(err, ErrLoad) {
			t.Errorf("err = %v", err)
		}
	})
}

type renamedEmbedder struct{ *embedding.HashEmbedder }

func (renamedEmbedder) Model() string { return "other-model" }

func TestLoad_modelMismatch(t *testing.T) {
	dir := t.TempDir()
	ix, _ := Build(context.Background(), embedding.NewHashEmbedder(16), clinicDocs(), Options{})
	_ = ix.Save(dir)
	if _, err := Load(dir, renamedEmbedder{embedding.NewHashEmbedder(16)}); !errors.Is(err, ErrLoad) {
		t.Errorf("err = %v", err)
	}
}
