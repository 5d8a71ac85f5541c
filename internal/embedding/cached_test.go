package embedding

import (
	"context"
	"sync"
	"testing"

	"github.com/hyperjump/schemarag/internal/config"
)

type countingEmbedder struct {
	*HashEmbedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.HashEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls += len(texts)
	return c.HashEmbedder.EmbedBatch(ctx, texts)
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]float32
}

func (s *memStore) GetEmbedding(_ context.Context, model, key string) ([]float32, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[model+"/"+key]
	return v, ok, nil
}

func (s *memStore) PutEmbedding(_ context.Context, model, key string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = map[string][]float32{}
	}
	s.data[model+"/"+key] = vec
	return nil
}

func TestCached_EmbedUsesLRU(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(16)}
	c := NewCached(inner, 10, nil, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.Embed(ctx, "patients table"); err != nil {
			t.Fatal(err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
	if st := c.Stats(); st.Hits != 2 || st.Misses != 1 || st.Entries != 1 {
		t.Errorf("stats = %+v", st)
	}
	if c.Model() != "hashing-16" || c.Dimensions() != 16 {
		t.Errorf("identity not forwarded: %s/%d", c.Model(), c.Dimensions())
	}
}

func TestCached_EmbedBatchPersistsAcrossInstances(t *testing.T) {
	store := &memStore{}
	ctx := context.Background()
	texts := []string{"a b", "c d", "a b"}

	first := &countingEmbedder{HashEmbedder: NewHashEmbedder(16)}
	want, err := NewCached(first, 10, store, nil).EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatal(err)
	}
	if first.calls != 3 {
		t.Errorf("first run inner calls = %d, want 3", first.calls)
	}

	second := &countingEmbedder{HashEmbedder: NewHashEmbedder(16)}
	got, err := NewCached(second, 10, store, nil).EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatal(err)
	}
	if second.calls != 0 {
		t.Errorf("second run inner calls = %d, want 0", second.calls)
	}
	for i := range want {
		for j := range want[i] {
			if want[i][j] != got[i][j] {
				t.Fatalf("vector %d differs at %d", i, j)
			}
		}
	}
}

// shortBatchEmbedder drops the last vector of every batch.
type shortBatchEmbedder struct{ *HashEmbedder }

func (s shortBatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := s.HashEmbedder.EmbedBatch(ctx, texts)
	if err != nil || len(vecs) == 0 {
		return vecs, err
	}
	return vecs[:len(vecs)-1], nil
}

func TestCached_EmbedBatchShortResult(t *testing.T) {
	store := &memStore{}
	c := NewCached(shortBatchEmbedder{NewHashEmbedder(16)}, 10, store, nil)
	if _, err := c.EmbedBatch(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error for a short batch")
	}
	if len(store.data) != 0 {
		t.Errorf("nothing should be cached after a failed batch, got %d entries", len(store.data))
	}
}

func TestContentKey(t *testing.T) {
	if ContentKey("x") == ContentKey("y") {
		t.Error("distinct texts must have distinct keys")
	}
	if len(ContentKey("")) != 64 {
		t.Errorf("key length = %d", len(ContentKey("")))
	}
}

func TestNew(t *testing.T) {
	emb, err := New(configFor("hashing"))
	if err != nil {
		t.Fatal(err)
	}
	if emb.Model() != "hashing-32" {
		t.Errorf("model = %s", emb.Model())
	}
	if _, err := New(configFor("bogus")); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func configFor(provider string) config.EmbeddingConfig {
	return config.EmbeddingConfig{Provider: provider, Dimensions: 32}
}
