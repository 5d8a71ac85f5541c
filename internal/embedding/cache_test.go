package embedding

import "testing"

func TestVectorLRU(t *testing.T) {
	l := newVectorLRU(2)
	if _, ok := l.get("a"); ok {
		t.Fatal("expected miss on empty cache")
	}
	l.put("a", []float32{1})
	l.put("b", []float32{2})
	l.get("a")               // a is now most recent
	l.put("c", []float32{3}) // evicts b
	if _, ok := l.get("b"); ok {
		t.Error("b should have been evicted")
	}
	if v, ok := l.get("a"); !ok || v[0] != 1 {
		t.Errorf("a = %v, %v", v, ok)
	}

	l.put("a", []float32{9})
	if v, _ := l.get("a"); v[0] != 9 {
		t.Errorf("overwrite: a = %v", v)
	}

	st := l.stats()
	if st.Entries != 2 || st.Hits != 3 || st.Misses != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestVectorLRU_minimumSize(t *testing.T) {
	l := newVectorLRU(0)
	l.put("a", []float32{1})
	if _, ok := l.get("a"); !ok {
		t.Error("cache must hold at least one entry")
	}
}
