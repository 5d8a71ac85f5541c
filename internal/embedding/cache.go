package embedding

import (
	"container/list"
	"sync"
)

// CacheStats counts in-process cache lookups.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// vectorLRU is a bounded least-recently-used map from content key to vector.
type vectorLRU struct {
	mu     sync.Mutex
	max    int
	order  *list.List // front is most recent
	byKey  map[string]*list.Element
	hits   uint64
	misses uint64
}

type lruItem struct {
	key string
	vec []float32
}

func newVectorLRU(max int) *vectorLRU {
	if max < 1 {
		max = 1
	}
	return &vectorLRU{max: max, order: list.New(), byKey: make(map[string]*list.Element, max)}
}

func (l *vectorLRU) get(key string) ([]float32, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	el, ok := l.byKey[key]
	if !ok {
		l.misses++
		return nil, false
	}
	l.hits++
	l.order.MoveToFront(el)
	return el.Value.(*lruItem).vec, true
}

func (l *vectorLRU) put(key string, vec []float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.byKey[key]; ok {
		el.Value.(*lruItem).vec = vec
		l.order.MoveToFront(el)
		return
	}
	l.byKey[key] = l.order.PushFront(&lruItem{key: key, vec: vec})
	for l.order.Len() > l.max {
		last := l.order.Back()
		l.order.Remove(last)
		delete(l.byKey, last.Value.(*lruItem).key)
	}
}

func (l *vectorLRU) stats() CacheStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return CacheStats{Entries: l.order.Len(), Hits: l.hits, Misses: l.misses}
}
