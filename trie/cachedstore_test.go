package trie

import (
	"bytes"
	"testing"

	"github.com/mpttrie/mpt/metrics"
)

func TestCachedStore_GetServesFromCacheAfterFirstFetch(t *testing.T) {
	inner := NewMemoryStore()
	must(t, inner.Put([]byte("k"), []byte("v")))

	cached := NewCachedStore(inner, 1<<20)
	v, err := cached.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(v, []byte("v")) {
		t.Fatalf("Get = %q, want %q", v, "v")
	}

	must(t, inner.Delete([]byte("k")))

	v2, err := cached.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get (cached): %v", err)
	}
	if !bytes.Equal(v2, []byte("v")) {
		t.Fatalf("cached Get after inner delete = %q, want %q (stale hit expected)", v2, "v")
	}
}

func TestCachedStore_PutFillsCache(t *testing.T) {
	inner := NewMemoryStore()
	cached := NewCachedStore(inner, 1<<20)
	must(t, cached.Put([]byte("k"), []byte("v")))

	v, ok := cached.cache.HasGet(nil, []byte("k"))
	if !ok {
		t.Fatal("expected Put to populate the cache")
	}
	if !bytes.Equal(v, []byte("v")) {
		t.Fatalf("cached value = %q, want %q", v, "v")
	}
}

func TestCachedStore_BatchFillsCacheForPuts(t *testing.T) {
	inner := NewMemoryStore()
	cached := NewCachedStore(inner, 1<<20)
	ops := []Op{{Kind: OpPut, Key: []byte("k"), Value: []byte("v")}}
	must(t, cached.Batch(ops))

	v, ok := cached.cache.HasGet(nil, []byte("k"))
	if !ok || !bytes.Equal(v, []byte("v")) {
		t.Fatalf("cache after batch = (%q, %v), want (%q, true)", v, ok, "v")
	}
}

func TestCachedStore_PersistRootDelegatesToInner(t *testing.T) {
	inner := NewMemoryStore()
	cached := NewCachedStore(inner, 1<<20)
	root := bytes.Repeat([]byte{0x9}, 32)
	must(t, cached.PersistRoot(root))

	got, has, err := inner.ReadRoot()
	if err != nil || !has {
		t.Fatalf("inner ReadRoot = (has=%v, err=%v), want (true, nil)", has, err)
	}
	if !bytes.Equal(got, root) {
		t.Fatalf("inner ReadRoot = %x, want %x", got, root)
	}

	got2, has2, err := cached.ReadRoot()
	if err != nil || !has2 || !bytes.Equal(got2, root) {
		t.Fatalf("cached.ReadRoot = (%x, %v, %v), want (%x, true, nil)", got2, has2, err, root)
	}
}

func TestCachedStore_PersistRootFailsWithoutRootStoreInner(t *testing.T) {
	cached := NewCachedStore(plainKV{NewMemoryStore()}, 1<<20)
	if err := cached.PersistRoot([]byte("x")); err != ErrNoRootStore {
		t.Fatalf("err = %v, want ErrNoRootStore", err)
	}
	if _, _, err := cached.ReadRoot(); err != ErrNoRootStore {
		t.Fatalf("ReadRoot err = %v, want ErrNoRootStore", err)
	}
}

func TestCachedStore_TracksHitsAndMisses(t *testing.T) {
	inner := NewMemoryStore()
	must(t, inner.Put([]byte("k"), []byte("v")))
	cached := NewCachedStore(inner, 1<<20)

	hitsBefore := metrics.DefaultRegistry.Counter(metrics.MetricCacheHits).Value()
	missesBefore := metrics.DefaultRegistry.Counter(metrics.MetricCacheMisses).Value()

	if _, err := cached.Get([]byte("k")); err != nil { // miss, populates cache
		t.Fatalf("Get: %v", err)
	}
	if _, err := cached.Get([]byte("k")); err != nil { // hit
		t.Fatalf("Get: %v", err)
	}

	if got := metrics.DefaultRegistry.Counter(metrics.MetricCacheMisses).Value(); got != missesBefore+1 {
		t.Fatalf("misses = %d, want %d", got, missesBefore+1)
	}
	if got := metrics.DefaultRegistry.Counter(metrics.MetricCacheHits).Value(); got != hitsBefore+1 {
		t.Fatalf("hits = %d, want %d", got, hitsBefore+1)
	}
}

func TestCachedStore_CopyStartsCold(t *testing.T) {
	inner := NewMemoryStore()
	cached := NewCachedStore(inner, 1<<20)
	must(t, cached.Put([]byte("k"), []byte("v")))

	cp := cached.Copy().(*CachedStore)
	if _, ok := cp.cache.HasGet(nil, []byte("k")); ok {
		t.Fatal("Copy should start with an empty cache")
	}
	v, err := cp.Get([]byte("k"))
	if err != nil || !bytes.Equal(v, []byte("v")) {
		t.Fatalf("Get on copy = (%q, %v), want (%q, nil)", v, err, "v")
	}
}
