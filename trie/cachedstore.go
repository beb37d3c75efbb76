package trie

import (
	"github.com/VictoriaMetrics/fastcache"

	"github.com/mpttrie/mpt/metrics"
)

// CachedStore decorates any KV with a fastcache read-through cache over
// node bytes. Node entries are content-addressed by hash, so the cache
// never needs invalidation on write: once a key's value is cached it is
// correct forever, and deletes simply leave a harmless stale entry in the
// cache that is never looked up again under that key.
type CachedStore struct {
	inner    KV
	cache    *fastcache.Cache
	maxBytes int
}

// NewCachedStore wraps inner with an in-memory cache of maxBytes capacity.
func NewCachedStore(inner KV, maxBytes int) *CachedStore {
	return &CachedStore{inner: inner, cache: fastcache.New(maxBytes), maxBytes: maxBytes}
}

func (s *CachedStore) Get(key []byte) ([]byte, error) {
	if v, ok := s.cache.HasGet(nil, key); ok {
		metrics.DefaultRegistry.Counter(metrics.MetricCacheHits).Inc()
		return v, nil
	}
	metrics.DefaultRegistry.Counter(metrics.MetricCacheMisses).Inc()
	v, err := s.inner.Get(key)
	if err != nil || v == nil {
		return v, err
	}
	s.cache.Set(key, v)
	return v, nil
}

func (s *CachedStore) Put(key, value []byte) error {
	if err := s.inner.Put(key, value); err != nil {
		return err
	}
	s.cache.Set(key, value)
	return nil
}

func (s *CachedStore) Delete(key []byte) error {
	return s.inner.Delete(key)
}

func (s *CachedStore) Batch(ops []Op) error {
	if err := s.inner.Batch(ops); err != nil {
		return err
	}
	for _, op := range ops {
		if op.Kind == OpPut {
			s.cache.Set(op.Key, op.Value)
		}
	}
	return nil
}

// Copy copies the inner store and allocates a fresh cache of the same
// capacity; the new CachedStore starts cold.
func (s *CachedStore) Copy() KV {
	return NewCachedStore(s.inner.Copy(), s.maxBytes)
}

func (s *CachedStore) PersistRoot(hash []byte) error {
	rs, ok := s.inner.(RootStore)
	if !ok {
		return ErrNoRootStore
	}
	return rs.PersistRoot(hash)
}

func (s *CachedStore) ReadRoot() ([]byte, bool, error) {
	rs, ok := s.inner.(RootStore)
	if !ok {
		return nil, false, ErrNoRootStore
	}
	return rs.ReadRoot()
}
