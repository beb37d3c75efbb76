package metrics

import "sync"

// typedStore is a get-or-create map for one metric kind. Registry keeps one
// per kind so creating a Counter never blocks a concurrent Gauge lookup.
type typedStore[T any] struct {
	mu    sync.RWMutex
	items map[string]*T
}

func newTypedStore[T any]() *typedStore[T] {
	return &typedStore[T]{items: make(map[string]*T)}
}

// getOrCreate returns the existing entry for name, or builds one with create
// and stores it. The common case (entry already exists) only takes a read
// lock.
func (s *typedStore[T]) getOrCreate(name string, create func(string) *T) *T {
	s.mu.RLock()
	v, ok := s.items[name]
	s.mu.RUnlock()
	if ok {
		return v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok = s.items[name]; ok {
		return v
	}
	v = create(name)
	s.items[name] = v
	return v
}

// snapshot renders every entry through value, under a single read lock.
func (s *typedStore[T]) snapshot(value func(*T) interface{}) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.items))
	for name, v := range s.items {
		out[name] = value(v)
	}
	return out
}

// Registry holds every Counter, Gauge, and Histogram a Trie (or anything
// else sharing it) has asked for, keyed by name. Metrics are created on
// first access, so callers never need a separate registration step.
type Registry struct {
	counters   *typedStore[Counter]
	gauges     *typedStore[Gauge]
	histograms *typedStore[Histogram]
}

// DefaultRegistry is the registry a Trie uses when its Config leaves Metrics
// unset.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		counters:   newTypedStore[Counter](),
		gauges:     newTypedStore[Gauge](),
		histograms: newTypedStore[Histogram](),
	}
}

// Counter returns the Counter registered under name, creating it if needed.
func (r *Registry) Counter(name string) *Counter {
	return r.counters.getOrCreate(name, NewCounter)
}

// Gauge returns the Gauge registered under name, creating it if needed.
func (r *Registry) Gauge(name string) *Gauge {
	return r.gauges.getOrCreate(name, NewGauge)
}

// Histogram returns the Histogram registered under name, creating it if
// needed.
func (r *Registry) Histogram(name string) *Histogram {
	return r.histograms.getOrCreate(name, NewHistogram)
}

// Snapshot returns a point-in-time copy of every metric value in the
// registry, keyed by name. Counter and Gauge values are int64; Histogram
// values are a map with count/sum/min/max/mean.
func (r *Registry) Snapshot() map[string]interface{} {
	snap := r.counters.snapshot(func(c *Counter) interface{} { return c.Value() })
	for name, v := range r.gauges.snapshot(func(g *Gauge) interface{} { return g.Value() }) {
		snap[name] = v
	}
	for name, v := range r.histograms.snapshot(histogramSnapshot) {
		snap[name] = v
	}
	return snap
}

func histogramSnapshot(h *Histogram) interface{} {
	return map[string]interface{}{
		"count": h.Count(),
		"sum":   h.Sum(),
		"min":   h.Min(),
		"max":   h.Max(),
		"mean":  h.Mean(),
	}
}
