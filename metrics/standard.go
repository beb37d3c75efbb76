package metrics

// Metric names a Trie records against DefaultRegistry (or any Registry
// passed in via Config.Metrics). Keeping them as constants instead of
// pre-bound global Counters/Gauges lets every Trie instance share one name
// while still keeping its own values when it supplies its own Registry.
const (
	// MetricGets counts Get calls.
	MetricGets = "trie.gets"
	// MetricPuts counts Put calls.
	MetricPuts = "trie.puts"
	// MetricDeletes counts Delete calls.
	MetricDeletes = "trie.deletes"
	// MetricNodeBytes observes the RLP-encoded size of every node written to
	// the store.
	MetricNodeBytes = "trie.node_bytes"
	// MetricCacheHits counts CachedStore reads served from the in-memory
	// layer without touching the backing store.
	MetricCacheHits = "trie.cache_hits"
	// MetricCacheMisses counts CachedStore reads that fell through to the
	// backing store.
	MetricCacheMisses = "trie.cache_misses"
)
