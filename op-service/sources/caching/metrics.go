package caching

// Metrics records cache size changes and hit rates per cache label.
type Metrics interface {
	CacheAdd(label string, cacheSize int, evicted bool)
	CacheGet(label string, hit bool)
}
