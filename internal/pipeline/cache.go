package pipeline

import (
	"container/list"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync"

	"github.com/couchcryptid/city-temperature-etl/internal/domain"
	"github.com/couchcryptid/city-temperature-etl/internal/observability"
)

// Fingerprint hashes a dataset together with the run configuration. Two
// runs with the same fingerprint produce the same records and summary.
func Fingerprint(dataset []domain.Record, mode Mode, workers int) string {
	h := sha256.New()
	var buf [8]byte

	h.Write([]byte(mode))
	binary.BigEndian.PutUint64(buf[:], uint64(workers))
	h.Write(buf[:])

	for _, r := range dataset {
		h.Write([]byte(r.City))
		h.Write([]byte{0})
		binary.BigEndian.PutUint64(buf[:], uint64(r.Timestamp.UnixNano()))
		h.Write(buf[:])
		// seasons follow the local month, so the offset is part of the key
		_, offset := r.Timestamp.Zone()
		binary.BigEndian.PutUint64(buf[:], uint64(int64(offset)))
		h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(r.Temperature))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ResultCache keeps recent Results keyed by fingerprint.
type ResultCache struct {
	cache   *lruCache
	metrics *observability.Metrics
}

// NewResultCache creates a cache holding at most maxEntries results.
func NewResultCache(maxEntries int, metrics *observability.Metrics) *ResultCache {
	return &ResultCache{
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

// Get returns the cached result for key.
func (c *ResultCache) Get(key string) (Result, bool) {
	result, ok := c.cache.get(key)
	if ok {
		c.metrics.ResultCache.WithLabelValues("hit").Inc()
	} else {
		c.metrics.ResultCache.WithLabelValues("miss").Inc()
	}
	return result, ok
}

// Put stores a result under key.
func (c *ResultCache) Put(key string, result Result) {
	c.cache.put(key, result)
}

// lruCache is a mutex-guarded LRU of Results; the front of order is the
// most recently used entry.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	order      *list.List
	entries    map[string]*list.Element
}

type cacheEntry struct {
	key    string
	result Result
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: max(1, maxEntries),
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

func (c *lruCache) get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).result, true
}

func (c *lruCache) put(key string, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).result = result
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, result: result})
	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
