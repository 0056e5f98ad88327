package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"symphonia/internal/domain"
	"symphonia/internal/port"
	"symphonia/internal/usecase"
)

// QueryCache is a small LRU for search results with TTL expiry.
// Search is deterministic for a given index, so entries only need
// invalidating when a new index is published.
type QueryCache struct {
	mu       sync.RWMutex
	entries  map[string]*cacheEntry
	order    []string
	maxSize  int
	ttl      time.Duration
	indexGen uint64
}

type cacheEntry struct {
	results   []domain.SearchResult
	timestamp time.Time
	indexGen  uint64
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		entries: make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

func cacheKey(query string, topK int, rerank bool) string {
	data := []byte(query)
	data = append(data, byte(topK>>8), byte(topK))
	if rerank {
		data = append(data, 1)
	} else {
		data = append(data, 0)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16])
}

func (c *QueryCache) Get(query string, topK int, rerank bool) ([]domain.SearchResult, bool) {
	c.mu.RLock()
	key := cacheKey(query, topK, rerank)
	entry, exists := c.entries[key]
	currentGen := c.indexGen
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}

	if time.Since(entry.timestamp) > c.ttl || entry.indexGen != currentGen {
		c.mu.Lock()
		delete(c.entries, key)
		c.removeFromOrder(key)
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	c.moveToEnd(key)
	c.mu.Unlock()

	return entry.results, true
}

func (c *QueryCache) Put(query string, topK int, rerank bool, results []domain.SearchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(query, topK, rerank)

	if _, exists := c.entries[key]; exists {
		c.entries[key] = &cacheEntry{
			results:   results,
			timestamp: time.Now(),
			indexGen:  c.indexGen,
		}
		c.moveToEnd(key)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = &cacheEntry{
		results:   results,
		timestamp: time.Now(),
		indexGen:  c.indexGen,
	}
	c.order = append(c.order, key)
}

// Invalidate drops every entry. Cached results from an older index
// generation are never served even if Invalidate races a Get.
func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.order = c.order[:0]
	c.indexGen++
}

func (c *QueryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *QueryCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *QueryCache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *QueryCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// CachedSearcher wraps a search use case with the query cache. Errors
// are never cached.
type CachedSearcher struct {
	search *usecase.SearchUseCase
	cache  *QueryCache
}

func NewCachedSearcher(search *usecase.SearchUseCase, cache *QueryCache) *CachedSearcher {
	return &CachedSearcher{
		search: search,
		cache:  cache,
	}
}

// Publish swaps the index and invalidates stale results.
func (s *CachedSearcher) Publish(idx port.Index) {
	s.search.Publish(idx)
	s.cache.Invalidate()
}

func (s *CachedSearcher) Ready() bool {
	return s.search.Ready()
}

func (s *CachedSearcher) Retrieve(ctx context.Context, query string) ([]domain.SearchResult, error) {
	return s.search.Retrieve(ctx, query)
}

func (s *CachedSearcher) Search(ctx context.Context, query string, topK int, rerank bool) ([]domain.SearchResult, error) {
	if results, hit := s.cache.Get(query, topK, rerank); hit {
		return results, nil
	}

	results, err := s.search.Search(ctx, query, topK, rerank)
	if err != nil {
		return nil, err
	}

	s.cache.Put(query, topK, rerank, results)
	return results, nil
}
