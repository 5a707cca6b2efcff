package simulation

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Rishikoli/speedline-metro-glow/internal/model"
	"github.com/Rishikoli/speedline-metro-glow/internal/orchestrator"
)

const (
	DefaultCacheSize = 64
	DefaultCacheTTL  = 5 * time.Minute
)

// ResultCache is a thread-safe LRU cache of simulation results with a per-entry TTL.
type ResultCache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	lru     *list.List
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	hits    int
	misses  int
}

type cacheItem struct {
	key       string
	value     Result
	expiresAt time.Time
}

func NewResultCache(maxSize int, ttl time.Duration) *ResultCache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ResultCache{
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a copy of the cached result. Expired entries are dropped on access.
func (c *ResultCache) Get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return Result{}, false
	}
	item := elem.Value.(*cacheItem)
	if c.now().After(item.expiresAt) {
		c.removeElement(elem)
		c.misses++
		return Result{}, false
	}
	c.lru.MoveToFront(elem)
	c.hits++
	return item.value.Clone(), true
}

func (c *ResultCache) Set(key string, value Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		item := elem.Value.(*cacheItem)
		item.value = value.Clone()
		item.expiresAt = expires
		return
	}

	elem := c.lru.PushFront(&cacheItem{key: key, value: value.Clone(), expiresAt: expires})
	c.items[key] = elem
	if c.lru.Len() > c.maxSize {
		c.removeElement(c.lru.Back())
	}
}

func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.lru = list.New()
}

func (c *ResultCache) removeElement(elem *list.Element) {
	c.lru.Remove(elem)
	delete(c.items, elem.Value.(*cacheItem).key)
}

type CacheStats struct {
	Size    int
	MaxSize int
	Expired int
	Hits    int
	Misses  int
}

func (c *ResultCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{Size: c.lru.Len(), MaxSize: c.maxSize, Hits: c.hits, Misses: c.misses}
	now := c.now()
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		if now.After(elem.Value.(*cacheItem).expiresAt) {
			stats.Expired++
		}
	}
	return stats
}

// CachedEngine memoises Engine.Run per (scenario, input) fingerprint and collapses concurrent
// identical requests into one run.
type CachedEngine struct {
	engine *Engine
	cache  *ResultCache
	group  singleflight.Group
}

func NewCachedEngine(engine *Engine, cache *ResultCache) *CachedEngine {
	if cache == nil {
		cache = NewResultCache(DefaultCacheSize, DefaultCacheTTL)
	}
	return &CachedEngine{engine: engine, cache: cache}
}

func (c *CachedEngine) Cache() *ResultCache {
	return c.cache
}

func (c *CachedEngine) Run(ctx context.Context, scenario model.WhatIfScenario, base orchestrator.Input) (Result, error) {
	key, err := Fingerprint(scenario, base)
	if err != nil {
		return Result{}, err
	}
	if cached, ok := c.cache.Get(key); ok {
		return cached, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		r, err := c.engine.Run(ctx, scenario, base)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, r)
		return r, nil
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result).Clone(), nil
}

func (c *CachedEngine) RunByID(ctx context.Context, id string, base orchestrator.Input) (Result, error) {
	for _, s := range c.engine.catalog {
		if s.ID == id {
			return c.Run(ctx, s, base)
		}
	}
	return Result{}, &ScenarioNotFoundError{ID: id}
}

// Fingerprint hashes the canonical JSON of a scenario and its base input.
func Fingerprint(scenario model.WhatIfScenario, base orchestrator.Input) (string, error) {
	data, err := json.Marshal(struct {
		Scenario model.WhatIfScenario
		Input    orchestrator.Input
	}{scenario, base})
	if err != nil {
		return "", fmt.Errorf("fingerprint scenario %s: %w", scenario.ID, err)
	}
	sum := sha256.Sum256(data)
	return scenario.ID + ":" + hex.EncodeToString(sum[:]), nil
}
