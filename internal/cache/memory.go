package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/svcgateway/svcgw/internal/config"
)

// tracerName is the OpenTelemetry tracer name for cache operations.
const tracerName = "svcgw/cache"

// memoryCache implements an in-memory LRU cache. Expired entries are
// treated as misses on read; the background sweep only reclaims memory.
type memoryCache struct {
	logger     *zap.Logger
	maxEntries int
	defaultTTL time.Duration

	mu       sync.Mutex
	items    map[string]*list.Element
	eviction *list.List

	hits   int64
	misses int64

	stopCh chan struct{}
}

// memoryEntry represents an entry in the memory cache.
type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// newMemoryCache creates a new in-memory cache.
func newMemoryCache(cfg *config.CacheConfig, logger *zap.Logger) *memoryCache {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = config.DefaultCacheMaxEntries
	}

	c := &memoryCache{
		logger:     logger,
		maxEntries: maxEntries,
		defaultTTL: cfg.EffectiveTTL(),
		items:      make(map[string]*list.Element),
		eviction:   list.New(),
		stopCh:     make(chan struct{}),
	}

	go c.cleanupLoop()

	logger.Info("memory cache initialized",
		zap.Int("maxEntries", maxEntries),
		zap.Duration("defaultTTL", c.defaultTTL),
	)

	return c
}

// Get implements Cache.
func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "cache.Get",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("cache.backend", "memory")),
	)
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		atomic.AddInt64(&c.misses, 1)
		recordMiss("memory")
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	}

	entry := elem.Value.(*memoryEntry)

	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.removeElement(elem)
		atomic.AddInt64(&c.misses, 1)
		recordMiss("memory")
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	}

	c.eviction.MoveToFront(elem)

	atomic.AddInt64(&c.hits, 1)
	recordHit("memory")
	span.SetAttributes(attribute.Bool("cache.hit", true))

	return entry.value, nil
}

// Set implements Cache.
func (c *memoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "cache.Set",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", "memory"),
			attribute.Int("cache.value_size", len(value)),
		),
	)
	defer span.End()

	if ttl == 0 {
		ttl = c.defaultTTL
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	entry := &memoryEntry{
		key:       key,
		value:     value,
		expiresAt: expiresAt,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.eviction.MoveToFront(elem)
		elem.Value = entry
		return nil
	}

	elem := c.eviction.PushFront(entry)
	c.items[key] = elem

	for c.eviction.Len() > c.maxEntries {
		c.evictOldest()
	}

	recordSize("memory", c.eviction.Len())

	return nil
}

// Delete implements Cache.
func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
	}

	return nil
}

// Close implements Cache.
func (c *memoryCache) Close() error {
	close(c.stopCh)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.eviction.Init()

	return nil
}

// Stats returns cache statistics.
func (c *memoryCache) Stats() Stats {
	c.mu.Lock()
	size := int64(c.eviction.Len())
	c.mu.Unlock()

	return Stats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
		Size:   size,
	}
}

// evictOldest removes the oldest entry. Callers hold c.mu.
func (c *memoryCache) evictOldest() {
	elem := c.eviction.Back()
	if elem != nil {
		c.removeElement(elem)
		recordEviction("memory")
	}
}

// removeElement removes an element. Callers hold c.mu.
func (c *memoryCache) removeElement(elem *list.Element) {
	c.eviction.Remove(elem)
	delete(c.items, elem.Value.(*memoryEntry).key)
}

// cleanupLoop reclaims memory held by expired entries.
func (c *memoryCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCh:
			return
		}
	}
}

// cleanup removes expired entries under a single lock.
func (c *memoryCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var toRemove []*list.Element

	for elem := c.eviction.Back(); elem != nil; elem = elem.Prev() {
		entry := elem.Value.(*memoryEntry)
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}

	for _, elem := range toRemove {
		c.removeElement(elem)
	}
}
