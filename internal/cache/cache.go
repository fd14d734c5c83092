package cache

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"

	"github.com/orchids/event-stream/internal/domain"
)

type Strategy string

const (
	StrategyLRU  Strategy = "lru"
	StrategyLFU  Strategy = "lfu"
	StrategyFIFO Strategy = "fifo"
	StrategyTTL  Strategy = "ttl"
)

func ParseStrategy(s string) Strategy {
	switch Strategy(s) {
	case StrategyLFU:
		return StrategyLFU
	case StrategyFIFO:
		return StrategyFIFO
	case StrategyTTL:
		return StrategyTTL
	default:
		return StrategyLRU
	}
}

type entry struct {
	key            string
	value          interface{}
	sizeBytes      int64
	createdAt      time.Time
	lastAccessedAt time.Time
	accessCount    int64
	ttl            time.Duration
	seq            uint64
	elem           *list.Element
}

func (e *entry) expired(now time.Time) bool {
	if e.ttl <= 0 {
		return false
	}
	return now.Sub(e.createdAt) > e.ttl
}

// Cache is a bounded in-memory cache with pluggable eviction. Both the
// entry-count cap and the memory cap hold after every mutation; TTL expiry
// is lazy and counts as a miss on the expiring read.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	accessList *list.List // front = least recently used
	strategy   Strategy
	maxEntries int
	maxMemory  int64
	defaultTTL time.Duration

	memoryBytes int64
	seq         uint64
	hits        int64
	misses      int64
	evictions   int64
}

func New(maxEntries int, maxMemoryBytes int64, defaultTTL time.Duration, strategy Strategy) *Cache {
	return &Cache{
		entries:    make(map[string]*entry),
		accessList: list.New(),
		strategy:   strategy,
		maxEntries: maxEntries,
		maxMemory:  maxMemoryBytes,
		defaultTTL: defaultTTL,
	}
}

func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	now := time.Now()
	if e.expired(now) {
		c.removeEntry(e)
		c.misses++
		return nil, false
	}

	e.lastAccessedAt = now
	e.accessCount++
	c.accessList.MoveToBack(e.elem)
	c.hits++
	return e.value, true
}

// Set stores a value under the default TTL. It returns false only when the
// value alone cannot fit under the memory cap.
func (c *Cache) Set(key string, value interface{}) bool {
	return c.SetWithTTL(key, value, c.defaultTTL)
}

func (c *Cache) SetWithTTL(key string, value interface{}, ttl time.Duration) bool {
	size := estimateSize(value)
	if size > c.maxMemory {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.removeEntry(old)
	}

	for len(c.entries) >= c.maxEntries || c.memoryBytes+size > c.maxMemory {
		if !c.evictOne() {
			return false
		}
		c.evictions++
	}

	now := time.Now()
	c.seq++
	e := &entry{
		key:            key,
		value:          value,
		sizeBytes:      size,
		createdAt:      now,
		lastAccessedAt: now,
		ttl:            ttl,
		seq:            c.seq,
	}
	e.elem = c.accessList.PushBack(e)
	c.entries[key] = e
	c.memoryBytes += size
	return true
}

func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeEntry(e)
	return true
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) MemoryBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memoryBytes
}

func (c *Cache) Stats() domain.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return domain.CacheStats{
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Entries:     len(c.entries),
		MemoryBytes: c.memoryBytes,
		HitRate:     hitRate,
	}
}

// evictOne removes a single entry chosen by the configured strategy.
// Caller holds the lock.
func (c *Cache) evictOne() bool {
	if len(c.entries) == 0 {
		return false
	}

	var victim *entry
	switch c.strategy {
	case StrategyLRU:
		victim = c.accessList.Front().Value.(*entry)
	case StrategyLFU:
		for _, e := range c.entries {
			if victim == nil ||
				e.accessCount < victim.accessCount ||
				(e.accessCount == victim.accessCount && e.seq < victim.seq) {
				victim = e
			}
		}
	case StrategyFIFO, StrategyTTL:
		// TTL expiry is lazy on read; oldest-first is the eviction fallback.
		for _, e := range c.entries {
			if victim == nil || e.createdAt.Before(victim.createdAt) ||
				(e.createdAt.Equal(victim.createdAt) && e.seq < victim.seq) {
				victim = e
			}
		}
	default:
		victim = c.accessList.Front().Value.(*entry)
	}

	c.removeEntry(victim)
	return true
}

func (c *Cache) removeEntry(e *entry) {
	delete(c.entries, e.key)
	c.accessList.Remove(e.elem)
	c.memoryBytes -= e.sizeBytes
}

func estimateSize(value interface{}) int64 {
	switch v := value.(type) {
	case nil:
		return 0
	case string:
		return int64(len(v))
	case []byte:
		return int64(len(v))
	default:
		if data, err := json.Marshal(v); err == nil {
			return int64(len(data))
		}
		return 64
	}
}
