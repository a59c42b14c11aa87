package cache

import (
	"container/list"
	"sync"
	"time"
)

const (
	DefaultMaxSize = 100
	DefaultMaxAge  = 5 * time.Minute
)

// Option mutates cache configuration.
type Option func(*options)

type options struct {
	maxSize int
	maxAge  time.Duration
	clock   func() time.Time
}

// WithMaxSize sets the entry capacity.
func WithMaxSize(maxSize int) Option {
	return func(o *options) {
		if maxSize > 0 {
			o.maxSize = maxSize
		}
	}
}

// WithMaxAge sets how long an entry may be served after insertion.
func WithMaxAge(maxAge time.Duration) Option {
	return func(o *options) {
		if maxAge > 0 {
			o.maxAge = maxAge
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

type Entry[V any] struct {
	Key        string
	Value      V
	InsertedAt time.Time
}

type Stats struct {
	Size        int   `json:"size"`
	MaxSize     int   `json:"max_size"`
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
}

// Cache is a size- and age-bounded map. Eviction follows insertion order:
// reads never move an entry, so the oldest inserted key is always dropped first.
// Expired entries are removed lazily when read.
type Cache[V any] struct {
	maxSize int
	maxAge  time.Duration
	clock   func() time.Time

	mu      sync.Mutex
	order   *list.List
	entries map[string]*list.Element
	stats   Stats
}

func New[V any](opts ...Option) *Cache[V] {
	o := options{
		maxSize: DefaultMaxSize,
		maxAge:  DefaultMaxAge,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Cache[V]{
		maxSize: o.maxSize,
		maxAge:  o.maxAge,
		clock:   o.clock,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lookup(key)
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.stats.Hits++
	return entry.Value, true
}

func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.lookup(key)
	return ok
}

// Set stores value under key. Overwriting keeps the key's place in the
// eviction order; inserting a new key at capacity evicts the oldest entry.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if element, ok := c.entries[key]; ok {
		entry := element.Value.(*Entry[V])
		entry.Value = value
		entry.InsertedAt = now
		return
	}

	for len(c.entries) >= c.maxSize {
		c.removeElement(c.order.Front())
		c.stats.Evictions++
	}

	c.entries[key] = c.order.PushBack(&Entry[V]{Key: key, Value: value, InsertedAt: now})
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.entries[key]; ok {
		c.removeElement(element)
	}
}

func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.entries = make(map[string]*list.Element)
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns live keys from oldest to newest insertion without expiring anything.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for element := c.order.Front(); element != nil; element = element.Next() {
		keys = append(keys, element.Value.(*Entry[V]).Key)
	}
	return keys
}

func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = len(c.entries)
	stats.MaxSize = c.maxSize
	return stats
}

// lookup must be called with c.mu held.
func (c *Cache[V]) lookup(key string) (*Entry[V], bool) {
	element, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	entry := element.Value.(*Entry[V])
	if c.clock().Sub(entry.InsertedAt) > c.maxAge {
		c.removeElement(element)
		c.stats.Expirations++
		return nil, false
	}
	return entry, true
}

func (c *Cache[V]) removeElement(element *list.Element) {
	entry := element.Value.(*Entry[V])
	delete(c.entries, entry.Key)
	c.order.Remove(element)
}
